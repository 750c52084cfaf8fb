package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/defectcriteria/criteria"
	"github.com/liamcoop/defectcriteria/library"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Checks: map[string]string{}}
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleListProcedures(w http.ResponseWriter, r *http.Request) {
	procs, err := s.engine.ListProcedures(r.Context())
	if err != nil {
		s.respondEngineError(w, r, "failed to list procedures", err)
		return
	}
	if procs == nil {
		procs = []*criteria.Procedure{}
	}
	respondJSON(w, http.StatusOK, ProceduresListResponse{Procedures: procs})
}

func (s *Server) handleCreateProcedure(w http.ResponseWriter, r *http.Request) {
	var req criteria.ProcedureInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, err := s.engine.CreateProcedure(r.Context(), req)
	if err != nil {
		s.respondEngineError(w, r, "failed to create procedure", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProcedure(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetProcedure(r.Context(), chi.URLParam(r, "procedureId"))
	if err != nil {
		s.respondEngineError(w, r, "failed to get procedure", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProcedure(w http.ResponseWriter, r *http.Request) {
	var req criteria.ProcedurePatch
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, err := s.engine.UpdateProcedure(r.Context(), chi.URLParam(r, "procedureId"), req)
	if err != nil {
		s.respondEngineError(w, r, "failed to update procedure", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) ruleResponse(ctx context.Context, rule *criteria.Rule) RuleResponse {
	return RuleResponse{Rule: rule, Labels: s.resolver.LabelRule(ctx, rule)}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.engine.ListRules(r.Context(), chi.URLParam(r, "procedureId"))
	if err != nil {
		s.respondEngineError(w, r, "failed to list rules", err)
		return
	}

	resp := RulesListResponse{Rules: make([]RuleResponse, 0, len(rules))}
	for _, rule := range rules {
		resp.Rules = append(resp.Rules, s.ruleResponse(r.Context(), rule))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req criteria.RuleInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.engine.CreateRule(r.Context(), chi.URLParam(r, "procedureId"), req)
	if err != nil {
		s.respondEngineError(w, r, "failed to create rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, s.ruleResponse(r.Context(), rule))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		s.respondEngineError(w, r, "failed to get rule", err)
		return
	}
	respondJSON(w, http.StatusOK, s.ruleResponse(r.Context(), rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req criteria.RulePatch
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.engine.UpdateRule(r.Context(), chi.URLParam(r, "ruleId"), req)
	if err != nil {
		s.respondEngineError(w, r, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, s.ruleResponse(r.Context(), rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
		s.respondEngineError(w, r, "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// evaluationResponse enriches a result with the labels and color of the
// matched rule.
func (s *Server) evaluationResponse(ctx context.Context, procedureID string, res *criteria.EvaluationResult, elapsed time.Duration) EvaluateResponse {
	resp := EvaluateResponse{
		ProcedureID:    procedureID,
		Matched:        res.Matched,
		Rule:           res.Rule,
		AutoFlag:       res.AutoFlag,
		AlertMessage:   res.AlertMessage,
		EvaluationTime: elapsed.String(),
	}
	if res.Matched && res.Rule != nil {
		labels := s.resolver.LabelRule(ctx, res.Rule)
		resp.Labels = &labels
	}
	return resp
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	procedureID := chi.URLParam(r, "procedureId")

	var finding criteria.Finding
	if err := decodeJSON(w, r, &finding); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	explain := false
	if v := r.URL.Query().Get("explain"); v != "" {
		var err error
		if explain, err = strconv.ParseBool(v); err != nil {
			respondError(w, http.StatusBadRequest, "explain must be a boolean", err)
			return
		}
	}

	start := time.Now()
	if explain {
		ex, err := s.engine.Explain(r.Context(), procedureID, &finding)
		if err != nil {
			s.respondEngineError(w, r, "evaluation failed", err)
			return
		}
		resp := s.evaluationResponse(r.Context(), procedureID, &ex.Result, time.Since(start))
		resp.Outcomes = ex.Outcomes
		respondJSON(w, http.StatusOK, resp)
		return
	}

	res, err := s.engine.Evaluate(r.Context(), procedureID, &finding)
	if err != nil {
		s.respondEngineError(w, r, "evaluation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, s.evaluationResponse(r.Context(), procedureID, res, time.Since(start)))
}

func (s *Server) handleListContexts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ContextsListResponse{Contexts: s.contexts.List()})
}

func (s *Server) handleGetContextProcedure(w http.ResponseWriter, r *http.Request) {
	sel, err := s.contexts.Active(r.Context(), chi.URLParam(r, "contextKey"))
	if err != nil {
		s.respondEngineError(w, r, "no procedure selected", err)
		return
	}
	respondJSON(w, http.StatusOK, sel)
}

func (s *Server) handleSelectContextProcedure(w http.ResponseWriter, r *http.Request) {
	var req SelectProcedureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ProcedureID == "" {
		respondError(w, http.StatusBadRequest, "procedureId is required", nil)
		return
	}

	sel, err := s.contexts.Select(r.Context(), chi.URLParam(r, "contextKey"), req.ProcedureID)
	if err != nil {
		s.respondEngineError(w, r, "failed to select procedure", err)
		return
	}
	respondJSON(w, http.StatusOK, sel)
}

func (s *Server) handleEvaluateContext(w http.ResponseWriter, r *http.Request) {
	contextKey := chi.URLParam(r, "contextKey")

	var finding criteria.Finding
	if err := decodeJSON(w, r, &finding); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	start := time.Now()
	res, err := s.contexts.Evaluate(r.Context(), contextKey, &finding)
	if err != nil {
		s.respondEngineError(w, r, "evaluation failed", err)
		return
	}

	procedureID := ""
	if sel, err := s.contexts.Active(r.Context(), contextKey); err == nil {
		procedureID = sel.ProcedureID
	}
	respondJSON(w, http.StatusOK, s.evaluationResponse(r.Context(), procedureID, res, time.Since(start)))
}

func (s *Server) handleGetPriority(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "priorityId")
	resp := PriorityResponse{
		ID:    id,
		Label: s.resolver.ResolveLabel(r.Context(), library.Priority, id),
	}
	if rgb, ok := s.resolver.ResolveColor(r.Context(), id); ok {
		resp.Color = rgb.Hex()
	}
	respondJSON(w, http.StatusOK, resp)
}
