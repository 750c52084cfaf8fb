package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/defectcriteria/activation"
	"github.com/liamcoop/defectcriteria/criteria"
	"github.com/liamcoop/defectcriteria/internal/metrics"
	"github.com/liamcoop/defectcriteria/library"
)

func seededLibrary(t *testing.T) *library.MemoryClient {
	t.Helper()
	client := library.NewMemoryClient()
	require.NoError(t, client.PutItems(library.Priority,
		library.Item{ID: "P1", Description: "Priority 1 - Immediate"},
		library.Item{ID: "P3", Description: "Priority 3 - Monitor"},
	))
	require.NoError(t, client.PutItems(library.DefectCode, library.Item{ID: "CORR", Description: "Corrosion"}))
	require.NoError(t, client.PutItems(library.DefectType, library.Item{ID: "PITTING", Description: "Pitting", ParentID: "CORR"}))
	require.NoError(t, client.PutItems(library.StructureGroup, library.Item{ID: "Jacket", Description: "Jacket structure"}))
	require.NoError(t, client.PutItems(library.Color, library.Item{ID: "RED", Description: "255,0,0"}))
	client.PutCombos(library.PriorityColorCombo, library.Combo{Code1: "P1", Code2: "RED"})
	return client
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := metrics.New()
	require.NoError(t, err)

	resolver := library.NewResolver(seededLibrary(t), 0, log)
	engine, err := criteria.NewEngine(criteria.NewMemoryStore(),
		criteria.WithTaxonomy(resolver),
		criteria.WithObserver(m),
		criteria.WithLogger(log),
	)
	require.NoError(t, err)

	return NewServer(Deps{
		Engine:   engine,
		Contexts: activation.NewManager(engine, activation.NewMemorySelectionStore(), log),
		Resolver: resolver,
		Metrics:  m,
		Logger:   log,
		Checks:   checks,
	})
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createProcedure(t *testing.T, s *Server, number string) criteria.Procedure {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/procedures", map[string]any{
		"procedureNumber": number,
		"procedureName":   "Jacket criteria",
		"effectiveDate":   "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[criteria.Procedure](t, rec)
}

func pittingRule(priority int, alert string) map[string]any {
	return map[string]any{
		"structureGroup":     "Jacket",
		"priorityId":         "P1",
		"defectCodeId":       "CORR",
		"defectTypeId":       "PITTING",
		"thresholdOperator":  ">",
		"thresholdValue":     2,
		"autoFlag":           true,
		"alertMessage":       alert,
		"evaluationPriority": priority,
	}
}

func createRule(t *testing.T, s *Server, procedureID string, body map[string]any) RuleResponse {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/procedures/"+procedureID+"/rules", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[RuleResponse](t, rec)
}

const pittingFinding = `{"structureGroup":"Jacket","defectCode":"CORR","defectType":"PITTING","value":3.5}`

func TestProcedureAndRuleLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	p := createProcedure(t, s, "DC-001")
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, criteria.StatusDraft, p.Status)

	low := createRule(t, s, p.ID, pittingRule(1, "low"))
	high := createRule(t, s, p.ID, pittingRule(5, "high"))
	assert.Equal(t, "Priority 1 - Immediate", high.Labels.Priority)
	assert.Equal(t, "Jacket structure", high.Labels.StructureGroup)
	assert.Equal(t, "#ff0000", high.Labels.Color)

	rec := do(t, s, http.MethodGet, "/api/v1/procedures/"+p.ID+"/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[RulesListResponse](t, rec)
	require.Len(t, list.Rules, 2)
	assert.Equal(t, high.ID, list.Rules[0].ID)
	assert.Equal(t, low.ID, list.Rules[1].ID)

	rec = do(t, s, http.MethodPost, "/api/v1/procedures/"+p.ID+"/evaluate", pittingFinding)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[EvaluateResponse](t, rec)
	assert.True(t, res.Matched)
	assert.True(t, res.AutoFlag)
	assert.Equal(t, "high", res.AlertMessage)
	require.NotNil(t, res.Labels)
	assert.Equal(t, "Pitting", res.Labels.DefectType)

	rec = do(t, s, http.MethodDelete, "/api/v1/rules/"+high.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/v1/rules/"+high.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/procedures/"+p.ID+"/evaluate", pittingFinding)
	assert.Equal(t, "low", decode[EvaluateResponse](t, rec).AlertMessage)

	next := createProcedure(t, s, "DC-001")
	assert.Equal(t, 2, next.Version)
	rec = do(t, s, http.MethodGet, "/api/v1/procedures", nil)
	assert.Len(t, decode[ProceduresListResponse](t, rec).Procedures, 2)
}

func TestEvaluateNoMatchIsNotAnError(t *testing.T) {
	s := newTestServer(t, nil)
	p := createProcedure(t, s, "DC-001")
	createRule(t, s, p.ID, pittingRule(0, "pitting"))

	rec := do(t, s, http.MethodPost, "/api/v1/procedures/"+p.ID+"/evaluate",
		`{"structureGroup":"Jacket","defectCode":"CORR","defectType":"PITTING","value":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[EvaluateResponse](t, rec)
	assert.False(t, res.Matched)
	assert.Nil(t, res.Rule)
	assert.Nil(t, res.Labels)
}

func TestEvaluateExplain(t *testing.T) {
	s := newTestServer(t, nil)
	p := createProcedure(t, s, "DC-001")
	strict := pittingRule(9, "strict")
	strict["thresholdValue"] = 10
	createRule(t, s, p.ID, strict)
	createRule(t, s, p.ID, pittingRule(1, "loose"))

	rec := do(t, s, http.MethodPost, "/api/v1/procedures/"+p.ID+"/evaluate?explain=true", pittingFinding)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[EvaluateResponse](t, rec)
	assert.Equal(t, "loose", res.AlertMessage)
	require.Len(t, res.Outcomes, 2)
	assert.False(t, res.Outcomes[0].Matched)
	assert.True(t, res.Outcomes[1].Matched)

	rec = do(t, s, http.MethodPost, "/api/v1/procedures/"+p.ID+"/evaluate?explain=maybe", pittingFinding)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRulePatchSemantics(t *testing.T) {
	s := newTestServer(t, nil)
	p := createProcedure(t, s, "DC-001")
	body := pittingRule(0, "pitting")
	body["jobpackType"] = "GVI"
	r := createRule(t, s, p.ID, body)

	rec := do(t, s, http.MethodPatch, "/api/v1/rules/"+r.ID, `{"thresholdText":"SEVERE","jobpackType":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[RuleResponse](t, rec)
	assert.Nil(t, updated.ThresholdValue, "text threshold clears the value")
	require.NotNil(t, updated.ThresholdText)
	assert.Equal(t, "SEVERE", *updated.ThresholdText)
	assert.Empty(t, updated.JobpackType, "null clears")
	assert.Equal(t, "pitting", updated.AlertMessage, "absent keeps")

	rec = do(t, s, http.MethodPatch, "/api/v1/rules/"+r.ID, `{"revision":1,"alertMessage":"stale"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/v1/rules/"+r.ID, `{"thresholdValue":1,"thresholdText":"X"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/v1/rules/missing", `{"alertMessage":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t, nil)
	p := createProcedure(t, s, "DC-001")

	missingAlert := pittingRule(0, "")
	wrongType := pittingRule(0, "x")
	wrongType["defectTypeId"] = "FATIGUE"

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed json", http.MethodPost, "/api/v1/procedures", `{"procedureNumber":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/procedures", `{"procedureNumber":"X","procedureName":"Y","colour":"red"}`, http.StatusBadRequest},
		{"missing alert message", http.MethodPost, "/api/v1/procedures/" + p.ID + "/rules", missingAlert, http.StatusBadRequest},
		{"defect type outside code", http.MethodPost, "/api/v1/procedures/" + p.ID + "/rules", wrongType, http.StatusBadRequest},
		{"unknown procedure rules", http.MethodGet, "/api/v1/procedures/missing/rules", nil, http.StatusNotFound},
		{"unknown procedure", http.MethodGet, "/api/v1/procedures/missing", nil, http.StatusNotFound},
		{"placeholder procedure id", http.MethodPatch, "/api/v1/procedures/undefined", `{"status":"active"}`, http.StatusBadRequest},
		{"unknown procedure update", http.MethodPatch, "/api/v1/procedures/missing", `{"status":"active"}`, http.StatusBadRequest},
		{"invalid status", http.MethodPatch, "/api/v1/procedures/" + p.ID, `{"status":"retired"}`, http.StatusBadRequest},
		{"finding without defect code", http.MethodPost, "/api/v1/procedures/" + p.ID + "/evaluate", `{"structureGroup":"Jacket","defectType":"PITTING"}`, http.StatusBadRequest},
		{"evaluate unknown procedure", http.MethodPost, "/api/v1/procedures/missing/evaluate", pittingFinding, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(criteria.DependencyError("GetRules", errors.New("down"))))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestContextSelection(t *testing.T) {
	s := newTestServer(t, nil)
	p := createProcedure(t, s, "DC-001")
	createRule(t, s, p.ID, pittingRule(0, "platform pitting"))

	rec := do(t, s, http.MethodPut, "/api/v1/contexts/platform/procedure", SelectProcedureRequest{ProcedureID: p.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "draft procedures cannot be selected")

	rec = do(t, s, http.MethodPatch, "/api/v1/procedures/"+p.ID, `{"status":"active"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/api/v1/contexts/platform/procedure", SelectProcedureRequest{ProcedureID: p.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/v1/contexts/platform/procedure", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, p.ID, decode[activation.Selection](t, rec).ProcedureID)

	rec = do(t, s, http.MethodPost, "/api/v1/contexts/platform/evaluate", pittingFinding)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[EvaluateResponse](t, rec)
	assert.Equal(t, p.ID, res.ProcedureID)
	assert.Equal(t, "platform pitting", res.AlertMessage)

	rec = do(t, s, http.MethodGet, "/api/v1/contexts", nil)
	assert.Len(t, decode[ContextsListResponse](t, rec).Contexts, 1)

	rec = do(t, s, http.MethodPost, "/api/v1/contexts/pipeline/evaluate", pittingFinding)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/v1/procedures/"+p.ID, `{"status":"archived"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/v1/contexts/platform/evaluate", pittingFinding)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/v1/contexts/platform/procedure", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPriorityLookup(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/library/priorities/P1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, PriorityResponse{ID: "P1", Label: "Priority 1 - Immediate", Color: "#ff0000"}, decode[PriorityResponse](t, rec))

	rec = do(t, s, http.MethodGet, "/api/v1/library/priorities/P404", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, PriorityResponse{ID: "P404", Label: library.Unknown}, decode[PriorityResponse](t, rec))
}

func TestHealth(t *testing.T) {
	healthy := newTestServer(t, map[string]HealthCheck{
		"store": func(context.Context) error { return nil },
	})
	rec := do(t, healthy, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)

	unhealthy := newTestServer(t, map[string]HealthCheck{
		"store": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec = do(t, unhealthy, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"])
	assert.Equal(t, "ok", resp.Checks["store"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	p := createProcedure(t, s, "DC-001")
	createRule(t, s, p.ID, pittingRule(0, "pitting"))
	do(t, s, http.MethodPost, "/api/v1/procedures/"+p.ID+"/evaluate", pittingFinding)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `defect_criteria_evaluations_total{outcome="matched"} 1`)
	assert.Contains(t, body, `defect_criteria_mutations_total{operation="CreateRule",result="ok"} 1`)
	assert.Contains(t, body, `route="/api/v1/procedures/{procedureId}/evaluate"`)
}
