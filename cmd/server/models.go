package main

import (
	"github.com/liamcoop/defectcriteria/activation"
	"github.com/liamcoop/defectcriteria/criteria"
	"github.com/liamcoop/defectcriteria/library"
)

// API request and response models

// ProceduresListResponse represents the response for listing procedures
type ProceduresListResponse struct {
	Procedures []*criteria.Procedure `json:"procedures"`
}

// RuleResponse is a rule with its library references resolved
type RuleResponse struct {
	*criteria.Rule
	Labels library.RuleLabels `json:"labels"`
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []RuleResponse `json:"rules"`
}

// EvaluateResponse represents the response for evaluating a finding
type EvaluateResponse struct {
	ProcedureID  string                 `json:"procedureId"`
	Matched      bool                   `json:"matched"`
	Rule         *criteria.Rule         `json:"rule,omitempty"`
	AutoFlag     bool                   `json:"autoFlag"`
	AlertMessage string                 `json:"alertMessage,omitempty"`
	Labels       *library.RuleLabels    `json:"labels,omitempty"`
	Outcomes     []criteria.RuleOutcome `json:"outcomes,omitempty"`

	EvaluationTime string `json:"evaluationTime"`
}

// SelectProcedureRequest represents the request body for selecting the
// active procedure of a context
type SelectProcedureRequest struct {
	ProcedureID string `json:"procedureId"`
}

// ContextsListResponse represents the response for listing selections
type ContextsListResponse struct {
	Contexts []activation.Selection `json:"contexts"`
}

// PriorityResponse is the presentation view of a priority
type PriorityResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
