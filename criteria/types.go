package criteria

import "time"

// AllStructureGroups is the wildcard structure group: a rule carrying it
// applies to findings from any structure group.
const AllStructureGroups = "All Structure Groups"

// ProcedureStatus is the lifecycle state of a procedure.
type ProcedureStatus string

const (
	// StatusDraft is the initial state of every procedure.
	StatusDraft ProcedureStatus = "draft"

	// StatusActive marks a procedure as eligible for context selection.
	StatusActive ProcedureStatus = "active"

	// StatusArchived marks a superseded procedure.
	StatusArchived ProcedureStatus = "archived"
)

// IsValid returns true if the status is a recognized value.
func (s ProcedureStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// Procedure is a versioned, named collection of defect criteria rules.
type Procedure struct {
	ID               string                      `json:"id"`
	Number           string                      `json:"procedureNumber"`
	Name             string                      `json:"procedureName"`
	Version          int                         `json:"version"`
	Status           ProcedureStatus             `json:"status"`
	EffectiveDate    string                      `json:"effectiveDate,omitempty"`
	Notes            string                      `json:"notes,omitempty"`
	CustomParameters []CustomParameterDefinition `json:"customParameters,omitempty"`
	Revision         int64                       `json:"revision"`
	CreatedAt        time.Time                   `json:"createdAt"`
	UpdatedAt        time.Time                   `json:"updatedAt"`
}

// Clone returns a deep copy of p.
func (p *Procedure) Clone() *Procedure {
	if p == nil {
		return nil
	}
	c := *p
	if p.CustomParameters != nil {
		c.CustomParameters = make([]CustomParameterDefinition, len(p.CustomParameters))
		for i, def := range p.CustomParameters {
			def.ValidationRules = append([]string(nil), def.ValidationRules...)
			c.CustomParameters[i] = def
		}
	}
	return &c
}

// Parameter returns the definition named name, if the procedure declares it.
func (p *Procedure) Parameter(name string) (CustomParameterDefinition, bool) {
	for _, def := range p.CustomParameters {
		if def.Name == name {
			return def, true
		}
	}
	return CustomParameterDefinition{}, false
}

// ParameterType is the value kind of a custom parameter.
type ParameterType string

const (
	ParameterText   ParameterType = "text"
	ParameterNumber ParameterType = "number"
)

// IsValid returns true if the type is a recognized value.
func (t ParameterType) IsValid() bool {
	return t == ParameterText || t == ParameterNumber
}

// CustomParameterDefinition declares a procedure-specific field that rules may
// put conditions on and findings may carry.
type CustomParameterDefinition struct {
	Name   string        `json:"name" yaml:"name"`
	Label  string        `json:"label" yaml:"label"`
	Type   ParameterType `json:"type" yaml:"type"`
	Unit   string        `json:"unit,omitempty" yaml:"unit,omitempty"`
	Active bool          `json:"active" yaml:"active"`

	// ValidationRules are CEL expressions over `value` (this parameter's
	// finding value) and `params` (all custom values of the finding). Each must
	// evaluate to true for a finding to be accepted.
	ValidationRules []string `json:"validationRules,omitempty" yaml:"validationRules,omitempty"`
}

// ParameterCondition is a rule's condition on one custom parameter. Exactly
// one of Value and Text is set.
type ParameterCondition struct {
	Operator Operator `json:"operator" yaml:"operator"`
	Value    *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Text     *string  `json:"text,omitempty" yaml:"text,omitempty"`
}

// Rule is a single criterion within a procedure.
type Rule struct {
	ID          string `json:"id"`
	ProcedureID string `json:"procedureId"`

	StructureGroup string `json:"structureGroup"`
	PriorityID     string `json:"priorityId"`
	DefectCodeID   string `json:"defectCodeId"`
	DefectTypeID   string `json:"defectTypeId"`
	JobpackType    string `json:"jobpackType,omitempty"`

	ElevationMin     *float64 `json:"elevationMin,omitempty"`
	ElevationMax     *float64 `json:"elevationMax,omitempty"`
	NominalThickness *float64 `json:"nominalThickness,omitempty"`

	ThresholdValue    *float64 `json:"thresholdValue,omitempty"`
	ThresholdText     *string  `json:"thresholdText,omitempty"`
	ThresholdOperator Operator `json:"thresholdOperator,omitempty"`

	CustomParameters map[string]ParameterCondition `json:"customParameters,omitempty"`

	AutoFlag           bool   `json:"autoFlag"`
	AlertMessage       string `json:"alertMessage"`
	EvaluationPriority int    `json:"evaluationPriority"`

	// RuleOrder is assigned by the store from a strictly increasing counter
	// and breaks ties between equal evaluation priorities.
	RuleOrder int64 `json:"ruleOrder"`

	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of r.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	c := *r
	c.ElevationMin = cloneFloat(r.ElevationMin)
	c.ElevationMax = cloneFloat(r.ElevationMax)
	c.NominalThickness = cloneFloat(r.NominalThickness)
	c.ThresholdValue = cloneFloat(r.ThresholdValue)
	c.ThresholdText = cloneString(r.ThresholdText)
	if r.CustomParameters != nil {
		c.CustomParameters = make(map[string]ParameterCondition, len(r.CustomParameters))
		for name, cond := range r.CustomParameters {
			c.CustomParameters[name] = ParameterCondition{
				Operator: cond.Operator,
				Value:    cloneFloat(cond.Value),
				Text:     cloneString(cond.Text),
			}
		}
	}
	return &c
}

// HasThreshold reports whether the rule carries a numeric or text threshold.
func (r *Rule) HasThreshold() bool {
	return r.ThresholdValue != nil || r.ThresholdText != nil
}

// Finding is an inspection-time observation checked against the rules of a
// procedure. It is not persisted by this package.
type Finding struct {
	StructureGroup   string                 `json:"structureGroup"`
	DefectCode       string                 `json:"defectCode"`
	DefectType       string                 `json:"defectType"`
	JobpackType      string                 `json:"jobpackType,omitempty"`
	Elevation        *float64               `json:"elevation,omitempty"`
	Value            Measurement            `json:"value"`
	CustomParameters map[string]Measurement `json:"customParameters,omitempty"`
}

// EvaluationResult is the outcome of evaluating a finding. A finding that
// matches no rule yields Matched == false; that is not an error.
type EvaluationResult struct {
	Matched      bool   `json:"matched"`
	Rule         *Rule  `json:"rule,omitempty"`
	AutoFlag     bool   `json:"autoFlag,omitempty"`
	AlertMessage string `json:"alertMessage,omitempty"`
}

// RuleOutcome records whether one rule matched, for Explain.
type RuleOutcome struct {
	RuleID             string `json:"ruleId"`
	EvaluationPriority int    `json:"evaluationPriority"`
	RuleOrder          int64  `json:"ruleOrder"`
	Matched            bool   `json:"matched"`
}

// Explanation lists the outcome of every rule of a procedure in evaluation
// order, alongside the first-match result.
type Explanation struct {
	Result   EvaluationResult `json:"result"`
	Outcomes []RuleOutcome    `json:"outcomes"`
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
