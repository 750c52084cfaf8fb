package criteria

import (
	"bytes"
	"encoding/json"
)

// Field is a tri-state patch field. An absent JSON key leaves Set false (keep
// the current value), an explicit null sets Set with a nil Value (clear), and
// any other value sets both.
type Field[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns a field that assigns v.
func SetTo[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: &v}
}

// Null returns a field that clears the target.
func Null[T any]() Field[T] {
	return Field[T]{Set: true}
}

// IsNull reports whether the field explicitly clears its target.
func (f Field[T]) IsNull() bool {
	return f.Set && f.Value == nil
}

// UnmarshalJSON is only invoked for keys present in the document.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

// MarshalJSON writes null for both absent and cleared fields; use omitempty
// semantics on the caller side if the distinction matters.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}

func applyString(dst *string, f Field[string]) {
	if !f.Set {
		return
	}
	if f.Value == nil {
		*dst = ""
		return
	}
	*dst = *f.Value
}

func applyPtr[T any](dst **T, f Field[T]) {
	if !f.Set {
		return
	}
	if f.Value == nil {
		*dst = nil
		return
	}
	v := *f.Value
	*dst = &v
}

// RuleInput carries the fields of a new rule.
type RuleInput struct {
	StructureGroup   string   `json:"structureGroup" yaml:"structureGroup"`
	PriorityID       string   `json:"priorityId" yaml:"priorityId"`
	DefectCodeID     string   `json:"defectCodeId" yaml:"defectCodeId"`
	DefectTypeID     string   `json:"defectTypeId" yaml:"defectTypeId"`
	JobpackType      string   `json:"jobpackType,omitempty" yaml:"jobpackType,omitempty"`
	ElevationMin     *float64 `json:"elevationMin,omitempty" yaml:"elevationMin,omitempty"`
	ElevationMax     *float64 `json:"elevationMax,omitempty" yaml:"elevationMax,omitempty"`
	NominalThickness *float64 `json:"nominalThickness,omitempty" yaml:"nominalThickness,omitempty"`

	ThresholdValue    *float64 `json:"thresholdValue,omitempty" yaml:"thresholdValue,omitempty"`
	ThresholdText     *string  `json:"thresholdText,omitempty" yaml:"thresholdText,omitempty"`
	ThresholdOperator Operator `json:"thresholdOperator,omitempty" yaml:"thresholdOperator,omitempty"`

	CustomParameters map[string]ParameterCondition `json:"customParameters,omitempty" yaml:"customParameters,omitempty"`

	AutoFlag           bool   `json:"autoFlag" yaml:"autoFlag"`
	AlertMessage       string `json:"alertMessage" yaml:"alertMessage"`
	EvaluationPriority int    `json:"evaluationPriority" yaml:"evaluationPriority"`
}

// toRule builds an unsaved rule for procedureID.
func (in RuleInput) toRule(procedureID string) *Rule {
	r := &Rule{
		ProcedureID:        procedureID,
		StructureGroup:     in.StructureGroup,
		PriorityID:         in.PriorityID,
		DefectCodeID:       in.DefectCodeID,
		DefectTypeID:       in.DefectTypeID,
		JobpackType:        in.JobpackType,
		ElevationMin:       in.ElevationMin,
		ElevationMax:       in.ElevationMax,
		NominalThickness:   in.NominalThickness,
		ThresholdValue:     in.ThresholdValue,
		ThresholdText:      in.ThresholdText,
		ThresholdOperator:  in.ThresholdOperator,
		CustomParameters:   in.CustomParameters,
		AutoFlag:           in.AutoFlag,
		AlertMessage:       in.AlertMessage,
		EvaluationPriority: in.EvaluationPriority,
	}
	// Detach from caller-owned pointers and maps.
	return r.Clone()
}

// RulePatch is a partial rule update.
type RulePatch struct {
	// Revision, when set, must equal the stored revision or the update fails
	// with a conflict.
	Revision *int64 `json:"revision,omitempty"`

	StructureGroup   Field[string]   `json:"structureGroup"`
	PriorityID       Field[string]   `json:"priorityId"`
	DefectCodeID     Field[string]   `json:"defectCodeId"`
	DefectTypeID     Field[string]   `json:"defectTypeId"`
	JobpackType      Field[string]   `json:"jobpackType"`
	ElevationMin     Field[float64]  `json:"elevationMin"`
	ElevationMax     Field[float64]  `json:"elevationMax"`
	NominalThickness Field[float64]  `json:"nominalThickness"`
	ThresholdValue   Field[float64]  `json:"thresholdValue"`
	ThresholdText    Field[string]   `json:"thresholdText"`
	ThresholdOp      Field[Operator] `json:"thresholdOperator"`

	CustomParameters Field[map[string]ParameterCondition] `json:"customParameters"`

	AutoFlag           Field[bool]   `json:"autoFlag"`
	AlertMessage       Field[string] `json:"alertMessage"`
	EvaluationPriority Field[int]    `json:"evaluationPriority"`
}

// apply writes the patch onto r. Assigning a threshold value clears the
// threshold text and vice versa; assigning both in one patch is rejected.
func (p RulePatch) apply(op string, r *Rule) error {
	if p.ThresholdValue.Value != nil && p.ThresholdText.Value != nil {
		return ValidationError(op, "thresholdValue and thresholdText are mutually exclusive")
	}

	applyString(&r.StructureGroup, p.StructureGroup)
	applyString(&r.PriorityID, p.PriorityID)
	applyString(&r.DefectCodeID, p.DefectCodeID)
	applyString(&r.DefectTypeID, p.DefectTypeID)
	applyString(&r.JobpackType, p.JobpackType)
	applyPtr(&r.ElevationMin, p.ElevationMin)
	applyPtr(&r.ElevationMax, p.ElevationMax)
	applyPtr(&r.NominalThickness, p.NominalThickness)

	applyPtr(&r.ThresholdValue, p.ThresholdValue)
	applyPtr(&r.ThresholdText, p.ThresholdText)
	if p.ThresholdValue.Value != nil {
		r.ThresholdText = nil
	}
	if p.ThresholdText.Value != nil {
		r.ThresholdValue = nil
	}
	if p.ThresholdOp.Set {
		if p.ThresholdOp.Value == nil {
			r.ThresholdOperator = ""
		} else {
			r.ThresholdOperator = *p.ThresholdOp.Value
		}
	}

	if p.CustomParameters.Set {
		if p.CustomParameters.Value == nil {
			r.CustomParameters = nil
		} else {
			r.CustomParameters = (&Rule{CustomParameters: *p.CustomParameters.Value}).Clone().CustomParameters
		}
	}

	if p.AutoFlag.Set {
		r.AutoFlag = p.AutoFlag.Value != nil && *p.AutoFlag.Value
	}
	applyString(&r.AlertMessage, p.AlertMessage)
	if p.EvaluationPriority.Set {
		r.EvaluationPriority = 0
		if p.EvaluationPriority.Value != nil {
			r.EvaluationPriority = *p.EvaluationPriority.Value
		}
	}
	return nil
}

// ProcedureInput carries the fields of a new procedure. A zero Version asks
// for the next version of Number; an empty Status means draft.
type ProcedureInput struct {
	Number           string                      `json:"procedureNumber" yaml:"procedureNumber"`
	Name             string                      `json:"procedureName" yaml:"procedureName"`
	Version          int                         `json:"version,omitempty" yaml:"version,omitempty"`
	Status           ProcedureStatus             `json:"status,omitempty" yaml:"status,omitempty"`
	EffectiveDate    string                      `json:"effectiveDate,omitempty" yaml:"effectiveDate,omitempty"`
	Notes            string                      `json:"notes,omitempty" yaml:"notes,omitempty"`
	CustomParameters []CustomParameterDefinition `json:"customParameters,omitempty" yaml:"customParameters,omitempty"`
}

// ProcedurePatch is a partial procedure update. Number and version are
// immutable once assigned.
type ProcedurePatch struct {
	Revision *int64 `json:"revision,omitempty"`

	Name             Field[string]                      `json:"procedureName"`
	Status           Field[ProcedureStatus]             `json:"status"`
	EffectiveDate    Field[string]                      `json:"effectiveDate"`
	Notes            Field[string]                      `json:"notes"`
	CustomParameters Field[[]CustomParameterDefinition] `json:"customParameters"`
}

func (p ProcedurePatch) apply(op string, proc *Procedure) error {
	if p.Status.Set {
		if p.Status.Value == nil || !p.Status.Value.IsValid() {
			return ValidationError(op, "status must be one of draft, active, archived")
		}
		proc.Status = *p.Status.Value
	}
	applyString(&proc.Name, p.Name)
	applyString(&proc.EffectiveDate, p.EffectiveDate)
	applyString(&proc.Notes, p.Notes)
	if p.CustomParameters.Set {
		if p.CustomParameters.Value == nil {
			proc.CustomParameters = nil
		} else {
			proc.CustomParameters = (&Procedure{CustomParameters: *p.CustomParameters.Value}).Clone().CustomParameters
		}
	}
	return nil
}
