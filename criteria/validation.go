package criteria

import (
	"context"
	"math"
	"strings"
	"time"
)

// DateLayout is the wire format of a procedure's effective date.
const DateLayout = "2006-01-02"

// TaxonomyChecker answers whether a defect type belongs to a defect code's
// set of types. The library resolver implements it.
type TaxonomyChecker interface {
	DefectTypeBelongsTo(ctx context.Context, defectCodeID, defectTypeID string) (bool, error)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func invalidNumber(f *float64) bool {
	return f != nil && (math.IsNaN(*f) || math.IsInf(*f, 0))
}

// validateRule checks every invariant a rule must hold before it is stored.
func validateRule(ctx context.Context, op string, r *Rule, proc *Procedure, taxonomy TaxonomyChecker) error {
	switch {
	case blank(r.StructureGroup):
		return ValidationError(op, "structureGroup is required")
	case blank(r.PriorityID):
		return ValidationError(op, "priorityId is required")
	case blank(r.DefectCodeID):
		return ValidationError(op, "defectCodeId is required")
	case blank(r.DefectTypeID):
		return ValidationError(op, "defectTypeId is required")
	case blank(r.AlertMessage):
		return ValidationError(op, "alertMessage is required")
	}

	if invalidNumber(r.ElevationMin) || invalidNumber(r.ElevationMax) || invalidNumber(r.ThresholdValue) || invalidNumber(r.NominalThickness) {
		return ValidationError(op, "numeric fields must be finite")
	}
	if r.ElevationMin != nil && r.ElevationMax != nil && *r.ElevationMin > *r.ElevationMax {
		return ValidationError(op, "elevationMin %v is greater than elevationMax %v", *r.ElevationMin, *r.ElevationMax)
	}

	if r.ThresholdValue != nil && r.ThresholdText != nil {
		return ValidationError(op, "thresholdValue and thresholdText are mutually exclusive")
	}
	if r.ThresholdOperator != "" && !r.ThresholdOperator.IsValid() {
		return ValidationError(op, "invalid thresholdOperator %q", r.ThresholdOperator)
	}
	if r.HasThreshold() && r.ThresholdOperator == "" {
		return ValidationError(op, "thresholdOperator is required when a threshold is set")
	}

	for name, cond := range r.CustomParameters {
		def, ok := proc.Parameter(name)
		if !ok || !def.Active {
			return ValidationError(op, "custom parameter %q is not an active parameter of procedure %s", name, proc.ID)
		}
		if !cond.Operator.IsValid() {
			return ValidationError(op, "custom parameter %q: invalid operator %q", name, cond.Operator)
		}
		if cond.Value != nil && cond.Text != nil {
			return ValidationError(op, "custom parameter %q: value and text are mutually exclusive", name)
		}
		if invalidNumber(cond.Value) {
			return ValidationError(op, "custom parameter %q: value must be finite", name)
		}
		switch def.Type {
		case ParameterNumber:
			if cond.Value == nil {
				return ValidationError(op, "custom parameter %q is numeric and requires a value", name)
			}
		case ParameterText:
			if cond.Text == nil {
				return ValidationError(op, "custom parameter %q is text and requires a text", name)
			}
		}
	}

	if taxonomy != nil {
		ok, err := taxonomy.DefectTypeBelongsTo(ctx, r.DefectCodeID, r.DefectTypeID)
		if err != nil {
			if IsDependency(err) {
				return err
			}
			return DependencyError(op, err)
		}
		if !ok {
			return ValidationError(op, "defect type %q does not belong to defect code %q", r.DefectTypeID, r.DefectCodeID)
		}
	}
	return nil
}

// validateProcedure checks the stored fields of p, compiling every custom
// parameter validation rule through rules.
func validateProcedure(op string, p *Procedure, rules *ParamRules) error {
	if blank(p.Number) {
		return ValidationError(op, "procedureNumber is required")
	}
	if blank(p.Name) {
		return ValidationError(op, "procedureName is required")
	}
	if !p.Status.IsValid() {
		return ValidationError(op, "status must be one of draft, active, archived")
	}
	if p.Version < 1 {
		return ValidationError(op, "version must be positive")
	}
	if p.EffectiveDate != "" {
		if _, err := time.Parse(DateLayout, p.EffectiveDate); err != nil {
			return ValidationError(op, "effectiveDate %q must use format YYYY-MM-DD", p.EffectiveDate)
		}
	}

	seen := make(map[string]struct{}, len(p.CustomParameters))
	for _, def := range p.CustomParameters {
		if err := validateIdentifier(def.Name); err != nil {
			return ValidationError(op, "invalid custom parameter name %q: %v", def.Name, err)
		}
		if _, dup := seen[def.Name]; dup {
			return ValidationError(op, "duplicate custom parameter %q", def.Name)
		}
		seen[def.Name] = struct{}{}
		if !def.Type.IsValid() {
			return ValidationError(op, "custom parameter %q has invalid type %q", def.Name, def.Type)
		}
		for _, expr := range def.ValidationRules {
			if _, err := rules.Compile(expr); err != nil {
				return ValidationError(op, "custom parameter %q: validation rule %q: %v", def.Name, expr, err)
			}
		}
	}
	return nil
}

// validateFinding checks the required finding fields and runs the validation
// rules of the procedure's active custom parameters against the values the
// finding carries. Values for unknown or inactive parameters are ignored.
// Numeric text for number parameters is coerced before the rules see it.
func validateFinding(op string, f *Finding, proc *Procedure, rules *ParamRules) error {
	if f == nil {
		return ValidationError(op, "finding is required")
	}
	switch {
	case blank(f.StructureGroup):
		return ValidationError(op, "finding structureGroup is required")
	case blank(f.DefectCode):
		return ValidationError(op, "finding defectCode is required")
	case blank(f.DefectType):
		return ValidationError(op, "finding defectType is required")
	}

	params := make(map[string]Measurement, len(f.CustomParameters))
	for name, value := range f.CustomParameters {
		params[name] = value
		def, ok := proc.Parameter(name)
		if !ok || !def.Active || !value.IsSet() || def.Type != ParameterNumber {
			continue
		}
		n, ok := value.Float()
		if !ok {
			return ValidationError(op, "custom parameter %q must be numeric, got %q", name, value.String())
		}
		params[name] = Number(n)
	}

	for name, value := range params {
		def, ok := proc.Parameter(name)
		if !ok || !def.Active || !value.IsSet() {
			continue
		}
		if err := rules.Check(def, value, params); err != nil {
			return ValidationError(op, "custom parameter %q: %v", name, err)
		}
	}
	return nil
}
