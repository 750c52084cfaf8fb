package criteria

// Matches reports whether rule's conditions are all satisfied by finding.
//
// The check is pure: it reads only its arguments and never fails. Type
// mismatches between threshold and finding value (a numeric threshold
// against non-numeric text) make the rule not apply rather than error.
//
// Conditions, all of which must hold:
//  1. structure group is the wildcard or equals the finding's (case-sensitive)
//  2. defect code and defect type equal the finding's
//  3. job-pack type, when set on both rule and finding, is equal
//  4. elevation lies within the inclusive bounds; a finding without
//     elevation fails any bound
//  5. the threshold condition holds, if the rule has one
//  6. every custom parameter condition holds against the finding's value of
//     the same name; a missing value fails
func Matches(rule *Rule, finding *Finding) bool {
	if rule == nil || finding == nil {
		return false
	}

	if rule.StructureGroup != AllStructureGroups && rule.StructureGroup != finding.StructureGroup {
		return false
	}

	if rule.DefectCodeID != finding.DefectCode || rule.DefectTypeID != finding.DefectType {
		return false
	}

	if rule.JobpackType != "" && finding.JobpackType != "" && rule.JobpackType != finding.JobpackType {
		return false
	}

	if !elevationWithin(rule.ElevationMin, rule.ElevationMax, finding.Elevation) {
		return false
	}

	if !thresholdHolds(rule.ThresholdOperator, rule.ThresholdValue, rule.ThresholdText, finding.Value) {
		return false
	}

	for name, cond := range rule.CustomParameters {
		actual, ok := finding.CustomParameters[name]
		if !ok || !actual.IsSet() {
			return false
		}
		if !thresholdHolds(cond.Operator, cond.Value, cond.Text, actual) {
			return false
		}
	}

	return true
}

func elevationWithin(lo, hi, elevation *float64) bool {
	if lo == nil && hi == nil {
		return true
	}
	if elevation == nil {
		return false
	}
	if lo != nil && *elevation < *lo {
		return false
	}
	if hi != nil && *elevation > *hi {
		return false
	}
	return true
}

// thresholdHolds evaluates a single threshold condition. With neither value
// nor text set the condition is vacuously true.
func thresholdHolds(op Operator, value *float64, text *string, actual Measurement) bool {
	switch {
	case value != nil:
		f, ok := actual.Float()
		if !ok {
			return false
		}
		return compareNumbers(op, f, *value)
	case text != nil:
		if !actual.IsSet() {
			return false
		}
		return compareText(op, actual.String(), *text)
	default:
		return true
	}
}
