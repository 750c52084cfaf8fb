package criteria

import (
	"cmp"
	"slices"
)

// SortRules orders rules for evaluation: evaluationPriority descending, then
// ruleOrder ascending. Both stores and the evaluator rely on this order, so
// it is the only place it is defined.
func SortRules(rules []*Rule) {
	slices.SortStableFunc(rules, compareRules)
}

func compareRules(a, b *Rule) int {
	if c := cmp.Compare(b.EvaluationPriority, a.EvaluationPriority); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RuleOrder, b.RuleOrder); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// sortProcedures orders by procedure number, then version.
func sortProcedures(procs []*Procedure) {
	slices.SortFunc(procs, func(a, b *Procedure) int {
		if c := cmp.Compare(a.Number, b.Number); c != 0 {
			return c
		}
		return cmp.Compare(a.Version, b.Version)
	})
}
