package criteria

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Evaluation outcomes reported to an Observer.
const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
	OutcomeError     = "error"
)

// Observer receives evaluation and mutation measurements. internal/metrics
// provides a Prometheus implementation.
type Observer interface {
	ObserveEvaluation(outcome string, elapsed time.Duration)
	ObserveMutation(op string, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveEvaluation(string, time.Duration) {}
func (noopObserver) ObserveMutation(string, error)           {}

// Engine is the rule repository, evaluator and procedure lifecycle over a
// Store. It is safe for concurrent use.
type Engine struct {
	store    Store
	cache    RulesCache
	taxonomy TaxonomyChecker
	params   *ParamRules
	observer Observer
	log      *slog.Logger

	loads singleflight.Group

	// generations counts invalidations per procedure so that a load started
	// before a mutation never repopulates the cache with stale rules.
	generations map[string]uint64
	genMu       sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache replaces the default in-memory rules cache.
func WithCache(c RulesCache) Option {
	return func(en *Engine) { en.cache = c }
}

// WithTaxonomy enables defect-type membership checks on rule writes.
func WithTaxonomy(t TaxonomyChecker) Option {
	return func(en *Engine) { en.taxonomy = t }
}

// WithObserver reports evaluations and mutations to o.
func WithObserver(o Observer) Option {
	return func(en *Engine) { en.observer = o }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(en *Engine) { en.log = l }
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	params, err := NewParamRules()
	if err != nil {
		return nil, err
	}

	en := &Engine{
		store:       store,
		params:      params,
		observer:    noopObserver{},
		log:         slog.Default(),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(en)
	}
	if en.cache == nil {
		en.cache = NewInMemoryRulesCache(DefaultCacheConfig())
	}
	en.log = en.log.With("component", "criteria_engine")
	return en, nil
}

func (en *Engine) generation(procedureID string) uint64 {
	en.genMu.Lock()
	defer en.genMu.Unlock()
	return en.generations[procedureID]
}

func (en *Engine) invalidate(ctx context.Context, procedureID string) {
	en.genMu.Lock()
	en.generations[procedureID]++
	en.genMu.Unlock()
	en.cache.Invalidate(ctx, procedureID)
}

// loadRules returns the canonical-ordered rules of a procedure from the
// cache, loading from the store on a miss. Concurrent misses for the same
// procedure share one store read.
func (en *Engine) loadRules(ctx context.Context, procedureID string) ([]*Rule, error) {
	if rules, ok := en.cache.Get(ctx, procedureID); ok {
		SortRules(rules)
		return rules, nil
	}

	gen := en.generation(procedureID)
	key := fmt.Sprintf("%s#%d", procedureID, gen)
	// The flight outlives any one caller: a cancelled caller stops waiting
	// but does not fail the callers that joined it.
	shared := context.WithoutCancel(ctx)
	ch := en.loads.DoChan(key, func() (any, error) {
		rules, err := en.store.GetRules(shared, procedureID)
		if err != nil {
			return nil, err
		}
		if en.generation(procedureID) == gen {
			en.cache.Set(shared, procedureID, rules)
		}
		return rules, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	// The result is shared between every caller of the flight.
	rules := cloneRules(res.Val.([]*Rule))
	SortRules(rules)
	return rules, nil
}

// ListRules returns the rules of a procedure in evaluation order.
func (en *Engine) ListRules(ctx context.Context, procedureID string) ([]*Rule, error) {
	if _, err := en.store.GetProcedure(ctx, procedureID); err != nil {
		return nil, err
	}
	return en.loadRules(ctx, procedureID)
}

// GetRule returns a single rule.
func (en *Engine) GetRule(ctx context.Context, ruleID string) (*Rule, error) {
	return en.store.GetRule(ctx, ruleID)
}

// CreateRule validates in and stores it as a new rule of procedureID.
func (en *Engine) CreateRule(ctx context.Context, procedureID string, in RuleInput) (r *Rule, err error) {
	const op = "CreateRule"
	defer func() { en.observer.ObserveMutation(op, err) }()

	proc, err := en.store.GetProcedure(ctx, procedureID)
	if err != nil {
		return nil, err
	}

	r = in.toRule(proc.ID)
	r.ID = uuid.NewString()
	if err := validateRule(ctx, op, r, proc, en.taxonomy); err != nil {
		return nil, err
	}
	if err := en.store.InsertRule(ctx, r); err != nil {
		return nil, err
	}
	en.invalidate(ctx, proc.ID)

	en.log.InfoContext(ctx, "rule created",
		"rule_id", r.ID,
		"procedure_id", proc.ID,
		"evaluation_priority", r.EvaluationPriority,
		"rule_order", r.RuleOrder,
	)
	return r, nil
}

// UpdateRule applies patch to an existing rule. The merged rule is fully
// validated before anything is written.
func (en *Engine) UpdateRule(ctx context.Context, ruleID string, patch RulePatch) (r *Rule, err error) {
	const op = "UpdateRule"
	defer func() { en.observer.ObserveMutation(op, err) }()

	r, err = en.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	expected := r.Revision
	if patch.Revision != nil && *patch.Revision != expected {
		return nil, ConflictError(op, "rule %s is at revision %d, not %d", ruleID, expected, *patch.Revision)
	}

	if err := patch.apply(op, r); err != nil {
		return nil, err
	}
	proc, err := en.store.GetProcedure(ctx, r.ProcedureID)
	if err != nil {
		return nil, err
	}
	if err := validateRule(ctx, op, r, proc, en.taxonomy); err != nil {
		return nil, err
	}
	if err := en.store.PatchRule(ctx, r, expected); err != nil {
		return nil, err
	}
	en.invalidate(ctx, r.ProcedureID)

	en.log.InfoContext(ctx, "rule updated", "rule_id", r.ID, "procedure_id", r.ProcedureID, "revision", r.Revision)
	return r, nil
}

// DeleteRule removes a rule.
func (en *Engine) DeleteRule(ctx context.Context, ruleID string) (err error) {
	const op = "DeleteRule"
	defer func() { en.observer.ObserveMutation(op, err) }()

	r, err := en.store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if err := en.store.DeleteRule(ctx, ruleID); err != nil {
		return err
	}
	en.invalidate(ctx, r.ProcedureID)

	en.log.InfoContext(ctx, "rule deleted", "rule_id", ruleID, "procedure_id", r.ProcedureID)
	return nil
}

// Evaluate returns the first rule of procedureID, in evaluation order, whose
// conditions all hold for finding. No match is a successful result with
// Matched false.
func (en *Engine) Evaluate(ctx context.Context, procedureID string, finding *Finding) (res *EvaluationResult, err error) {
	start := time.Now()
	defer func() {
		outcome := OutcomeError
		switch {
		case err != nil:
		case res.Matched:
			outcome = OutcomeMatched
		default:
			outcome = OutcomeUnmatched
		}
		en.observer.ObserveEvaluation(outcome, time.Since(start))
	}()

	rules, err := en.prepare(ctx, "Evaluate", procedureID, finding)
	if err != nil {
		return nil, err
	}

	for _, r := range rules {
		if Matches(r, finding) {
			en.log.DebugContext(ctx, "finding matched",
				"procedure_id", procedureID,
				"rule_id", r.ID,
				"auto_flag", r.AutoFlag,
			)
			return matchedResult(r), nil
		}
	}
	en.log.DebugContext(ctx, "finding matched no rule", "procedure_id", procedureID, "rules", len(rules))
	return &EvaluationResult{}, nil
}

// Explain reports whether each rule of procedureID matches finding, in
// evaluation order, along with the result Evaluate would return.
func (en *Engine) Explain(ctx context.Context, procedureID string, finding *Finding) (*Explanation, error) {
	rules, err := en.prepare(ctx, "Explain", procedureID, finding)
	if err != nil {
		return nil, err
	}

	exp := &Explanation{Outcomes: make([]RuleOutcome, 0, len(rules))}
	for _, r := range rules {
		matched := Matches(r, finding)
		exp.Outcomes = append(exp.Outcomes, RuleOutcome{
			RuleID:             r.ID,
			EvaluationPriority: r.EvaluationPriority,
			RuleOrder:          r.RuleOrder,
			Matched:            matched,
		})
		if matched && !exp.Result.Matched {
			exp.Result = *matchedResult(r)
		}
	}
	return exp, nil
}

// prepare resolves the procedure, validates the finding against it and loads
// its rules.
func (en *Engine) prepare(ctx context.Context, op, procedureID string, finding *Finding) ([]*Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proc, err := en.store.GetProcedure(ctx, procedureID)
	if err != nil {
		return nil, err
	}
	if err := validateFinding(op, finding, proc, en.params); err != nil {
		return nil, err
	}
	return en.loadRules(ctx, proc.ID)
}

func matchedResult(r *Rule) *EvaluationResult {
	return &EvaluationResult{
		Matched:      true,
		Rule:         r,
		AutoFlag:     r.AutoFlag,
		AlertMessage: r.AlertMessage,
	}
}
