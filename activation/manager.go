// Package activation keeps the explicit active-procedure selection per
// evaluation context, such as "platform" or "pipeline", and routes findings
// to the selected procedure.
package activation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/liamcoop/defectcriteria/criteria"
)

var contextKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,99}$`)

// Evaluator is the part of criteria.Engine the manager depends on.
type Evaluator interface {
	GetProcedure(ctx context.Context, id string) (*criteria.Procedure, error)
	Evaluate(ctx context.Context, procedureID string, finding *criteria.Finding) (*criteria.EvaluationResult, error)
}

// Manager manages active-procedure selections. Selections are held in memory
// and written through to the SelectionStore.
type Manager struct {
	engine     Evaluator
	store      SelectionStore
	selections map[string]Selection
	log        *slog.Logger
	mu         sync.RWMutex
}

// NewManager creates a new manager instance. Call Load to pick up persisted
// selections.
func NewManager(engine Evaluator, store SelectionStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		engine:     engine,
		store:      store,
		selections: make(map[string]Selection),
		log:        log.With("component", "activation_manager"),
	}
}

// Load replaces the in-memory selections with the persisted ones.
func (m *Manager) Load(ctx context.Context) error {
	sels, err := m.store.GetSelections(ctx)
	if err != nil {
		return fmt.Errorf("failed to load selections: %w", err)
	}

	loaded := make(map[string]Selection, len(sels))
	for _, sel := range sels {
		loaded[sel.ContextKey] = sel
	}

	m.mu.Lock()
	m.selections = loaded
	m.mu.Unlock()

	m.log.InfoContext(ctx, "selections loaded", "count", len(loaded))
	return nil
}

// Select makes procedureID the active procedure for contextKey. The
// procedure must exist and have status active.
func (m *Manager) Select(ctx context.Context, contextKey, procedureID string) (Selection, error) {
	const op = "Select"
	if !contextKeyPattern.MatchString(contextKey) {
		return Selection{}, criteria.ValidationError(op, "invalid context key %q", contextKey)
	}

	proc, err := m.engine.GetProcedure(ctx, procedureID)
	if err != nil {
		return Selection{}, err
	}
	if proc.Status != criteria.StatusActive {
		return Selection{}, criteria.ValidationError(op, "procedure %s v%d is %s, not active", proc.Number, proc.Version, proc.Status)
	}

	sel := Selection{ContextKey: contextKey, ProcedureID: proc.ID}
	if err := m.store.PutSelection(ctx, &sel); err != nil {
		return Selection{}, err
	}

	m.mu.Lock()
	m.selections[contextKey] = sel
	m.mu.Unlock()

	m.log.InfoContext(ctx, "procedure selected",
		"context_key", contextKey,
		"procedure_id", proc.ID,
		"procedure_number", proc.Number,
		"version", proc.Version,
	)
	return sel, nil
}

// Active returns the selection for contextKey.
func (m *Manager) Active(ctx context.Context, contextKey string) (Selection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sel, ok := m.selections[contextKey]
	if !ok {
		return Selection{}, criteria.NotFoundError("Active", "selection for context", contextKey)
	}
	return sel, nil
}

// Evaluate evaluates finding against the procedure selected for contextKey.
// A selected procedure that is no longer active is a conflict; the context
// needs a new selection.
func (m *Manager) Evaluate(ctx context.Context, contextKey string, finding *criteria.Finding) (*criteria.EvaluationResult, error) {
	sel, err := m.Active(ctx, contextKey)
	if err != nil {
		return nil, err
	}

	proc, err := m.engine.GetProcedure(ctx, sel.ProcedureID)
	if err != nil {
		return nil, err
	}
	if proc.Status != criteria.StatusActive {
		return nil, criteria.ConflictError("Evaluate", "procedure %s selected for %q is %s", proc.ID, contextKey, proc.Status)
	}

	return m.engine.Evaluate(ctx, proc.ID, finding)
}

// List returns all selections ordered by context key.
func (m *Manager) List() []Selection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Selection, 0, len(m.selections))
	for _, sel := range m.selections {
		out = append(out, sel)
	}
	sortSelections(out)
	return out
}
