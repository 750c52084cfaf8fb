package activation

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/liamcoop/defectcriteria/criteria"
)

// Selection records which procedure is active for an evaluation context.
type Selection struct {
	ContextKey  string    `json:"contextKey"`
	ProcedureID string    `json:"procedureId"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SelectionStore persists selections.
type SelectionStore interface {
	GetSelections(ctx context.Context) ([]Selection, error)
	// PutSelection creates or replaces the selection for sel.ContextKey and
	// sets sel.UpdatedAt.
	PutSelection(ctx context.Context, sel *Selection) error
}

// MemorySelectionStore implements SelectionStore in memory.
type MemorySelectionStore struct {
	selections map[string]Selection
	mu         sync.RWMutex
}

// NewMemorySelectionStore creates an empty in-memory selection store.
func NewMemorySelectionStore() *MemorySelectionStore {
	return &MemorySelectionStore{selections: make(map[string]Selection)}
}

func (s *MemorySelectionStore) GetSelections(ctx context.Context) ([]Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Selection, 0, len(s.selections))
	for _, sel := range s.selections {
		out = append(out, sel)
	}
	sortSelections(out)
	return out, nil
}

func (s *MemorySelectionStore) PutSelection(ctx context.Context, sel *Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel.UpdatedAt = time.Now().UTC()
	s.selections[sel.ContextKey] = *sel
	return nil
}

// PostgresSelectionStore implements SelectionStore over the
// active_procedures table.
type PostgresSelectionStore struct {
	db *sql.DB
}

// NewPostgresSelectionStore creates a PostgreSQL-backed selection store.
func NewPostgresSelectionStore(db *sql.DB) *PostgresSelectionStore {
	return &PostgresSelectionStore{db: db}
}

func (s *PostgresSelectionStore) GetSelections(ctx context.Context) ([]Selection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT context_key, procedure_id, updated_at
		FROM active_procedures
		ORDER BY context_key ASC
	`)
	if err != nil {
		return nil, criteria.DependencyError("GetSelections", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var sel Selection
		if err := rows.Scan(&sel.ContextKey, &sel.ProcedureID, &sel.UpdatedAt); err != nil {
			return nil, criteria.DependencyError("GetSelections", err)
		}
		out = append(out, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, criteria.DependencyError("GetSelections", err)
	}
	return out, nil
}

func (s *PostgresSelectionStore) PutSelection(ctx context.Context, sel *Selection) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO active_procedures (context_key, procedure_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (context_key) DO UPDATE
		SET procedure_id = EXCLUDED.procedure_id, updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`, sel.ContextKey, sel.ProcedureID).Scan(&sel.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return criteria.NotFoundError("PutSelection", "procedure", sel.ProcedureID)
		}
		return criteria.DependencyError("PutSelection", err)
	}
	return nil
}

func sortSelections(sels []Selection) {
	slices.SortFunc(sels, func(a, b Selection) int {
		return strings.Compare(a.ContextKey, b.ContextKey)
	})
}
