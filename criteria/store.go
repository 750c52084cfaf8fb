package criteria

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Store persists procedures and rules. Every write touches a single record
// and is atomic. Implementations return *Error values: ErrNotFound for
// missing records, ErrConflict for revision mismatches and uniqueness
// violations, ErrDependency for backend failures.
type Store interface {
	// GetProcedures returns all procedures ordered by number, then version.
	GetProcedures(ctx context.Context) ([]*Procedure, error)

	GetProcedure(ctx context.Context, id string) (*Procedure, error)

	// InsertProcedure stores p, setting its revision and timestamps. A
	// duplicate (number, version) pair is a conflict.
	InsertProcedure(ctx context.Context, p *Procedure) error

	// PatchProcedure replaces the stored procedure if its revision still
	// equals expectedRevision, then bumps p.Revision.
	PatchProcedure(ctx context.Context, p *Procedure, expectedRevision int64) error

	// MaxProcedureVersion returns the highest version stored for number, or
	// 0 if there is none.
	MaxProcedureVersion(ctx context.Context, number string) (int, error)

	// GetRules returns the rules of a procedure sorted with SortRules.
	GetRules(ctx context.Context, procedureID string) ([]*Rule, error)

	GetRule(ctx context.Context, id string) (*Rule, error)

	// InsertRule stores r, assigning RuleOrder from a strictly increasing
	// counter along with revision and timestamps.
	InsertRule(ctx context.Context, r *Rule) error

	// PatchRule replaces the stored rule if its revision still equals
	// expectedRevision. RuleOrder and CreatedAt are preserved.
	PatchRule(ctx context.Context, r *Rule, expectedRevision int64) error

	DeleteRule(ctx context.Context, id string) error
}

// MemoryStore implements Store with in-memory maps. Values are copied in and
// out, so callers never share state with the store.
type MemoryStore struct {
	procedures map[string]*Procedure
	rules      map[string]*Rule
	ruleSeq    atomic.Int64
	mu         sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		procedures: make(map[string]*Procedure),
		rules:      make(map[string]*Rule),
	}
}

func (s *MemoryStore) GetProcedures(ctx context.Context) ([]*Procedure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	procs := make([]*Procedure, 0, len(s.procedures))
	for _, p := range s.procedures {
		procs = append(procs, p.Clone())
	}
	sortProcedures(procs)
	return procs, nil
}

func (s *MemoryStore) GetProcedure(ctx context.Context, id string) (*Procedure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.procedures[id]
	if !ok {
		return nil, NotFoundError("GetProcedure", "procedure", id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) InsertProcedure(ctx context.Context, p *Procedure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.procedures[p.ID]; exists {
		return ConflictError("InsertProcedure", "procedure %s already exists", p.ID)
	}
	for _, existing := range s.procedures {
		if existing.Number == p.Number && existing.Version == p.Version {
			return ConflictError("InsertProcedure", "procedure %s version %d already exists", p.Number, p.Version)
		}
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Revision = 1
	s.procedures[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) PatchProcedure(ctx context.Context, p *Procedure, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.procedures[p.ID]
	if !ok {
		return NotFoundError("PatchProcedure", "procedure", p.ID)
	}
	if existing.Revision != expectedRevision {
		return ConflictError("PatchProcedure", "procedure %s was modified concurrently (revision %d, expected %d)", p.ID, existing.Revision, expectedRevision)
	}

	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Revision = existing.Revision + 1
	s.procedures[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) MaxProcedureVersion(ctx context.Context, number string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for _, p := range s.procedures {
		if p.Number == number && p.Version > highest {
			highest = p.Version
		}
	}
	return highest, nil
}

func (s *MemoryStore) GetRules(ctx context.Context, procedureID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []*Rule
	for _, r := range s.rules {
		if r.ProcedureID == procedureID {
			rules = append(rules, r.Clone())
		}
	}
	SortRules(rules)
	return rules, nil
}

func (s *MemoryStore) GetRule(ctx context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, NotFoundError("GetRule", "rule", id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) InsertRule(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[r.ID]; exists {
		return ConflictError("InsertRule", "rule %s already exists", r.ID)
	}
	if _, ok := s.procedures[r.ProcedureID]; !ok {
		return NotFoundError("InsertRule", "procedure", r.ProcedureID)
	}

	now := time.Now().UTC()
	r.RuleOrder = s.ruleSeq.Add(1)
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Revision = 1
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) PatchRule(ctx context.Context, r *Rule, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[r.ID]
	if !ok {
		return NotFoundError("PatchRule", "rule", r.ID)
	}
	if existing.Revision != expectedRevision {
		return ConflictError("PatchRule", "rule %s was modified concurrently (revision %d, expected %d)", r.ID, existing.Revision, expectedRevision)
	}

	r.ProcedureID = existing.ProcedureID
	r.RuleOrder = existing.RuleOrder
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.Revision = existing.Revision + 1
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return NotFoundError("DeleteRule", "rule", id)
	}
	delete(s.rules, id)
	return nil
}
