package criteria

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// isPlaceholderID reports ids that callers send when they have no id at all.
func isPlaceholderID(id string) bool {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "", "undefined", "null":
		return true
	}
	return false
}

// CreateProcedure stores a new procedure. Status defaults to draft and the
// version to one past the highest existing version of the same number.
func (en *Engine) CreateProcedure(ctx context.Context, in ProcedureInput) (p *Procedure, err error) {
	const op = "CreateProcedure"
	defer func() { en.observer.ObserveMutation(op, err) }()

	if blank(in.Number) {
		return nil, ValidationError(op, "procedureNumber is required")
	}
	if in.Version < 0 {
		return nil, ValidationError(op, "version must be positive")
	}

	highest, err := en.store.MaxProcedureVersion(ctx, in.Number)
	if err != nil {
		return nil, err
	}
	version := in.Version
	switch {
	case version == 0:
		version = highest + 1
	case version <= highest:
		return nil, ValidationError(op, "version %d of procedure %s must be greater than %d", version, in.Number, highest)
	}

	status := in.Status
	if status == "" {
		status = StatusDraft
	}

	p = (&Procedure{
		ID:               uuid.NewString(),
		Number:           in.Number,
		Name:             in.Name,
		Version:          version,
		Status:           status,
		EffectiveDate:    in.EffectiveDate,
		Notes:            in.Notes,
		CustomParameters: in.CustomParameters,
	}).Clone()
	if err := validateProcedure(op, p, en.params); err != nil {
		return nil, err
	}
	if err := en.store.InsertProcedure(ctx, p); err != nil {
		return nil, err
	}

	en.log.InfoContext(ctx, "procedure created",
		"procedure_id", p.ID,
		"procedure_number", p.Number,
		"version", p.Version,
		"status", p.Status,
	)
	return p, nil
}

// UpdateProcedure applies patch to an existing procedure. Ids that are blank,
// placeholders or unknown are rejected as validation errors. Activating a
// procedure never changes the status of other procedures.
func (en *Engine) UpdateProcedure(ctx context.Context, id string, patch ProcedurePatch) (p *Procedure, err error) {
	const op = "UpdateProcedure"
	defer func() { en.observer.ObserveMutation(op, err) }()

	if isPlaceholderID(id) {
		return nil, ValidationError(op, "invalid procedure id %q", id)
	}
	p, err = en.store.GetProcedure(ctx, id)
	if IsNotFound(err) {
		return nil, ValidationError(op, "procedure %q does not exist", id)
	}
	if err != nil {
		return nil, err
	}

	expected := p.Revision
	if patch.Revision != nil && *patch.Revision != expected {
		return nil, ConflictError(op, "procedure %s is at revision %d, not %d", id, expected, *patch.Revision)
	}
	if err := patch.apply(op, p); err != nil {
		return nil, err
	}
	if err := validateProcedure(op, p, en.params); err != nil {
		return nil, err
	}
	if err := en.store.PatchProcedure(ctx, p, expected); err != nil {
		return nil, err
	}

	en.log.InfoContext(ctx, "procedure updated", "procedure_id", p.ID, "status", p.Status, "revision", p.Revision)
	return p, nil
}

// GetProcedure returns a single procedure.
func (en *Engine) GetProcedure(ctx context.Context, id string) (*Procedure, error) {
	return en.store.GetProcedure(ctx, id)
}

// ListProcedures returns all procedures ordered by number, then version.
func (en *Engine) ListProcedures(ctx context.Context) ([]*Procedure, error) {
	return en.store.GetProcedures(ctx)
}
