package criteria

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProcedureDefaults(t *testing.T) {
	en, _ := newTestEngine(t)
	ctx := context.Background()

	p, err := en.CreateProcedure(ctx, ProcedureInput{Number: "DC-100", Name: "Pipeline criteria"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, StatusDraft, p.Status)
	assert.EqualValues(t, 1, p.Revision)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestCreateProcedureVersioning(t *testing.T) {
	en, _ := newTestEngine(t)
	ctx := context.Background()

	v1, err := en.CreateProcedure(ctx, ProcedureInput{Number: "DC-100", Name: "Criteria"})
	require.NoError(t, err)
	v2, err := en.CreateProcedure(ctx, ProcedureInput{Number: "DC-100", Name: "Criteria rev B"})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)

	v5, err := en.CreateProcedure(ctx, ProcedureInput{Number: "DC-100", Name: "Criteria rev E", Version: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, v5.Version)

	_, err = en.CreateProcedure(ctx, ProcedureInput{Number: "DC-100", Name: "Backdated", Version: 3})
	assert.True(t, IsValidation(err))

	other, err := en.CreateProcedure(ctx, ProcedureInput{Number: "DC-200", Name: "Other"})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Version)

	procs, err := en.ListProcedures(ctx)
	require.NoError(t, err)
	require.Len(t, procs, 4)
	assert.Equal(t, []int{1, 2, 5, 1}, []int{procs[0].Version, procs[1].Version, procs[2].Version, procs[3].Version})
	assert.Equal(t, "DC-200", procs[3].Number)
}

func TestCreateProcedureValidation(t *testing.T) {
	en, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   ProcedureInput
	}{
		{"missing number", ProcedureInput{Name: "x"}},
		{"missing name", ProcedureInput{Number: "DC-1"}},
		{"negative version", ProcedureInput{Number: "DC-1", Name: "x", Version: -1}},
		{"unknown status", ProcedureInput{Number: "DC-1", Name: "x", Status: "retired"}},
		{"bad effective date", ProcedureInput{Number: "DC-1", Name: "x", EffectiveDate: "03/04/2025"}},
		{"bad parameter name", ProcedureInput{Number: "DC-1", Name: "x", CustomParameters: []CustomParameterDefinition{
			{Name: "wall-loss", Type: ParameterNumber},
		}}},
		{"reserved parameter name", ProcedureInput{Number: "DC-1", Name: "x", CustomParameters: []CustomParameterDefinition{
			{Name: "null", Type: ParameterNumber},
		}}},
		{"duplicate parameter", ProcedureInput{Number: "DC-1", Name: "x", CustomParameters: []CustomParameterDefinition{
			{Name: "depth", Type: ParameterNumber},
			{Name: "depth", Type: ParameterText},
		}}},
		{"unknown parameter type", ProcedureInput{Number: "DC-1", Name: "x", CustomParameters: []CustomParameterDefinition{
			{Name: "depth", Type: "date"},
		}}},
		{"uncompilable validation rule", ProcedureInput{Number: "DC-1", Name: "x", CustomParameters: []CustomParameterDefinition{
			{Name: "depth", Type: ParameterNumber, ValidationRules: []string{"value >"}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := en.CreateProcedure(ctx, tt.in)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}

	procs, err := en.ListProcedures(ctx)
	require.NoError(t, err)
	assert.Empty(t, procs)
}

func TestCreateProcedureEffectiveDate(t *testing.T) {
	en, _ := newTestEngine(t)
	p, err := en.CreateProcedure(context.Background(), ProcedureInput{Number: "DC-1", Name: "x", EffectiveDate: "2025-03-04"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04", p.EffectiveDate)
}

func TestUpdateProcedureRejectsPlaceholderIDs(t *testing.T) {
	en, _ := newTestEngine(t)
	mustCreateProcedure(t, en)

	for _, id := range []string{"", "  ", "undefined", "null", "NULL", "not-a-procedure"} {
		_, err := en.UpdateProcedure(context.Background(), id, ProcedurePatch{Status: SetTo(StatusActive)})
		assert.True(t, IsValidation(err), "id %q: got %v", id, err)
		assert.False(t, IsNotFound(err))
	}
}

func TestUpdateProcedureStatus(t *testing.T) {
	en, _ := newTestEngine(t)
	ctx := context.Background()
	a := mustCreateProcedure(t, en)
	b, err := en.CreateProcedure(ctx, ProcedureInput{Number: "DC-001", Name: "Rev B"})
	require.NoError(t, err)

	_, err = en.UpdateProcedure(ctx, a.ID, ProcedurePatch{Status: SetTo(StatusActive)})
	require.NoError(t, err)
	updated, err := en.UpdateProcedure(ctx, b.ID, ProcedurePatch{Status: SetTo(StatusActive)})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, updated.Status)

	// Activating b leaves a untouched.
	stillActive, err := en.GetProcedure(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stillActive.Status)

	_, err = en.UpdateProcedure(ctx, a.ID, ProcedurePatch{Status: SetTo(ProcedureStatus("published"))})
	assert.True(t, IsValidation(err))
}

func TestUpdateProcedurePartialFields(t *testing.T) {
	en, _ := newTestEngine(t)
	ctx := context.Background()
	p := mustCreateProcedure(t, en)

	updated, err := en.UpdateProcedure(ctx, p.ID, ProcedurePatch{
		Notes:         SetTo("Issued for review"),
		EffectiveDate: SetTo("2025-01-31"),
	})
	require.NoError(t, err)
	assert.Equal(t, p.Name, updated.Name)
	assert.Equal(t, p.Version, updated.Version)
	assert.Equal(t, "Issued for review", updated.Notes)
	assert.Equal(t, "2025-01-31", updated.EffectiveDate)
	assert.Equal(t, p.Revision+1, updated.Revision)

	_, err = en.UpdateProcedure(ctx, p.ID, ProcedurePatch{Name: Null[string]()})
	assert.True(t, IsValidation(err))
}

func TestUpdateProcedureRevisionConflict(t *testing.T) {
	en, _ := newTestEngine(t)
	ctx := context.Background()
	p := mustCreateProcedure(t, en)

	stale := p.Revision
	_, err := en.UpdateProcedure(ctx, p.ID, ProcedurePatch{Revision: &stale, Notes: SetTo("a")})
	require.NoError(t, err)
	_, err = en.UpdateProcedure(ctx, p.ID, ProcedurePatch{Revision: &stale, Notes: SetTo("b")})
	assert.True(t, IsConflict(err))
}
