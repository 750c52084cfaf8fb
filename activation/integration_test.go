//go:build integration

package activation_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/defectcriteria/activation"
	"github.com/liamcoop/defectcriteria/criteria"
	"github.com/liamcoop/defectcriteria/internal/testcontainer"
)

func TestPostgresSelectionStore(t *testing.T) {
	db, _ := testcontainer.Postgres(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	en, err := criteria.NewEngine(criteria.NewPostgresStore(db), criteria.WithLogger(logger))
	require.NoError(t, err)
	ctx := context.Background()

	p, err := en.CreateProcedure(ctx, criteria.ProcedureInput{Number: "DC-100", Name: "Platform criteria", Status: criteria.StatusActive})
	require.NoError(t, err)

	store := activation.NewPostgresSelectionStore(db)
	m := activation.NewManager(en, store, logger)
	sel, err := m.Select(ctx, "platform", p.ID)
	require.NoError(t, err)
	assert.False(t, sel.UpdatedAt.IsZero())

	err = store.PutSelection(ctx, &activation.Selection{ContextKey: "pipeline", ProcedureID: "missing"})
	assert.True(t, criteria.IsNotFound(err))

	restarted := activation.NewManager(en, store, logger)
	require.NoError(t, restarted.Load(ctx))
	got, err := restarted.Active(ctx, "platform")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ProcedureID)
}
