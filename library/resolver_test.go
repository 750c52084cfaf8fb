package library

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/defectcriteria/criteria"
)

// countingClient counts collaborator calls and can be switched to fail.
type countingClient struct {
	*MemoryClient
	calls atomic.Int64
	fail  atomic.Bool
}

func (c *countingClient) GetLibraryItems(ctx context.Context, collection Collection) ([]Item, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return c.MemoryClient.GetLibraryItems(ctx, collection)
}

func (c *countingClient) GetColorCombo(ctx context.Context, code string) ([]Combo, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return c.MemoryClient.GetColorCombo(ctx, code)
}

func seededClient(t *testing.T) *countingClient {
	t.Helper()
	mc := NewMemoryClient()
	require.NoError(t, mc.PutItems(Priority,
		Item{ID: "P1", Description: "Priority 1 - Immediate"},
		Item{ID: "P2", Description: "Priority 2 - Planned"},
		Item{ID: "P9", Description: "Retired priority", Deleted: true},
	))
	require.NoError(t, mc.PutItems(DefectCode, Item{ID: "CORR", Description: "Corrosion"}, Item{ID: "CRACK", Description: "Cracking"}))
	require.NoError(t, mc.PutItems(DefectType,
		Item{ID: "PITTING", Description: "Pitting", ParentID: "CORR"},
		Item{ID: "GENERAL", Description: "General corrosion", ParentID: "CORR"},
		Item{ID: "OLD", Description: "Obsolete type", ParentID: "CORR", Deleted: true},
		Item{ID: "FATIGUE", Description: "Fatigue crack", ParentID: "CRACK"},
	))
	require.NoError(t, mc.PutItems(Color,
		Item{ID: "RED", Description: "255,0,0"},
		Item{ID: "AMBER", Description: "#ffbf00"},
		Item{ID: "GREY", Description: "128,128,128", Deleted: true},
		Item{ID: "BAD", Description: "not a color"},
	))
	mc.PutCombos(PriorityColorCombo,
		Combo{Code1: "P1", Code2: "GREY"},
		Combo{Code1: "P1", Code2: "RED"},
		Combo{Code1: "P2", Code2: "RED", Deleted: 1},
		Combo{Code1: "P2", Code2: "AMBER"},
		Combo{Code1: "P9", Code2: "BAD"},
	)
	return &countingClient{MemoryClient: mc}
}

func newTestResolver(client Client, ttl time.Duration) *Resolver {
	return NewResolver(client, ttl, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolveLabel(t *testing.T) {
	r := newTestResolver(seededClient(t), 0)
	ctx := context.Background()

	assert.Equal(t, "Priority 1 - Immediate", r.ResolveLabel(ctx, Priority, "P1"))
	assert.Equal(t, "Corrosion", r.ResolveLabel(ctx, DefectCode, "CORR"))
	assert.Equal(t, "Retired priority", r.ResolveLabel(ctx, Priority, "P9"), "deleted items still resolve")
	assert.Equal(t, Unknown, r.ResolveLabel(ctx, Priority, "P404"))
	assert.Equal(t, Unknown, r.ResolveLabel(ctx, Priority, ""))
	assert.Equal(t, Unknown, r.ResolveLabel(ctx, StructureGroup, "Jacket"))
}

func TestResolveLabelCollaboratorFailure(t *testing.T) {
	client := seededClient(t)
	client.fail.Store(true)
	r := newTestResolver(client, 0)

	assert.Equal(t, Unknown, r.ResolveLabel(context.Background(), Priority, "P1"))
}

func TestResolveColor(t *testing.T) {
	r := newTestResolver(seededClient(t), 0)
	ctx := context.Background()

	rgb, ok := r.ResolveColor(ctx, "P1")
	require.True(t, ok, "deleted color item is skipped in favor of the live one")
	assert.Equal(t, RGB{R: 255}, rgb)

	rgb, ok = r.ResolveColor(ctx, "P2")
	require.True(t, ok, "deleted combo row is skipped")
	assert.Equal(t, "#ffbf00", rgb.Hex())

	_, ok = r.ResolveColor(ctx, "P9")
	assert.False(t, ok, "unparseable color")

	_, ok = r.ResolveColor(ctx, "P404")
	assert.False(t, ok)
}

func TestDefectTypeBelongsTo(t *testing.T) {
	r := newTestResolver(seededClient(t), 0)
	ctx := context.Background()

	tests := []struct {
		code, defectType string
		want             bool
	}{
		{"CORR", "PITTING", true},
		{"CORR", "GENERAL", true},
		{"CRACK", "FATIGUE", true},
		{"CRACK", "PITTING", false},
		{"CORR", "OLD", false},
		{"CORR", "MISSING", false},
	}
	for _, tt := range tests {
		got, err := r.DefectTypeBelongsTo(ctx, tt.code, tt.defectType)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.code, tt.defectType)
	}
}

func TestDefectTypeBelongsToCollaboratorFailure(t *testing.T) {
	client := seededClient(t)
	client.fail.Store(true)
	r := newTestResolver(client, 0)

	_, err := r.DefectTypeBelongsTo(context.Background(), "CORR", "PITTING")
	require.Error(t, err)
	assert.True(t, criteria.IsDependency(err))
}

func TestResolverCachesCollections(t *testing.T) {
	client := seededClient(t)
	r := newTestResolver(client, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.ResolveLabel(ctx, Priority, "P1")
	}
	assert.EqualValues(t, 1, client.calls.Load())

	r.Flush()
	r.ResolveLabel(ctx, Priority, "P1")
	assert.EqualValues(t, 2, client.calls.Load())
}

func TestResolverCacheExpires(t *testing.T) {
	client := seededClient(t)
	r := newTestResolver(client, 20*time.Millisecond)
	ctx := context.Background()

	r.ResolveLabel(ctx, Priority, "P1")
	time.Sleep(40 * time.Millisecond)
	r.ResolveLabel(ctx, Priority, "P1")
	assert.EqualValues(t, 2, client.calls.Load())
}

func TestLabelRule(t *testing.T) {
	r := newTestResolver(seededClient(t), 0)

	labels := r.LabelRule(context.Background(), &criteria.Rule{
		StructureGroup: criteria.AllStructureGroups,
		PriorityID:     "P1",
		DefectCodeID:   "CORR",
		DefectTypeID:   "PITTING",
	})
	assert.Equal(t, RuleLabels{
		Priority:       "Priority 1 - Immediate",
		DefectCode:     "Corrosion",
		DefectType:     "Pitting",
		StructureGroup: criteria.AllStructureGroups,
		Color:          "#ff0000",
	}, labels)
}

func TestEngineUsesResolverForTaxonomy(t *testing.T) {
	r := newTestResolver(seededClient(t), 0)
	en, err := criteria.NewEngine(criteria.NewMemoryStore(),
		criteria.WithTaxonomy(r),
		criteria.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	ctx := context.Background()

	p, err := en.CreateProcedure(ctx, criteria.ProcedureInput{Number: "DC-1", Name: "Criteria"})
	require.NoError(t, err)

	in := criteria.RuleInput{
		StructureGroup: "Jacket",
		PriorityID:     "P1",
		DefectCodeID:   "CORR",
		DefectTypeID:   "FATIGUE",
		AlertMessage:   "mismatch",
	}
	_, err = en.CreateRule(ctx, p.ID, in)
	assert.True(t, criteria.IsValidation(err))

	in.DefectCodeID = "CRACK"
	_, err = en.CreateRule(ctx, p.ID, in)
	assert.NoError(t, err)
}

func TestMemoryClientRejectsUnknownCollection(t *testing.T) {
	assert.Error(t, NewMemoryClient().PutItems("ANOMALY", Item{ID: "x"}))
}
