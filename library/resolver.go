package library

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/liamcoop/defectcriteria/criteria"
)

// Unknown is the label of ids that do not resolve.
const Unknown = "Unknown"

// Resolver looks up labels, colors and defect taxonomy through a Client,
// caching each collection for a TTL. Lookups never fail for a missing id;
// only DefectTypeBelongsTo reports collaborator errors.
type Resolver struct {
	client Client
	cache  *gocache.Cache
	log    *slog.Logger
}

// NewResolver creates a resolver. A zero ttl caches until Flush.
func NewResolver(client Client, ttl time.Duration, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	expiration := gocache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	return &Resolver{
		client: client,
		// No janitor goroutine: expired entries are skipped on read and
		// overwritten on reload.
		cache: gocache.New(expiration, 0),
		log:   log.With("component", "library_resolver"),
	}
}

// Flush drops every cached collection.
func (r *Resolver) Flush() {
	r.cache.Flush()
}

func (r *Resolver) items(ctx context.Context, collection Collection) (map[string]Item, error) {
	key := "items:" + string(collection)
	if v, ok := r.cache.Get(key); ok {
		return v.(map[string]Item), nil
	}

	list, err := r.client.GetLibraryItems(ctx, collection)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Item, len(list))
	for _, it := range list {
		byID[it.ID] = it
	}
	r.cache.SetDefault(key, byID)
	return byID, nil
}

func (r *Resolver) combos(ctx context.Context, comboCode string) ([]Combo, error) {
	key := "combo:" + comboCode
	if v, ok := r.cache.Get(key); ok {
		return v.([]Combo), nil
	}

	list, err := r.client.GetColorCombo(ctx, comboCode)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, list)
	return list, nil
}

// ResolveLabel returns the description of id in collection, or Unknown.
// Deleted items still resolve.
func (r *Resolver) ResolveLabel(ctx context.Context, collection Collection, id string) string {
	if id == "" {
		return Unknown
	}
	items, err := r.items(ctx, collection)
	if err != nil {
		r.log.WarnContext(ctx, "library lookup failed", "collection", collection, "error", err)
		return Unknown
	}
	it, ok := items[id]
	if !ok || it.Description == "" {
		return Unknown
	}
	return it.Description
}

// ResolveColor returns the presentation color of a priority. Deleted combo
// rows and deleted color items are ignored, as are unparseable colors.
func (r *Resolver) ResolveColor(ctx context.Context, priorityID string) (RGB, bool) {
	combos, err := r.combos(ctx, PriorityColorCombo)
	if err != nil {
		r.log.WarnContext(ctx, "color combo lookup failed", "priority_id", priorityID, "error", err)
		return RGB{}, false
	}
	colors, err := r.items(ctx, Color)
	if err != nil {
		r.log.WarnContext(ctx, "color lookup failed", "priority_id", priorityID, "error", err)
		return RGB{}, false
	}

	for _, combo := range combos {
		if combo.Code1 != priorityID || combo.Deleted != 0 {
			continue
		}
		color, ok := colors[combo.Code2]
		if !ok || color.Deleted {
			continue
		}
		rgb, err := ParseColor(color.Description)
		if err != nil {
			r.log.WarnContext(ctx, "invalid library color", "color_id", color.ID, "error", err)
			continue
		}
		return rgb, true
	}
	return RGB{}, false
}

// DefectTypeBelongsTo reports whether defectTypeID is a live member of
// defectCodeID's type set. Deleted types are not eligible for new
// references.
func (r *Resolver) DefectTypeBelongsTo(ctx context.Context, defectCodeID, defectTypeID string) (bool, error) {
	types, err := r.items(ctx, DefectType)
	if err != nil {
		return false, criteria.DependencyError("DefectTypeBelongsTo", errors.Join(errors.New("defect type library unavailable"), err))
	}
	it, ok := types[defectTypeID]
	if !ok || it.Deleted {
		return false, nil
	}
	return it.ParentID == defectCodeID, nil
}

// RuleLabels is the presentation view of a rule's library references.
type RuleLabels struct {
	Priority       string `json:"priority"`
	DefectCode     string `json:"defectCode"`
	DefectType     string `json:"defectType"`
	StructureGroup string `json:"structureGroup"`
	Color          string `json:"color,omitempty"`
}

// LabelRule resolves every library reference of rule. The wildcard
// structure group is kept as is.
func (r *Resolver) LabelRule(ctx context.Context, rule *criteria.Rule) RuleLabels {
	labels := RuleLabels{
		Priority:       r.ResolveLabel(ctx, Priority, rule.PriorityID),
		DefectCode:     r.ResolveLabel(ctx, DefectCode, rule.DefectCodeID),
		DefectType:     r.ResolveLabel(ctx, DefectType, rule.DefectTypeID),
		StructureGroup: rule.StructureGroup,
	}
	if rule.StructureGroup != criteria.AllStructureGroups {
		if label := r.ResolveLabel(ctx, StructureGroup, rule.StructureGroup); label != Unknown {
			labels.StructureGroup = label
		}
	}
	if rgb, ok := r.ResolveColor(ctx, rule.PriorityID); ok {
		labels.Color = rgb.Hex()
	}
	return labels
}
