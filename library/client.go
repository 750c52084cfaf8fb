// Package library resolves the externally managed reference data that rules
// point at: priorities, defect codes and types, structure groups and colors.
package library

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Collection identifies a library item set.
type Collection string

const (
	Priority       Collection = "PRIORITY"
	DefectCode     Collection = "DEFECT_CODE"
	DefectType     Collection = "DEFECT_TYPE"
	StructureGroup Collection = "STRUCTURE_GROUP"
	Color          Collection = "COLOR"
)

// Collections lists every known collection.
var Collections = []Collection{Priority, DefectCode, DefectType, StructureGroup, Color}

// IsValid returns true if the collection is a recognized value.
func (c Collection) IsValid() bool {
	return slices.Contains(Collections, c)
}

// PriorityColorCombo maps priority ids (code 1) to color ids (code 2).
const PriorityColorCombo = "PRIORITY_COLOR"

// Item is a library entry. Deleted items stay resolvable by id so historical
// rules keep their labels.
type Item struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`

	// ParentID scopes an item to another collection's item. Defect types
	// carry the id of their defect code.
	ParentID string `json:"parentId,omitempty" yaml:"parentId,omitempty"`

	Deleted bool `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Combo pairs two library ids. A non-zero Deleted marker hides the pairing.
type Combo struct {
	Code1   string `json:"code_1" yaml:"code_1"`
	Code2   string `json:"code_2" yaml:"code_2"`
	Deleted int    `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Client is the read-only library collaborator.
type Client interface {
	GetLibraryItems(ctx context.Context, collection Collection) ([]Item, error)
	GetColorCombo(ctx context.Context, comboCode string) ([]Combo, error)
}

// MemoryClient implements Client over in-memory data. Safe for concurrent
// use.
type MemoryClient struct {
	items  map[Collection][]Item
	combos map[string][]Combo
	mu     sync.RWMutex
}

// NewMemoryClient creates an empty in-memory library.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		items:  make(map[Collection][]Item),
		combos: make(map[string][]Combo),
	}
}

// PutItems appends items to a collection.
func (c *MemoryClient) PutItems(collection Collection, items ...Item) error {
	if !collection.IsValid() {
		return fmt.Errorf("unknown library collection %q", collection)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[collection] = append(c.items[collection], items...)
	return nil
}

// PutCombos appends pairings to a combo set.
func (c *MemoryClient) PutCombos(comboCode string, combos ...Combo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.combos[comboCode] = append(c.combos[comboCode], combos...)
}

func (c *MemoryClient) GetLibraryItems(ctx context.Context, collection Collection) ([]Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items[collection]), nil
}

func (c *MemoryClient) GetColorCombo(ctx context.Context, comboCode string) ([]Combo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.combos[comboCode]), nil
}
