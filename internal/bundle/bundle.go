// Package bundle reads YAML files holding library data, procedures and their
// rules, and loads them into in-memory collaborators.
package bundle

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/defectcriteria/criteria"
	"github.com/liamcoop/defectcriteria/library"
)

// Bundle is the document layout.
//
//	library:
//	  items:
//	    PRIORITY: [{id: P1, description: Immediate}]
//	  combos:
//	    PRIORITY_COLOR: [{code_1: P1, code_2: RED}]
//	procedures:
//	  - procedureNumber: DC-001
//	    procedureName: Jacket criteria
//	    status: active
//	    rules: [...]
type Bundle struct {
	Library    Library     `yaml:"library"`
	Procedures []Procedure `yaml:"procedures"`
}

// Library is the reference data section.
type Library struct {
	Items  map[library.Collection][]library.Item `yaml:"items"`
	Combos map[string][]library.Combo            `yaml:"combos"`
}

// Procedure is a procedure together with its rules.
type Procedure struct {
	criteria.ProcedureInput `yaml:",inline"`
	Rules                   []criteria.RuleInput `yaml:"rules"`
}

// Load reads a bundle file.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a bundle. Unknown keys are rejected.
func Parse(r io.Reader) (*Bundle, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("bundle is empty")
		}
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	return &b, nil
}

// LibraryClient builds an in-memory library client from the bundle.
func (b *Bundle) LibraryClient() (*library.MemoryClient, error) {
	client := library.NewMemoryClient()
	for collection, items := range b.Library.Items {
		if err := client.PutItems(collection, items...); err != nil {
			return nil, err
		}
	}
	for code, combos := range b.Library.Combos {
		client.PutCombos(code, combos...)
	}
	return client, nil
}

// Loaded maps the bundle's procedures to the ids they were stored under.
type Loaded struct {
	Procedures []*criteria.Procedure
	Rules      map[string][]*criteria.Rule // by procedure id
}

// Apply creates every procedure and rule of the bundle through en, so they
// go through the same validation as API writes. It stops at the first
// failure.
func (b *Bundle) Apply(ctx context.Context, en *criteria.Engine) (*Loaded, error) {
	loaded := &Loaded{Rules: make(map[string][]*criteria.Rule)}
	for i, bp := range b.Procedures {
		p, err := en.CreateProcedure(ctx, bp.ProcedureInput)
		if err != nil {
			return loaded, fmt.Errorf("procedure %d (%s): %w", i+1, bp.Number, err)
		}
		loaded.Procedures = append(loaded.Procedures, p)

		for j, in := range bp.Rules {
			r, err := en.CreateRule(ctx, p.ID, in)
			if err != nil {
				return loaded, fmt.Errorf("procedure %s rule %d: %w", bp.Number, j+1, err)
			}
			loaded.Rules[p.ID] = append(loaded.Rules[p.ID], r)
		}
	}
	return loaded, nil
}

// Find returns the procedure with the given id, or the highest version with
// the given procedure number.
func (l *Loaded) Find(ref string) (*criteria.Procedure, bool) {
	var best *criteria.Procedure
	for _, p := range l.Procedures {
		if p.ID == ref {
			return p, true
		}
		if p.Number == ref && (best == nil || p.Version > best.Version) {
			best = p
		}
	}
	return best, best != nil
}
