package cli

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/defectcriteria/criteria"
)

// findingDoc is the YAML form of a finding. Values are decoded loosely and
// converted with criteria.ParseMeasurement.
type findingDoc struct {
	ID               string         `yaml:"id"`
	StructureGroup   string         `yaml:"structureGroup"`
	DefectCode       string         `yaml:"defectCode"`
	DefectType       string         `yaml:"defectType"`
	JobpackType      string         `yaml:"jobpackType"`
	Elevation        *float64       `yaml:"elevation"`
	Value            any            `yaml:"value"`
	CustomParameters map[string]any `yaml:"customParameters"`
}

type findingsFile struct {
	Findings []findingDoc `yaml:"findings"`
}

// IdentifiedFinding is a finding with the caller's reference.
type IdentifiedFinding struct {
	ID      string
	Finding *criteria.Finding
}

// LoadFindings reads a findings file. Findings without an id are numbered.
func LoadFindings(path string) ([]IdentifiedFinding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open findings: %w", err)
	}
	defer f.Close()
	return ParseFindings(f)
}

// ParseFindings decodes findings from r.
func ParseFindings(r io.Reader) ([]IdentifiedFinding, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc findingsFile
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("findings file is empty")
		}
		return nil, fmt.Errorf("failed to parse findings: %w", err)
	}

	out := make([]IdentifiedFinding, 0, len(doc.Findings))
	for i, d := range doc.Findings {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("#%d", i+1)
		}
		value, err := criteria.ParseMeasurement(d.Value)
		if err != nil {
			return nil, fmt.Errorf("finding %s: value: %w", id, err)
		}
		finding := &criteria.Finding{
			StructureGroup: d.StructureGroup,
			DefectCode:     d.DefectCode,
			DefectType:     d.DefectType,
			JobpackType:    d.JobpackType,
			Elevation:      d.Elevation,
			Value:          value,
		}
		if len(d.CustomParameters) > 0 {
			finding.CustomParameters = make(map[string]criteria.Measurement, len(d.CustomParameters))
			for name, raw := range d.CustomParameters {
				m, err := criteria.ParseMeasurement(raw)
				if err != nil {
					return nil, fmt.Errorf("finding %s: parameter %s: %w", id, name, err)
				}
				finding.CustomParameters[name] = m
			}
		}
		out = append(out, IdentifiedFinding{ID: id, Finding: finding})
	}
	return out, nil
}
