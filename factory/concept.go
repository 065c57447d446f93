/*
Package factory provides JSON to Go concept conversion.

PURPOSE:
  Converts JSON concept definitions into engine.ConceptDefinition values.
  Payroll administrators configure concepts as JSON; the factory validates
  them and produces the structs the engine reads.

JSON SCHEMA:
  {
    "concepts": [
      {
        "code": "BASE_SALARY",
        "name": "Base salary",
        "category": "income",
        "value_kind": "fixed",
        "value": "0",
        "priority": 10,
        "config": {"threshold": "100"}
      }
    ]
  }

  "value" accepts a JSON string or number. "value_kind" defaults to fixed.

VALIDATION:
  - Unknown category, empty or duplicate code, negative priority
    -> engine.ConfigurationError
  - Unknown value kind -> engine.ConfigurationError

USAGE:
  factory := NewConceptFactory()
  defs, err := factory.ParseConcepts(concepts.StandardConceptsJSON())

SEE ALSO:
  - concepts/presets.go: Preset concept sets
  - engine/types.go: ConceptDefinition
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConceptSetJSON is the JSON envelope of a concept configuration.
type ConceptSetJSON struct {
	Concepts []ConceptJSON `json:"concepts"`
}

// ConceptJSON is the JSON representation of one concept.
type ConceptJSON struct {
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	Category  string            `json:"category"`
	ValueKind string            `json:"value_kind,omitempty"`
	Value     decimal.Decimal   `json:"value"`
	Priority  int               `json:"priority"`
	Config    map[string]string `json:"config,omitempty"`
}

// =============================================================================
// CONCEPT FACTORY
// =============================================================================

// ConceptFactory converts JSON concepts to Go structs.
type ConceptFactory struct{}

func NewConceptFactory() *ConceptFactory {
	return &ConceptFactory{}
}

// ParseConcepts parses a JSON concept set.
func (f *ConceptFactory) ParseConcepts(jsonStr string) ([]engine.ConceptDefinition, error) {
	var set ConceptSetJSON
	if err := json.Unmarshal([]byte(jsonStr), &set); err != nil {
		return nil, fmt.Errorf("failed to parse concepts JSON: %w", err)
	}
	return f.FromJSON(set.Concepts)
}

// FromJSON converts and validates JSON concepts.
func (f *ConceptFactory) FromJSON(items []ConceptJSON) ([]engine.ConceptDefinition, error) {
	defs := make([]engine.ConceptDefinition, 0, len(items))
	for _, cj := range items {
		def, err := f.fromJSON(cj)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := engine.ValidateConcepts(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func (f *ConceptFactory) fromJSON(cj ConceptJSON) (engine.ConceptDefinition, error) {
	kind, err := parseValueKind(cj.ValueKind)
	if err != nil {
		return engine.ConceptDefinition{}, &engine.ConfigurationError{ConceptCode: engine.ConceptCode(cj.Code), Reason: err.Error()}
	}
	name := cj.Name
	if name == "" {
		name = cj.Code
	}
	return engine.ConceptDefinition{
		Code:      engine.ConceptCode(cj.Code),
		Name:      name,
		Category:  engine.Category(cj.Category),
		ValueKind: kind,
		Value:     cj.Value,
		Priority:  cj.Priority,
		Config:    cj.Config,
	}, nil
}

func parseValueKind(s string) (engine.ValueKind, error) {
	switch s {
	case "", string(engine.ValueFixed):
		return engine.ValueFixed, nil
	case string(engine.ValuePercentage):
		return engine.ValuePercentage, nil
	default:
		return "", fmt.Errorf("unknown value kind %q", s)
	}
}

// ToJSON converts concept definitions back to their JSON form.
func (f *ConceptFactory) ToJSON(defs []engine.ConceptDefinition) ConceptSetJSON {
	set := ConceptSetJSON{Concepts: make([]ConceptJSON, 0, len(defs))}
	for _, d := range defs {
		set.Concepts = append(set.Concepts, ConceptJSON{
			Code:      string(d.Code),
			Name:      d.Name,
			Category:  string(d.Category),
			ValueKind: string(d.ValueKind),
			Value:     d.Value,
			Priority:  d.Priority,
			Config:    d.Config,
		})
	}
	return set
}
