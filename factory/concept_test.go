package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
)

func TestParseConcepts(t *testing.T) {
	// GIVEN a concept set mixing string and number values
	input := `{
	  "concepts": [
	    {"code": "BONUS", "name": "Bonus", "category": "income", "value": 15, "priority": 40,
	     "config": {"threshold": "100"}},
	    {"code": "HEALTH", "category": "deduction", "value_kind": "percentage", "value": "7", "priority": 110}
	  ]
	}`

	// WHEN it is parsed
	defs, err := factory.NewConceptFactory().ParseConcepts(input)
	require.NoError(t, err)

	// THEN both concepts come back with defaults filled
	require.Len(t, defs, 2)
	assert.Equal(t, engine.ConceptCode("BONUS"), defs[0].Code)
	assert.Equal(t, engine.ValueFixed, defs[0].ValueKind)
	assert.Equal(t, "100", defs[0].Config["threshold"])
	assert.Equal(t, "15", defs[0].Value.String())

	assert.Equal(t, "HEALTH", defs[1].Name)
	assert.Equal(t, engine.CategoryDeduction, defs[1].Category)
	assert.Equal(t, engine.ValuePercentage, defs[1].ValueKind)
	assert.Equal(t, 110, defs[1].Priority)
}

func TestParseConcepts_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "unknown category", input: `{"concepts": [{"code": "A", "category": "gift", "value": "1"}]}`},
		{name: "unknown value kind", input: `{"concepts": [{"code": "A", "category": "income", "value_kind": "ratio", "value": "1"}]}`},
		{name: "duplicate code", input: `{"concepts": [{"code": "A", "category": "income", "value": "1"}, {"code": "A", "category": "deduction", "value": "1"}]}`},
		{name: "negative priority", input: `{"concepts": [{"code": "A", "category": "income", "value": "1", "priority": -5}]}`},
		{name: "empty code", input: `{"concepts": [{"code": "", "category": "income", "value": "1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.NewConceptFactory().ParseConcepts(tt.input)
			assert.ErrorIs(t, err, engine.ErrConfiguration)
		})
	}
}

func TestParseConcepts_MalformedJSON(t *testing.T) {
	_, err := factory.NewConceptFactory().ParseConcepts(`{"concepts": [`)

	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrConfiguration)
}

func TestToJSON(t *testing.T) {
	f := factory.NewConceptFactory()
	defs, err := f.ParseConcepts(`{"concepts": [{"code": "A", "name": "Alpha", "category": "retirement", "value_kind": "percentage", "value": "10.5", "priority": 100}]}`)
	require.NoError(t, err)

	b, err := json.Marshal(f.ToJSON(defs))
	require.NoError(t, err)

	again, err := f.ParseConcepts(string(b))
	require.NoError(t, err)
	assert.Equal(t, defs[0].Code, again[0].Code)
	assert.True(t, defs[0].Value.Equal(again[0].Value))
	assert.Equal(t, defs[0].Category, again[0].Category)
}
