package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchSchema() *ParameterSchema {
	return NewObjectSchema().
		AddProperty("query", NewStringSchema().WithDescription("search text")).
		AddProperty("limit", NewNumberSchema().WithRange(1, 100).WithDefault(float64(5))).
		AddProperty("unit", NewStringSchema().WithEnum("km", "mi")).
		AddProperty("tags", NewArraySchema(NewStringSchema())).
		AddProperty("strict", NewBooleanSchema()).
		AddRequired("query")
}

func TestCheckSchema(t *testing.T) {
	require.NoError(t, searchSchema().CheckSchema())

	tests := []struct {
		name   string
		schema *ParameterSchema
	}{
		{"unknown type", &ParameterSchema{Type: "decimal"}},
		{"array without items", &ParameterSchema{Type: SchemaTypeArray}},
		{"required not declared", NewObjectSchema().AddRequired("missing")},
		{"bounds on string", func() *ParameterSchema {
			s := NewStringSchema()
			minimum := 1.0
			s.Minimum = &minimum
			return s
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.CheckSchema()
			require.Error(t, err)
			assert.True(t, IsCode(err, ErrConfiguration))
		})
	}
}

func TestValidate(t *testing.T) {
	schema := searchSchema()

	tests := []struct {
		name    string
		value   map[string]any
		wantErr string
	}{
		{"valid", map[string]any{"query": "hotels", "limit": float64(10)}, ""},
		{"missing required", map[string]any{"limit": float64(10)}, "missing required"},
		{"wrong type", map[string]any{"query": 42}, "expected string"},
		{"below minimum", map[string]any{"query": "x", "limit": float64(0)}, "below minimum"},
		{"above maximum", map[string]any{"query": "x", "limit": float64(500)}, "above maximum"},
		{"enum violation", map[string]any{"query": "x", "unit": "furlong"}, "not in enum"},
		{"bad array item", map[string]any{"query": "x", "tags": []any{"a", 7}}, "item 1"},
		{"bad boolean", map[string]any{"query": "x", "strict": "yes"}, "expected boolean"},
		{"undeclared passthrough", map[string]any{"query": "x", "extra": "ignored"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.value)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	schema := searchSchema()

	params := schema.ApplyDefaults(map[string]any{"query": "beaches"})
	assert.Equal(t, float64(5), params["limit"])

	params = schema.ApplyDefaults(map[string]any{"query": "beaches", "limit": float64(20)})
	assert.Equal(t, float64(20), params["limit"])
}

func TestSchemaFromJSON(t *testing.T) {
	data, err := searchSchema().ToJSON()
	require.NoError(t, err)

	parsed, err := SchemaFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, SchemaTypeObject, parsed.Type)
	require.NoError(t, parsed.Validate(map[string]any{"query": "x"}))

	_, err = SchemaFromJSON([]byte(`{"type":"array"}`))
	assert.Error(t, err)
}
