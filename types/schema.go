package types

import (
	"encoding/json"
	"fmt"
)

// SchemaType represents the closed set of parameter schema types.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeArray   SchemaType = "array"
	SchemaTypeObject  SchemaType = "object"
)

// ParameterSchema describes one tool parameter as a closed sum over
// primitive, array, and object nodes, so validation is exhaustive
// rather than an open dynamic structure.
type ParameterSchema struct {
	Type        SchemaType `json:"type"`
	Description string     `json:"description,omitempty"`

	Default any   `json:"default,omitempty"`
	Enum    []any `json:"enum,omitempty"`

	// Numeric constraints
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	// Array items
	Items *ParameterSchema `json:"items,omitempty"`

	// Object properties
	Properties map[string]*ParameterSchema `json:"properties,omitempty"`
	Required   []string                    `json:"required,omitempty"`
}

// NewObjectSchema creates a new object schema.
func NewObjectSchema() *ParameterSchema {
	return &ParameterSchema{
		Type:       SchemaTypeObject,
		Properties: make(map[string]*ParameterSchema),
	}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(items *ParameterSchema) *ParameterSchema {
	return &ParameterSchema{Type: SchemaTypeArray, Items: items}
}

// NewStringSchema creates a new string schema.
func NewStringSchema() *ParameterSchema {
	return &ParameterSchema{Type: SchemaTypeString}
}

// NewNumberSchema creates a new number schema.
func NewNumberSchema() *ParameterSchema {
	return &ParameterSchema{Type: SchemaTypeNumber}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema() *ParameterSchema {
	return &ParameterSchema{Type: SchemaTypeBoolean}
}

// AddProperty adds a property to an object schema.
func (s *ParameterSchema) AddProperty(name string, prop *ParameterSchema) *ParameterSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*ParameterSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired adds required property names to an object schema.
func (s *ParameterSchema) AddRequired(names ...string) *ParameterSchema {
	s.Required = append(s.Required, names...)
	return s
}

// WithDescription sets the description.
func (s *ParameterSchema) WithDescription(desc string) *ParameterSchema {
	s.Description = desc
	return s
}

// WithDefault sets the default value.
func (s *ParameterSchema) WithDefault(v any) *ParameterSchema {
	s.Default = v
	return s
}

// WithEnum sets the permitted values.
func (s *ParameterSchema) WithEnum(values ...any) *ParameterSchema {
	s.Enum = values
	return s
}

// WithRange sets the numeric bounds.
func (s *ParameterSchema) WithRange(minimum, maximum float64) *ParameterSchema {
	s.Minimum = &minimum
	s.Maximum = &maximum
	return s
}

// CheckSchema verifies the schema itself is well-formed: a recognized
// type on every node, items present on arrays, and numeric bounds only
// on numbers.
func (s *ParameterSchema) CheckSchema() error {
	if s == nil {
		return NewError(ErrConfiguration, "nil parameter schema")
	}
	switch s.Type {
	case SchemaTypeString, SchemaTypeNumber, SchemaTypeBoolean:
	case SchemaTypeArray:
		if s.Items == nil {
			return NewError(ErrConfiguration, "array schema requires items")
		}
		if err := s.Items.CheckSchema(); err != nil {
			return err
		}
	case SchemaTypeObject:
		for name, prop := range s.Properties {
			if err := prop.CheckSchema(); err != nil {
				return NewErrorf(ErrConfiguration, "property %q: %v", name, err)
			}
		}
		for _, name := range s.Required {
			if _, ok := s.Properties[name]; !ok {
				return NewErrorf(ErrConfiguration, "required property %q not declared", name)
			}
		}
	default:
		return NewErrorf(ErrConfiguration, "unknown schema type %q", s.Type)
	}
	if (s.Minimum != nil || s.Maximum != nil) && s.Type != SchemaTypeNumber {
		return NewErrorf(ErrConfiguration, "minimum/maximum only apply to number, got %q", s.Type)
	}
	return nil
}

// Validate checks a value against the schema. JSON decoding conventions
// apply: numbers arrive as float64, objects as map[string]any, arrays
// as []any.
func (s *ParameterSchema) Validate(value any) error {
	switch s.Type {
	case SchemaTypeString:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		return s.checkEnum(v)
	case SchemaTypeNumber:
		v, ok := value.(float64)
		if !ok {
			if i, isInt := value.(int); isInt {
				v, ok = float64(i), true
			}
		}
		if !ok {
			return fmt.Errorf("expected number, got %T", value)
		}
		if s.Minimum != nil && v < *s.Minimum {
			return fmt.Errorf("value %v below minimum %v", v, *s.Minimum)
		}
		if s.Maximum != nil && v > *s.Maximum {
			return fmt.Errorf("value %v above maximum %v", v, *s.Maximum)
		}
		return s.checkEnum(v)
	case SchemaTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
		return nil
	case SchemaTypeArray:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		for i, item := range items {
			if err := s.Items.Validate(item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	case SchemaTypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		for _, name := range s.Required {
			if _, present := obj[name]; !present {
				return fmt.Errorf("missing required property %q", name)
			}
		}
		for name, v := range obj {
			prop, declared := s.Properties[name]
			if !declared {
				continue
			}
			if err := prop.Validate(v); err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown schema type %q", s.Type)
	}
}

func (s *ParameterSchema) checkEnum(v any) error {
	if len(s.Enum) == 0 {
		return nil
	}
	for _, allowed := range s.Enum {
		if allowed == v {
			return nil
		}
	}
	return fmt.Errorf("value %v not in enum", v)
}

// ApplyDefaults fills missing object properties that declare a default.
func (s *ParameterSchema) ApplyDefaults(params map[string]any) map[string]any {
	if s.Type != SchemaTypeObject {
		return params
	}
	if params == nil {
		params = make(map[string]any)
	}
	for name, prop := range s.Properties {
		if _, present := params[name]; !present && prop.Default != nil {
			params[name] = prop.Default
		}
	}
	return params
}

// ToJSON serializes the schema.
func (s *ParameterSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// SchemaFromJSON deserializes a schema and checks it is well-formed.
func SchemaFromJSON(data []byte) (*ParameterSchema, error) {
	var schema ParameterSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("unmarshal parameter schema: %w", err)
	}
	if err := schema.CheckSchema(); err != nil {
		return nil, err
	}
	return &schema, nil
}
