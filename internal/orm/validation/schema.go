// Package validation compiles declarative entity schemas into checkers.
//
// A schema is a JSON-Schema subset (type, required, properties, items, enum,
// length and range bounds, pattern, format) declared in YAML. Checkers are
// compiled by santhosh-tekuri/jsonschema from the schema's JSON document.
// Each entity type compiles its schema twice: a strict checker that enforces
// every constraint and a relaxed checker with the root required list cleared,
// used for partial updates and nested payloads.
package validation

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Type names accepted in Schema.Type
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
	TypeNull    = "null"
)

// Types is a list of accepted type names. In YAML/JSON it may be written as a
// single name ("string") or as a list (["string", "null"]).
type Types []string

// UnmarshalYAML accepts either a scalar or a sequence of type names
func (t *Types) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = Types{value.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*t = names
		return nil
	default:
		return fmt.Errorf("type must be a name or a list of names")
	}
}

// Has reports whether name is one of the accepted types
func (t Types) Has(name string) bool {
	for _, n := range t {
		if n == name {
			return true
		}
	}
	return false
}

// Schema is a declarative validation schema
type Schema struct {
	Type                 Types              `yaml:"type,omitempty"`
	Required             []string           `yaml:"required,omitempty"`
	Properties           map[string]*Schema `yaml:"properties,omitempty"`
	Items                *Schema            `yaml:"items,omitempty"`
	Enum                 []interface{}      `yaml:"enum,omitempty"`
	MinLength            *int               `yaml:"minLength,omitempty"`
	MaxLength            *int               `yaml:"maxLength,omitempty"`
	MinItems             *int               `yaml:"minItems,omitempty"`
	MaxItems             *int               `yaml:"maxItems,omitempty"`
	Minimum              *float64           `yaml:"minimum,omitempty"`
	Maximum              *float64           `yaml:"maximum,omitempty"`
	Pattern              string             `yaml:"pattern,omitempty"`
	Format               string             `yaml:"format,omitempty"`
	AdditionalProperties *bool              `yaml:"additionalProperties,omitempty"`
}

// document returns s as a JSON Schema document
func (s *Schema) document() map[string]interface{} {
	doc := make(map[string]interface{})
	switch len(s.Type) {
	case 0:
	case 1:
		doc["type"] = s.Type[0]
	default:
		doc["type"] = []string(s.Type)
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for name, child := range s.Properties {
			if child == nil {
				props[name] = map[string]interface{}{}
				continue
			}
			props[name] = child.document()
		}
		doc["properties"] = props
	}
	if s.Items != nil {
		doc["items"] = s.Items.document()
	}
	if len(s.Enum) > 0 {
		doc["enum"] = s.Enum
	}
	if s.MinLength != nil {
		doc["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		doc["maxLength"] = *s.MaxLength
	}
	if s.MinItems != nil {
		doc["minItems"] = *s.MinItems
	}
	if s.MaxItems != nil {
		doc["maxItems"] = *s.MaxItems
	}
	if s.Minimum != nil {
		doc["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		doc["maximum"] = *s.Maximum
	}
	if s.Pattern != "" {
		doc["pattern"] = s.Pattern
	}
	if s.Format != "" {
		doc["format"] = s.Format
	}
	if s.AdditionalProperties != nil {
		doc["additionalProperties"] = *s.AdditionalProperties
	}
	return doc
}

// Relaxed returns a shallow copy of s with the root required list cleared.
// Nested object schemas keep their own required lists.
func Relaxed(s *Schema) *Schema {
	if s == nil {
		return nil
	}
	relaxed := *s
	relaxed.Required = nil
	return &relaxed
}

// Int returns a pointer to n, for building schemas in code
func Int(n int) *int {
	return &n
}

// Float returns a pointer to f, for building schemas in code
func Float(f float64) *float64 {
	return &f
}

// Bool returns a pointer to b, for building schemas in code
func Bool(b bool) *bool {
	return &b
}
