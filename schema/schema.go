package schema

import "encoding/json"

// JSON Schema type names.
const (
	String  = "string"
	Integer = "integer"
	Number  = "number"
	Boolean = "boolean"
	Array   = "array"
	Object  = "object"
	Null    = "null"
)

// Schema describes the structure of a JSON object.
type Schema struct {
	Type                 string               `json:"type" yaml:"type"`
	Properties           map[string]*Property `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required             []string             `json:"required,omitempty" yaml:"required,omitempty"`
	AdditionalProperties *bool                `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty"`
}

// Property of a schema.
type Property struct {
	Type        string               `json:"type" yaml:"type"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty" yaml:"items,omitempty"`
	Required    []string             `json:"required,omitempty" yaml:"required,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// JSON renders the schema as indented JSON, suitable for embedding in a
// prompt that asks a model for structured output.
func (s *Schema) JSON() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
