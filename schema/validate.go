package schema

import (
	"encoding/json"
	"fmt"
)

// Validate checks parsed output against the schema. Every required field
// must be present, and values for declared properties must match the
// declared type. Properties with types outside the basic JSON set are not
// checked.
func (s *Schema) Validate(output map[string]any) error {
	if s == nil {
		return nil
	}
	for _, field := range s.Required {
		if _, ok := output[field]; !ok {
			return fmt.Errorf("required field %q missing from output", field)
		}
	}
	for field, prop := range s.Properties {
		if prop == nil {
			continue
		}
		value, ok := output[field]
		if !ok {
			continue
		}
		if err := checkType(field, prop.Type, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(field, expected string, value any) error {
	var ok bool
	switch expected {
	case String:
		_, ok = value.(string)
	case Number:
		ok = isNumber(value)
	case Boolean:
		_, ok = value.(bool)
	case Array:
		_, ok = value.([]any)
	case Object:
		_, ok = value.(map[string]any)
	default:
		return nil
	}
	if !ok {
		return fmt.Errorf("field %q should be %s, got %s", field, expected, jsonTypeName(value))
	}
	return nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return Null
	case string:
		return String
	case bool:
		return Boolean
	case []any:
		return Array
	case map[string]any:
		return Object
	default:
		if isNumber(v) {
			return Number
		}
		return fmt.Sprintf("%T", v)
	}
}
