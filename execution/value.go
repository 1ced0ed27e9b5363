package execution

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// coerceValue converts a substituted string into the declared value type.
// Booleans accept true/1/yes and false/0/no, case insensitively.
func coerceValue(value, valueType string) (any, error) {
	switch valueType {
	case "", "string":
		return value, nil
	case "int":
		n, err := cast.ToIntE(value)
		if err != nil {
			return nil, fmt.Errorf("Cannot convert '%s' to int: %v", value, err)
		}
		return n, nil
	case "float":
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, fmt.Errorf("Cannot convert '%s' to float: %v", value, err)
		}
		return f, nil
	case "boolean":
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		default:
			return nil, fmt.Errorf("Cannot convert '%s' to boolean. Use: true/false, 1/0, yes/no", value)
		}
	default:
		return nil, fmt.Errorf("Unknown target type: %s", valueType)
	}
}

// coerceBashOutput converts trimmed command output into the block's
// declared output type. Command output is looser than a declared variable
// value: y and n count as booleans and empty output reads as false.
func coerceBashOutput(value, outputType string) (any, error) {
	if outputType == "boolean" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "y":
			return true, nil
		case "false", "0", "no", "n", "":
			return false, nil
		default:
			return nil, fmt.Errorf("Cannot convert '%s' to boolean. Use: true/false, 1/0, yes/no", value)
		}
	}
	return coerceValue(value, outputType)
}

// nonEmpty normalizes an empty output map to nil so log entries omit it.
func nonEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// orNoOutput substitutes a placeholder for empty command output in
// human-readable summaries.
func orNoOutput(s string) string {
	if s == "" {
		return "(no output)"
	}
	return s
}
