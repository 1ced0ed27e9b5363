// Package eval evaluates branch conditions against a run's variables.
//
// A condition is either a comparison ("attempts >= 3", "$.result.ok ==
// true") or a bare boolean lookup ("specComplete", "!hasErrors"). Fields
// beginning with $ are JSONPath queries over the variable map; anything
// else is a direct key lookup. A field that resolves to nothing makes
// the condition false rather than an error.
package eval

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// comparisonPattern splits "field op literal". The >= and <= operators
// must be listed before > and < so they are not matched partially.
var comparisonPattern = regexp.MustCompile(`^(.+?)\s*(==|!=|>=|<=|>|<)\s*(.+)$`)

// TypeMismatchError reports a comparison between incompatible types,
// such as a string field against a numeric literal.
type TypeMismatchError struct {
	Condition  string
	FieldExpr  string
	FieldValue any
	Literal    any
}

func (e *TypeMismatchError) Error() string {
	fieldType := typeName(e.FieldValue)
	literalType := typeName(e.Literal)
	return fmt.Sprintf(
		"type mismatch in condition %q: cannot compare %s (%v) with %s (%v). "+
			"Use a variable block to convert '%s' to %s before this branch, "+
			"or change the comparison value to match the %s type",
		e.Condition, fieldType, e.FieldValue, literalType, e.Literal,
		e.FieldExpr, literalType, fieldType)
}

// Evaluate parses and evaluates a condition against data.
func Evaluate(condition string, data map[string]any) (bool, error) {
	trimmed := strings.TrimSpace(condition)
	if trimmed == "" {
		return false, fmt.Errorf("condition is empty")
	}

	match := comparisonPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return evaluateBoolean(trimmed, data)
	}

	fieldExpr := strings.TrimSpace(match[1])
	operator := match[2]
	literalText := strings.TrimSpace(match[3])

	fieldValue, found := resolveField(fieldExpr, data)
	if !found {
		return false, nil
	}

	literal, err := parseLiteral(literalText)
	if err != nil {
		return false, err
	}

	return compare(trimmed, fieldExpr, fieldValue, operator, literal)
}

// evaluateBoolean handles bare field lookups, optionally negated with a
// leading exclamation mark.
func evaluateBoolean(expr string, data map[string]any) (bool, error) {
	negate := false
	if strings.HasPrefix(expr, "!") {
		negate = true
		expr = strings.TrimSpace(expr[1:])
	}
	value, found := resolveField(expr, data)
	if !found {
		return false, nil
	}
	result := truthy(value)
	if negate {
		result = !result
	}
	return result, nil
}

// resolveField looks up a field in data. Expressions starting with $
// are treated as JSONPath queries; all others as direct keys.
func resolveField(expr string, data map[string]any) (any, bool) {
	if strings.HasPrefix(expr, "$") {
		return resolveJSONPath(expr, data)
	}
	value, ok := data[expr]
	return value, ok
}

// resolveJSONPath converts a JSONPath expression like $.items[0].name
// to gjson syntax and queries the marshaled variable map.
func resolveJSONPath(expr string, data map[string]any) (any, bool) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	path := jsonPathToGJSON(expr)
	if path == "" {
		return nil, false
	}
	result := gjson.GetBytes(encoded, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func jsonPathToGJSON(expr string) string {
	path := strings.TrimPrefix(expr, "$")
	path = strings.TrimPrefix(path, ".")
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	path = strings.Trim(path, ".")
	return path
}

// parseLiteral parses the right-hand side of a comparison. Order:
// boolean keyword, integer, float, quoted string. An unquoted bare word
// is rejected with a hint, catching mistakes like `status == success`.
func parseLiteral(text string) (any, error) {
	lower := strings.ToLower(text)
	if lower == "true" {
		return true, nil
	}
	if lower == "false" {
		return false, nil
	}

	if !strings.Contains(text, ".") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n, nil
		}
	} else if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f, nil
	}

	if len(text) >= 2 {
		if (strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`)) ||
			(strings.HasPrefix(text, "'") && strings.HasSuffix(text, "'")) {
			return text[1 : len(text)-1], nil
		}
	}

	return nil, fmt.Errorf(
		"no variable named '%s', did you mean \"%s\" as a string? "+
			"Literals in conditions must be quoted (strings), boolean keywords (true/false), or numbers",
		text, text)
}

// compare applies operator to the field value and literal, unifying
// numeric types and rejecting comparisons across incompatible kinds.
func compare(condition, fieldExpr string, left any, operator string, right any) (bool, error) {
	mismatch := func() error {
		return &TypeMismatchError{
			Condition:  condition,
			FieldExpr:  fieldExpr,
			FieldValue: left,
			Literal:    right,
		}
	}

	if isNumber(left) && isNumber(right) {
		leftNum := cast.ToFloat64(left)
		rightNum := cast.ToFloat64(right)
		switch operator {
		case "==":
			return leftNum == rightNum, nil
		case "!=":
			return leftNum != rightNum, nil
		case ">":
			return leftNum > rightNum, nil
		case "<":
			return leftNum < rightNum, nil
		case ">=":
			return leftNum >= rightNum, nil
		case "<=":
			return leftNum <= rightNum, nil
		}
	}

	leftStr, leftIsStr := left.(string)
	rightStr, rightIsStr := right.(string)
	if leftIsStr && rightIsStr {
		switch operator {
		case "==":
			return leftStr == rightStr, nil
		case "!=":
			return leftStr != rightStr, nil
		case ">":
			return leftStr > rightStr, nil
		case "<":
			return leftStr < rightStr, nil
		case ">=":
			return leftStr >= rightStr, nil
		case "<=":
			return leftStr <= rightStr, nil
		}
	}

	leftBool, leftIsBool := left.(bool)
	rightBool, rightIsBool := right.(bool)
	if leftIsBool && rightIsBool {
		switch operator {
		case "==":
			return leftBool == rightBool, nil
		case "!=":
			return leftBool != rightBool, nil
		default:
			return false, mismatch()
		}
	}

	return false, mismatch()
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// truthy reports whether a value is considered true in a bare boolean
// lookup: non-zero numbers, non-empty strings and collections, true.
func truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case []any:
		return len(value) > 0
	case map[string]any:
		return len(value) > 0
	default:
		if isNumber(v) {
			return cast.ToFloat64(v) != 0
		}
		return true
	}
}

// typeName renders a value's type for author-facing error messages.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		if isNumber(v) {
			return "number"
		}
		return fmt.Sprintf("%T", v)
	}
}
