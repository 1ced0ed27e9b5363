// Package template resolves positional ($1, $2, ...) and named
// ({{name}}) references inside workflow text against the run's
// variables. Named references support dotted paths and list indexing.
// A literal dollar sign is written as $$.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// argPattern matches positional references like $1, $2.
	argPattern = regexp.MustCompile(`\$(\d+)`)

	// varPattern matches named references like {{status}} or
	// {{results.items[0].name}}.
	varPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_.\[\]]*)\}\}`)
)

// SubstituteArguments replaces $N references with values from arguments,
// keyed as "$1", "$2", and so on. References to $0 and below pass
// through untouched so shell and awk syntax survives substitution. A
// reference with no matching argument is an error.
func SubstituteArguments(text string, arguments map[string]any) (string, error) {
	var firstErr error
	result := argPattern.ReplaceAllStringFunc(text, func(match string) string {
		num, err := strconv.Atoi(match[1:])
		if err != nil || num < 1 {
			return match
		}
		value, ok := arguments[match]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("missing required argument: %s (argument %d)", match, num)
			}
			return match
		}
		return renderValue(value)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// SubstituteVariables replaces {{name}} references with values from
// variables. Maps and lists render as JSON. An unresolvable reference
// is an error that names the available variables.
func SubstituteVariables(text string, variables map[string]any) (string, error) {
	var firstErr error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		path := varPattern.FindStringSubmatch(match)[1]
		value, err := resolvePath(path, variables)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("variable not found: {{%s}} - %s. Available variables: [%s]",
					path, err.Error(), strings.Join(sortedKeys(variables), ", "))
			}
			return match
		}
		return renderValue(value)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// SubstituteAll applies both grammars: positional references first, then
// named references. $$ escapes are honored across both phases.
func SubstituteAll(text string, arguments, variables map[string]any) (string, error) {
	text, escapes := preprocessEscapes(text)

	if argPattern.MatchString(text) {
		substituted, err := SubstituteArguments(text, arguments)
		if err != nil {
			return "", err
		}
		text = substituted
	}

	if varPattern.MatchString(text) {
		substituted, err := SubstituteVariables(text, variables)
		if err != nil {
			return "", err
		}
		text = substituted
	}

	return postprocessEscapes(text, escapes), nil
}

// FindArgumentReferences returns the unique positional references in
// text, sorted numerically (e.g. ["$1", "$2"]).
func FindArgumentReferences(text string) []string {
	matches := argPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[int]bool, len(matches))
	var nums []int
	for _, m := range matches {
		num, err := strconv.Atoi(m[1])
		if err != nil || seen[num] {
			continue
		}
		seen[num] = true
		nums = append(nums, num)
	}
	sort.Ints(nums)
	refs := make([]string, 0, len(nums))
	for _, n := range nums {
		refs = append(refs, "$"+strconv.Itoa(n))
	}
	return refs
}

// ValidateArgumentSyntax returns advisory warnings about positional
// references in text, such as skipped argument numbers.
func ValidateArgumentSyntax(text string) []string {
	var warnings []string
	refs := FindArgumentReferences(text)
	if len(refs) == 0 {
		return warnings
	}

	var argNumbers []int
	for _, ref := range refs {
		n, _ := strconv.Atoi(ref[1:])
		if n >= 1 {
			argNumbers = append(argNumbers, n)
		}
	}
	if len(argNumbers) == 0 {
		return warnings
	}

	maxNum := argNumbers[len(argNumbers)-1]
	present := make(map[int]bool, len(argNumbers))
	for _, n := range argNumbers {
		present[n] = true
	}
	var missing []string
	for n := 1; n <= maxNum; n++ {
		if !present[n] {
			missing = append(missing, "$"+strconv.Itoa(n))
		}
	}
	if len(missing) > 0 {
		var found []string
		for _, n := range argNumbers {
			found = append(found, "$"+strconv.Itoa(n))
		}
		warnings = append(warnings, fmt.Sprintf("Argument reference skips %s (found %s)",
			strings.Join(missing, ", "), strings.Join(found, ", ")))
	}
	return warnings
}

// preprocessEscapes swaps each $$ for a placeholder so substitution
// never sees it. postprocessEscapes restores the literal dollar signs.
func preprocessEscapes(text string) (string, []string) {
	var placeholders []string
	counter := 0
	for strings.Contains(text, "$$") {
		placeholder := fmt.Sprintf("__ESC_%d__", counter)
		text = strings.Replace(text, "$$", placeholder, 1)
		placeholders = append(placeholders, placeholder)
		counter++
	}
	return text, placeholders
}

func postprocessEscapes(text string, placeholders []string) string {
	for _, placeholder := range placeholders {
		text = strings.Replace(text, placeholder, "$", 1)
	}
	return text
}

// resolvePath walks a dotted/indexed path like "results.items[0].name"
// through nested maps and lists.
func resolvePath(path string, variables map[string]any) (any, error) {
	normalized := strings.ReplaceAll(path, "[", ".")
	normalized = strings.ReplaceAll(normalized, "]", "")
	parts := strings.Split(normalized, ".")

	var value any = variables
	for _, part := range parts {
		switch v := value.(type) {
		case map[string]any:
			item, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("key '%s' not found in [%s]", part, strings.Join(sortedKeys(v), ", "))
			}
			value = item
		case []any:
			index, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid list index: '%s' (must be an integer)", part)
			}
			if index < 0 || index >= len(v) {
				return nil, fmt.Errorf("index %d out of range for list of length %d", index, len(v))
			}
			value = v[index]
		default:
			return nil, fmt.Errorf("cannot access '%s' on %T", part, value)
		}
	}
	return value, nil
}

// renderValue converts a resolved value to its textual form. Composite
// values become JSON so they stay machine-readable inside prompts.
func renderValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
