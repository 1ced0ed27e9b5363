package workflow

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/deepnoodle-ai/eddy/template"
)

// Metadata records bookkeeping information about a command.
type Metadata struct {
	Created  time.Time `yaml:"created,omitempty" json:"created,omitempty"`
	Modified time.Time `yaml:"modified,omitempty" json:"modified,omitempty"`
	Version  string    `yaml:"version,omitempty" json:"version,omitempty"`
	Author   string    `yaml:"author,omitempty" json:"author,omitempty"`
	Tags     []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Argument declares one positional argument of a command. Arguments map to
// $1, $2, ... in the order declared and are also exposed under their names.
type Argument struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Required    *bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     *string `yaml:"default,omitempty" json:"default,omitempty"`
}

// IsRequired reports whether the argument must be supplied. Defaults to true
// when unset.
func (a *Argument) IsRequired() bool {
	return a.Required == nil || *a.Required
}

var argNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate returns problems with the argument declaration.
func (a *Argument) Validate() []string {
	var errs []string
	if a.Name == "" {
		errs = append(errs, "Argument name is required")
	} else if !argNamePattern.MatchString(a.Name) {
		errs = append(errs, fmt.Sprintf(
			"Argument name '%s' should only contain letters, numbers, hyphens, and underscores", a.Name))
	}
	if a.IsRequired() && a.Default != nil {
		errs = append(errs, fmt.Sprintf(
			"Argument '%s' cannot be required and have a default value", a.Name))
	}
	return errs
}

// Command is a named workflow that can be run standalone or invoked from
// another workflow through a command block.
type Command struct {
	ID          string      `yaml:"id,omitempty" json:"id,omitempty"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Workflow    *Workflow   `yaml:"workflow" json:"workflow"`
	Arguments   []*Argument `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Metadata    *Metadata   `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Touch updates the modified timestamp, creating metadata if needed.
func (c *Command) Touch() {
	now := time.Now()
	if c.Metadata == nil {
		c.Metadata = &Metadata{Created: now, Version: "1.0"}
	}
	c.Metadata.Modified = now
}

// ParseArguments parses a shell-style argument string into the command's
// positional variables. Each declared argument is available both as $N and
// under its declared name; missing optional arguments fall back to their
// defaults. Extra arguments beyond those declared are still available as $N,
// like in a shell.
func (c *Command) ParseArguments(argString string) (map[string]string, error) {
	var parsed []string
	if strings.TrimSpace(argString) != "" {
		var err error
		parsed, err = splitArguments(argString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse arguments: %w", err)
		}
	}

	result := map[string]string{}
	for i, def := range c.Arguments {
		position := i + 1
		positionalKey := fmt.Sprintf("$%d", position)

		var value string
		switch {
		case i < len(parsed):
			value = parsed[i]
		case def.Default != nil:
			value = *def.Default
		case def.IsRequired():
			return nil, fmt.Errorf("Missing required argument: %s (position %d)", def.Name, position)
		default:
			// Optional argument with no default
			continue
		}
		result[positionalKey] = value
		result[def.Name] = value
	}

	// Extra arguments are exposed positionally, like in a shell.
	for i := len(c.Arguments); i < len(parsed); i++ {
		result[fmt.Sprintf("$%d", i+1)] = parsed[i]
	}
	return result, nil
}

// Validate checks the command's workflow, name, and argument declarations.
func (c *Command) Validate() *ValidationResult {
	var result *ValidationResult
	if c.Workflow != nil {
		result = c.Workflow.Validate()
	} else {
		result = &ValidationResult{Errors: []string{"Command has no workflow"}}
	}
	errs := result.Errors
	warnings := result.Warnings

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "Command name cannot be empty")
	} else {
		if strings.Contains(c.Name, " ") {
			errs = append(errs, "Command name cannot contain spaces (use hyphens or underscores)")
		} else if !argNamePattern.MatchString(c.Name) {
			warnings = append(warnings,
				"Command name should only contain letters, numbers, hyphens, and underscores")
		}
	}

	for _, arg := range c.Arguments {
		errs = append(errs, arg.Validate()...)
	}

	warnings = append(warnings, c.checkArgumentReferences()...)

	return &ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// checkArgumentReferences scans block text for positional references that
// exceed the declared arguments or skip numbers.
func (c *Command) checkArgumentReferences() []string {
	if c.Workflow == nil {
		return nil
	}
	var warnings []string
	for _, id := range c.Workflow.Names() {
		block := c.Workflow.Blocks[id]
		if block == nil {
			continue
		}
		for _, text := range []string{block.Prompt, block.Command, block.VariableValue, block.Arguments} {
			if text == "" {
				continue
			}
			for _, w := range template.ValidateArgumentSyntax(text) {
				warnings = append(warnings, fmt.Sprintf("Block '%s': %s", block.DisplayName(), w))
			}
			for _, ref := range template.FindArgumentReferences(text) {
				n := 0
				fmt.Sscanf(ref, "$%d", &n)
				if n > len(c.Arguments) {
					warnings = append(warnings, fmt.Sprintf(
						"Block '%s' references %s but only %d argument(s) are defined",
						block.DisplayName(), ref, len(c.Arguments)))
				}
			}
		}
	}
	return warnings
}

// CheckCircularDependencies walks command blocks across definitions looking
// for invocation cycles. It returns a description of the first cycle found,
// such as "a -> b -> Circular dependency detected: a calls itself", or the
// empty string if there is none. Targets missing from all are skipped; a
// missing target is reported by other validation.
func CheckCircularDependencies(name string, wf *Workflow, all map[string]*Command) string {
	return checkCircular(name, wf, all, map[string]bool{})
}

func checkCircular(name string, wf *Workflow, all map[string]*Command, visited map[string]bool) string {
	if visited[name] {
		return fmt.Sprintf("Circular dependency detected: %s calls itself", name)
	}
	visited[name] = true
	if wf == nil {
		return ""
	}
	for _, id := range wf.Names() {
		block := wf.Blocks[id]
		if block == nil || block.Type != BlockTypeCommand {
			continue
		}
		target, ok := all[block.CommandName]
		if !ok {
			continue
		}
		// Copy so sibling paths do not see each other's visits.
		branch := make(map[string]bool, len(visited))
		for k, v := range visited {
			branch[k] = v
		}
		if msg := checkCircular(block.CommandName, target.Workflow, all, branch); msg != "" {
			return fmt.Sprintf("%s -> %s", name, msg)
		}
	}
	return ""
}

// shellMetaCharacters in an unquoted argument token usually mean the
// caller intended quoting: a real shell would have expanded or split on
// them before the engine ever saw the value.
const shellMetaCharacters = "|&;<>()`$*?[]{}~#"

// ArgumentSyntaxWarnings reports advisory problems in a shell-style
// argument string: unquoted tokens containing shell metacharacters. The
// warnings never block parsing; quoted or escaped values may contain any
// of these characters deliberately.
func ArgumentSyntaxWarnings(argString string) []string {
	var warnings []string
	var current strings.Builder
	var quote rune
	inToken := false
	quoted := false
	escaped := false

	flush := func() {
		if inToken && !quoted && strings.ContainsAny(current.String(), shellMetaCharacters) {
			warnings = append(warnings, fmt.Sprintf(
				"Unquoted argument '%s' contains shell special characters; quote it if it is meant literally",
				current.String()))
		}
		current.Reset()
		inToken = false
		quoted = false
	}

	for _, r := range argString {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inToken = true
			quoted = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
			quoted = true
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	flush()
	return warnings
}

// splitArguments splits a shell-style argument string into tokens. Single
// and double quotes group words; a backslash escapes the next character
// except inside single quotes.
func splitArguments(s string) ([]string, error) {
	var args []string
	var current strings.Builder
	var quote rune
	inToken := false
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inToken = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				args = append(args, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if quote != 0 {
		return nil, errors.New("no closing quotation")
	}
	if inToken {
		args = append(args, current.String())
	}
	return args, nil
}
