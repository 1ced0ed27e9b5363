package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/deepnoodle-ai/eddy/schema"
)

// BlockType identifies the kind of a workflow block. The set of kinds is
// closed: the execution engine dispatches exhaustively over these values.
type BlockType string

const (
	BlockTypeStart    BlockType = "start"
	BlockTypePrompt   BlockType = "prompt"
	BlockTypeBranch   BlockType = "branch"
	BlockTypeEnd      BlockType = "end"
	BlockTypeVariable BlockType = "variable"
	BlockTypeBash     BlockType = "bash"
	BlockTypeCommand  BlockType = "command"
	BlockTypeRefresh  BlockType = "refresh"
)

func (t BlockType) String() string {
	return string(t)
}

// Valid reports whether t is one of the known block types.
func (t BlockType) Valid() bool {
	switch t {
	case BlockTypeStart, BlockTypePrompt, BlockTypeBranch, BlockTypeEnd,
		BlockTypeVariable, BlockTypeBash, BlockTypeCommand, BlockTypeRefresh:
		return true
	}
	return false
}

// Position of a block on a canvas. Retained for round-tripping definitions
// authored in visual editors; the engine ignores it.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Block is one node in a workflow graph. The Type tag determines which of
// the type-specific fields are meaningful.
type Block struct {
	ID       string    `yaml:"id,omitempty" json:"id,omitempty"`
	Type     BlockType `yaml:"type" json:"type"`
	Name     string    `yaml:"name,omitempty" json:"name,omitempty"`
	Position *Position `yaml:"position,omitempty" json:"position,omitempty"`

	// Prompt blocks
	Prompt       string         `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	OutputSchema *schema.Schema `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`

	// Branch blocks
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Variable blocks
	VariableName  string `yaml:"variable_name,omitempty" json:"variable_name,omitempty"`
	VariableValue string `yaml:"variable_value,omitempty" json:"variable_value,omitempty"`
	VariableType  string `yaml:"variable_type,omitempty" json:"variable_type,omitempty"`

	// Bash blocks
	Command          string `yaml:"command,omitempty" json:"command,omitempty"`
	CaptureOutput    *bool  `yaml:"capture_output,omitempty" json:"capture_output,omitempty"`
	OutputVariable   string `yaml:"output_variable,omitempty" json:"output_variable,omitempty"`
	OutputType       string `yaml:"output_type,omitempty" json:"output_type,omitempty"`
	WorkingDirectory string `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`
	ContinueOnError  bool   `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
	ExitCodeVariable string `yaml:"exit_code_variable,omitempty" json:"exit_code_variable,omitempty"`

	// Command blocks
	CommandName      string `yaml:"command_name,omitempty" json:"command_name,omitempty"`
	Arguments        string `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	InheritVariables bool   `yaml:"inherit_variables,omitempty" json:"inherit_variables,omitempty"`
	MergeOutput      bool   `yaml:"merge_output,omitempty" json:"merge_output,omitempty"`
}

// DisplayName returns the block's name, falling back to a name derived from
// its type.
func (b *Block) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	t := string(b.Type)
	if t == "" {
		return "Block"
	}
	return strings.ToUpper(t[:1]) + t[1:] + " Block"
}

// CapturesOutput reports whether a bash block captures stdout and stderr.
// Defaults to true when unset.
func (b *Block) CapturesOutput() bool {
	return b.CaptureOutput == nil || *b.CaptureOutput
}

var identPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var valueTypes = map[string]bool{
	"string":  true,
	"int":     true,
	"float":   true,
	"boolean": true,
}

// Validate returns configuration problems with the block itself. Graph-level
// problems, such as a branch without outgoing connections, are reported by
// Workflow.Validate.
func (b *Block) Validate() []string {
	var errs []string
	if !b.Type.Valid() {
		errs = append(errs, fmt.Sprintf("Unknown block type: %s", b.Type))
		return errs
	}
	switch b.Type {
	case BlockTypePrompt:
		if strings.TrimSpace(b.Prompt) == "" {
			errs = append(errs, "Prompt text is required")
		}
	case BlockTypeBranch:
		if strings.TrimSpace(b.Condition) == "" {
			errs = append(errs, "Branch condition is required (e.g. 'count > 5')")
		}
	case BlockTypeVariable:
		if b.VariableName == "" {
			errs = append(errs, "Variable name is required")
		} else if !identPattern.MatchString(b.VariableName) {
			errs = append(errs, "Variable name must be alphanumeric (underscores allowed)")
		}
		if b.VariableType != "" && !valueTypes[b.VariableType] {
			errs = append(errs, fmt.Sprintf("Invalid variable type: %s", b.VariableType))
		}
	case BlockTypeBash:
		if strings.TrimSpace(b.Command) == "" {
			errs = append(errs, "Bash command is required")
		}
		if b.OutputVariable != "" && !identPattern.MatchString(b.OutputVariable) {
			errs = append(errs, "Output variable name must be alphanumeric (underscores allowed)")
		}
		if b.ExitCodeVariable != "" && !identPattern.MatchString(b.ExitCodeVariable) {
			errs = append(errs, "Exit code variable name must be alphanumeric (underscores allowed)")
		}
		if b.OutputType != "" && !valueTypes[b.OutputType] {
			errs = append(errs, fmt.Sprintf("Invalid output type: %s", b.OutputType))
		}
	case BlockTypeCommand:
		if b.CommandName == "" {
			errs = append(errs, "Command name is required")
		}
	}
	return errs
}
