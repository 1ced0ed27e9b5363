// Package security provides advisory validation of shell commands before
// the engine executes them. Commands are matched against an ordered
// table of tagged patterns: "Dangerous" findings block execution, while
// "Warning" and "Info" findings only annotate. Deployments can layer
// their own deny and allow rules on top using glob patterns.
//
// This is pattern matching, not a sandbox. It catches common destructive
// mistakes; it does not confine a determined command.
package security

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/deepnoodle-ai/eddy/slogger"
)

// Severity classifies a finding. Only SeverityDangerous makes a command
// unsafe to run.
type Severity string

const (
	SeverityDangerous Severity = "dangerous"
	SeverityWarning   Severity = "warning"
	SeverityInfo      Severity = "info"
)

// Rule pairs a regular expression with the finding it produces.
// Matching is case-insensitive against the whitespace-normalized
// command text.
type Rule struct {
	Pattern  *regexp.Regexp
	Severity Severity
	Message  string
}

// Finding is one matched rule.
type Finding struct {
	Severity Severity
	Message  string
}

// Result is the outcome of validating one command.
type Result struct {
	Safe     bool
	Findings []Finding
}

// Messages returns the finding messages in match order.
func (r *Result) Messages() []string {
	messages := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		messages = append(messages, f.Message)
	}
	return messages
}

// RuleAction is what a custom command rule does when it matches.
type RuleAction string

const (
	// RuleDeny marks matching commands as dangerous. Deny rules are
	// evaluated before allow rules and before the built-in table.
	RuleDeny RuleAction = "deny"

	// RuleAllow skips all remaining checks for matching commands. Used
	// for trusted commands that trip built-in patterns.
	RuleAllow RuleAction = "allow"
)

// CommandRule is a deployment-supplied glob rule, e.g.
// {Action: RuleDeny, Command: "git push *"}.
type CommandRule struct {
	Action  RuleAction `json:"action" yaml:"action"`
	Command string     `json:"command" yaml:"command"`
	Message string     `json:"message,omitempty" yaml:"message,omitempty"`

	matcher glob.Glob
}

func defaultRules() []Rule {
	build := func(expr string, severity Severity, message string) Rule {
		return Rule{
			Pattern:  regexp.MustCompile(`(?i)` + expr),
			Severity: severity,
			Message:  message,
		}
	}
	return []Rule{
		// Destructive file operations
		build(`rm\s+(-[rf]+\s+)?/`, SeverityDangerous, "Dangerous: rm command with root path"),
		build(`rm\s+-rf\s+~`, SeverityDangerous, "Dangerous: rm -rf on home directory"),
		build(`dd\s+if=`, SeverityDangerous, "Dangerous: dd command can overwrite disks"),

		// Fork bombs and resource exhaustion
		build(`:\(\)\s*\{\s*:\|:\&\s*\};:`, SeverityDangerous, "Dangerous: Fork bomb detected"),
		build(`while\s+true.*do.*done`, SeverityWarning, "Warning: Infinite loop detected"),

		// Piping downloads into a shell
		build(`curl.*\|\s*bash`, SeverityDangerous, "Dangerous: Piping curl to bash"),
		build(`wget.*\|\s*bash`, SeverityDangerous, "Dangerous: Piping wget to bash"),
		build(`curl.*\|\s*sh`, SeverityDangerous, "Dangerous: Piping curl to sh"),
		build(`wget.*\|\s*sh`, SeverityDangerous, "Dangerous: Piping wget to sh"),

		// System modification
		build(`mkfs`, SeverityDangerous, "Dangerous: Filesystem creation detected"),
		build(`fdisk`, SeverityDangerous, "Dangerous: Disk partitioning command"),
		build(`parted`, SeverityDangerous, "Dangerous: Disk partitioning command"),

		// Privilege escalation
		build(`sudo\s+rm`, SeverityWarning, "Warning: sudo rm detected"),
		build(`sudo\s+dd`, SeverityWarning, "Warning: sudo dd detected"),

		// Block devices
		build(`>\s*/dev/sd[a-z]`, SeverityDangerous, "Dangerous: Writing to block device"),
		build(`>\s*/dev/null`, SeverityInfo, "Info: Redirecting to /dev/null"),
	}
}

// safePrefixes match commands that never need confirmation.
var safePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^echo\s+`),
	regexp.MustCompile(`(?i)^cat\s+`),
	regexp.MustCompile(`(?i)^ls\s+`),
	regexp.MustCompile(`(?i)^pwd`),
	regexp.MustCompile(`(?i)^date`),
	regexp.MustCompile(`(?i)^whoami`),
}

// ValidatorOptions configures a Validator.
type ValidatorOptions struct {
	// ExtraRules are appended after the built-in pattern table.
	ExtraRules []Rule

	// CommandRules are glob deny/allow rules evaluated before the
	// pattern table, deny first.
	CommandRules []CommandRule

	Logger slogger.Logger
}

// Validator checks shell commands against the pattern table and any
// configured command rules.
type Validator struct {
	rules  []Rule
	deny   []CommandRule
	allow  []CommandRule
	logger slogger.Logger
}

// NewValidator creates a Validator. Glob patterns in command rules are
// compiled here; an invalid pattern is an error.
func NewValidator(opts ValidatorOptions) (*Validator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	v := &Validator{
		rules:  append(defaultRules(), opts.ExtraRules...),
		logger: logger,
	}
	for _, rule := range opts.CommandRules {
		if rule.Command == "" {
			return nil, fmt.Errorf("command rule requires a command pattern")
		}
		matcher, err := glob.Compile(rule.Command)
		if err != nil {
			return nil, fmt.Errorf("invalid command rule pattern %q: %w", rule.Command, err)
		}
		rule.matcher = matcher
		switch rule.Action {
		case RuleDeny:
			v.deny = append(v.deny, rule)
		case RuleAllow:
			v.allow = append(v.allow, rule)
		default:
			return nil, fmt.Errorf("unknown command rule action %q", rule.Action)
		}
	}
	return v, nil
}

// ValidateCommand checks one command. The result is advisory: Safe is
// false when a deny rule or a Dangerous pattern matched.
func (v *Validator) ValidateCommand(command string) *Result {
	result := &Result{Safe: true}
	if strings.TrimSpace(command) == "" {
		return result
	}

	normalized := strings.Join(strings.Fields(command), " ")

	for _, rule := range v.deny {
		if rule.matcher.Match(normalized) {
			message := rule.Message
			if message == "" {
				message = fmt.Sprintf("Dangerous: command matches deny rule %q", rule.Command)
			}
			result.Safe = false
			result.Findings = append(result.Findings, Finding{
				Severity: SeverityDangerous,
				Message:  message,
			})
			v.logger.Warn("security: command matched deny rule",
				"rule", rule.Command, "command", command)
			return result
		}
	}

	for _, rule := range v.allow {
		if rule.matcher.Match(normalized) {
			v.logger.Debug("security: command matched allow rule",
				"rule", rule.Command, "command", command)
			return result
		}
	}

	for _, rule := range v.rules {
		if rule.Pattern.MatchString(normalized) {
			if rule.Severity == SeverityDangerous {
				result.Safe = false
				v.logger.Warn("security: dangerous pattern matched",
					"message", rule.Message, "command", command)
			}
			result.Findings = append(result.Findings, Finding{
				Severity: rule.Severity,
				Message:  rule.Message,
			})
		}
	}

	v.logger.Debug("bash command validated",
		"safe", result.Safe, "findings", len(result.Findings))
	return result
}

// IsSafeCommand reports whether the command starts with a known-safe
// prefix such as echo or ls.
func IsSafeCommand(command string) bool {
	if strings.TrimSpace(command) == "" {
		return true
	}
	normalized := strings.Join(strings.Fields(command), " ")
	for _, pattern := range safePrefixes {
		if pattern.MatchString(normalized) {
			return true
		}
	}
	return false
}
