package schema

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSONPattern = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")
	fencedPattern     = regexp.MustCompile("```\\s*([\\s\\S]*?)\\s*```")
	bareObjectPattern = regexp.MustCompile(`\{[\s\S]*?\}`)
)

// ExtractJSON pulls a JSON object or array out of free-form model output.
// It prefers a ```json fenced block, then any fenced block, then the first
// standalone object. Fenced candidates that fail to parse fall through to
// the next pattern.
func ExtractJSON(text string) (string, bool) {
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if looksLikeJSON(candidate) && json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	if m := fencedPattern.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if looksLikeJSON(candidate) && json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	// Non-greedy, so a nested object will not survive this pattern. Models
	// that emit nested output without fences are caught by the retry prompt.
	if m := bareObjectPattern.FindString(text); m != "" {
		if json.Valid([]byte(m)) {
			return m, true
		}
	}
	return "", false
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
