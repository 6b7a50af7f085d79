package utils

import (
	"strings"
	"unicode"
)

// SanitizePromptField prepares a user-controllable string for embedding in an
// LLM prompt: newlines and control characters are stripped and the result is
// capped at maxLen runes. This keeps candidate titles and user tones from
// injecting structure into the prompt.
func SanitizePromptField(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	runes := []rune(out)
	if maxLen > 0 && len(runes) > maxLen {
		out = string(runes[:maxLen])
	}
	return out
}
