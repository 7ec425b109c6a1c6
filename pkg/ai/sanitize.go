package ai

import (
	"strings"
	"unicode"
)

// maxInterestLen bounds the free-text interest included in prompts.
const maxInterestLen = 300

// SanitizeInterest strips control characters from free-text user input and
// truncates it to maxInterestLen runes. This bounds the prompt-injection
// surface and payload size before the text reaches any prompt.
func SanitizeInterest(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimSpace(b.String())
	runes := []rune(cleaned)
	if len(runes) > maxInterestLen {
		cleaned = strings.TrimSpace(string(runes[:maxInterestLen]))
	}
	return cleaned
}
