package ai

import (
	"encoding/json"
	"strings"
)

// StripCodeFence removes markdown code-fence wrapping from a model response.
// Models sometimes wrap JSON in ``` markers even when a JSON response type
// was requested; stripping is a no-op on unwrapped input.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop a language tag such as "json" on the opening fence line.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || isFenceTag(first) {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// decodeModelJSON fence-strips and decodes a model response into out.
// A decode failure is a terminal parse error, never retried.
func decodeModelJSON(raw string, out any) error {
	cleaned := StripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return newError(KindParse, "decode model JSON: %v", err)
	}
	return nil
}
