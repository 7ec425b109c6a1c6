package ai

import "testing"

func TestUserMessagesAreDistinct(t *testing.T) {
	kinds := []Kind{
		KindMissingKey, KindRateLimited, KindServiceUnavailable,
		KindNetwork, KindSafetyRejected, KindParse, KindUnknown,
	}
	seen := make(map[string]Kind, len(kinds))
	for _, k := range kinds {
		msg := (&Error{Kind: k}).UserMessage()
		if msg == "" {
			t.Fatalf("kind %s has no user message", k)
		}
		if prev, dup := seen[msg]; dup {
			t.Fatalf("kinds %s and %s share a user message", prev, k)
		}
		seen[msg] = k
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		want      Kind
		retryable bool
	}{
		{400, "API key not valid. Please pass a valid API key.", KindMissingKey, false},
		{400, "invalid request payload", KindUnknown, false},
		{401, "unauthorized", KindMissingKey, false},
		{403, "permission denied", KindMissingKey, false},
		{429, "quota exceeded", KindRateLimited, true},
		{500, "internal", KindServiceUnavailable, true},
		{503, "overloaded", KindServiceUnavailable, true},
	}
	for _, tt := range tests {
		err := classifyStatus(tt.status, tt.msg)
		if err.Kind != tt.want {
			t.Fatalf("status %d (%q): got %s, want %s", tt.status, tt.msg, err.Kind, tt.want)
		}
		if err.Retryable() != tt.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tt.status, err.Retryable(), tt.retryable)
		}
	}
}

func TestMissingKeyMessageDistinctFromTransientMessages(t *testing.T) {
	missing := (&Error{Kind: KindMissingKey}).UserMessage()
	for _, other := range []Kind{KindRateLimited, KindNetwork, KindServiceUnavailable} {
		if missing == (&Error{Kind: other}).UserMessage() {
			t.Fatalf("missing-key message must differ from %s message", other)
		}
	}
}
