package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies provider failures into the taxonomy surfaced to callers.
type Kind string

const (
	KindMissingKey         Kind = "missing_key"
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindNetwork            Kind = "network"
	KindSafetyRejected     Kind = "safety_rejected"
	KindParse              Kind = "parse"
	KindUnknown            Kind = "unknown"
)

// userMessages maps each kind to its distinct user-facing sentence.
var userMessages = map[Kind]string{
	KindMissingKey:         "The AI service is not configured: an API key is required for recommendations.",
	KindRateLimited:        "The AI service is receiving too many requests right now. Please try again in a moment.",
	KindServiceUnavailable: "The AI service is temporarily unavailable. Please try again shortly.",
	KindNetwork:            "We could not reach the AI service. Check your connection and try again.",
	KindSafetyRejected:     "The AI service declined this request for safety reasons. Try rephrasing it.",
	KindParse:              "The AI service returned a response we could not read. Please try again.",
	KindUnknown:            "Something unexpected went wrong while talking to the AI service.",
}

// Error is a classified provider failure. Detail keeps the raw provider
// message for logs; UserMessage is what reaches the UI.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ai: %s", e.Kind)
	}
	return fmt.Sprintf("ai: %s: %s", e.Kind, e.Detail)
}

// UserMessage returns the human-readable sentence for this failure kind.
func (e *Error) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// Retryable reports whether a transparent retry is allowed for this kind.
// Only rate limiting and upstream unavailability qualify.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindServiceUnavailable
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into a classified *Error, mapping unclassified errors
// to KindUnknown.
func AsError(err error) *Error {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}
	return &Error{Kind: KindUnknown, Detail: err.Error()}
}

// classifyStatus maps an HTTP status plus provider message to a failure kind.
// The provider reports an invalid key as 400 INVALID_ARGUMENT, so a 400
// mentioning the key is treated as a credential problem.
func classifyStatus(status int, providerMsg string) *Error {
	lower := strings.ToLower(providerMsg)
	switch {
	case status == 401 || status == 403,
		status == 400 && strings.Contains(lower, "api key"):
		return newError(KindMissingKey, "status %d: %s", status, providerMsg)
	case status == 429:
		return newError(KindRateLimited, "status %d: %s", status, providerMsg)
	case status >= 500:
		return newError(KindServiceUnavailable, "status %d: %s", status, providerMsg)
	default:
		return newError(KindUnknown, "status %d: %s", status, providerMsg)
	}
}
