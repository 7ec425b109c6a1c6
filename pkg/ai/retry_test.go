package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testClient() *Client {
	return NewClient(Config{APIKey: "test-key", RetryInterval: time.Millisecond})
}

func TestWithRetryRetriesRateLimitThenSucceeds(t *testing.T) {
	c := testClient()
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		if calls <= 2 {
			return classifyStatus(429, "slow down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 2 retries (3 calls), got %d calls", calls)
	}
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	c := testClient()
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		return classifyStatus(503, "upstream down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != maxRetries+1 {
		t.Fatalf("expected %d calls, got %d", maxRetries+1, calls)
	}
	if kind := AsError(err).Kind; kind != KindServiceUnavailable {
		t.Fatalf("expected service_unavailable, got %s", kind)
	}
}

func TestWithRetryDoesNotRetryClientErrors(t *testing.T) {
	c := testClient()
	calls := 0
	original := classifyStatus(400, "malformed request")
	err := c.withRetry(context.Background(), func() error {
		calls++
		return original
	})
	if calls != 1 {
		t.Fatalf("400 must not be retried, got %d calls", calls)
	}
	var aiErr *Error
	if !errors.As(err, &aiErr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if aiErr != original {
		t.Fatalf("expected original error to propagate, got %v", err)
	}
}

func TestWithRetryDoesNotRetryParseErrors(t *testing.T) {
	c := testClient()
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		return newError(KindParse, "bad JSON")
	})
	if calls != 1 {
		t.Fatalf("parse errors must be terminal, got %d calls", calls)
	}
	if kind := AsError(err).Kind; kind != KindParse {
		t.Fatalf("expected parse kind, got %s", kind)
	}
}
