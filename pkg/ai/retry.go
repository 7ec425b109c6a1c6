package ai

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// maxRetries bounds transparent retries for transient failures. Two extra
// attempts on top of the first, exponential backoff starting at the client's
// retry interval.
const maxRetries = 2

// withRetry runs op, retrying only rate-limit and upstream-unavailability
// failures. Every other failure kind is permanent and propagates immediately.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if aiErr := AsError(err); aiErr.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
}

// generateRetry is the retried form of generate.
func (c *Client) generateRetry(ctx context.Context, model string, req generateRequest) (*generateResponse, error) {
	var resp *generateResponse
	err := c.withRetry(ctx, func() error {
		var opErr error
		resp, opErr = c.generate(ctx, model, req)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
