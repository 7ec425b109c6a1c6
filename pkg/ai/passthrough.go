package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RawGenerate forwards an opaque generateContent payload to the provider and
// returns its raw JSON response. This backs the server passthrough that keeps
// the provider secret out of browser bundles: the client sends
// {model, contents, config} and receives the provider response untouched.
func (c *Client) RawGenerate(ctx context.Context, model string, payload json.RawMessage) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, newError(KindMissingKey, "no API key configured")
	}
	if model == "" {
		model = c.textModel
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, normalizeModel(model), c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, newError(KindUnknown, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindNetwork, "%v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, newError(KindNetwork, "read provider response: %v", err)
	}
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		return nil, classifyStatus(resp.StatusCode, errResp.Error.Message)
	}
	return json.RawMessage(body), nil
}
