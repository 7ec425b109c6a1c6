package catalog

import (
	"context"
	"fmt"
	"net/http"
)

// ResolveCover probes the free cover-by-ISBN service and falls back to the
// catalog thumbnail when the probe misses. Best effort: any probe failure
// just keeps the existing cover URL.
func (c *Client) ResolveCover(ctx context.Context, isbn, thumbnail string) string {
	if isbn == "" {
		return thumbnail
	}
	probeURL := fmt.Sprintf("%s/b/isbn/%s-L.jpg?default=false", c.coverBaseURL, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return thumbnail
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return thumbnail
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return probeURL
	}
	return thumbnail
}
