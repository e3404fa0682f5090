package client

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// GetRaw performs a raw GET to path on the node and returns the response
// body as a string. A debugging escape hatch for inspecting /log or /health
// without the typed decoding the SDK methods do.
func (c *Client) GetRaw(ctx context.Context, path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	return string(body), err
}
