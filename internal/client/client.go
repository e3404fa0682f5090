// Package client provides a Go SDK for the replicated log's HTTP API.
//
// Instead of hand-rolling HTTP requests and JSON everywhere, callers get a
// typed API over a single node:
//
//	client.Append(ctx, "payload", 2, "")
//	client.Log(ctx)
//	client.Health(ctx)
//
// The client talks to exactly one node; replication, write concern, and
// ordering all happen server-side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"replicated-log/internal/logstore"
)

// Client represents a connection to one node.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Client. A zero timeout defaults to 10s; appends under
// w > 1 can block for a while, so size the timeout to the write concern.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ack is a secondary's response to a raw replicate call.
type Ack struct {
	Status   string `json:"status"`
	ID       uint64 `json:"id"`
	Dedup    bool   `json:"dedup,omitempty"`
	Buffered bool   `json:"buffered,omitempty"`
}

// SecondaryInfo is the primary's view of one secondary in a health report.
type SecondaryInfo struct {
	Status          string    `json:"status"`
	Missed          int       `json:"missed"`
	LastSeen        time.Time `json:"last_seen"`
	PendingMessages int       `json:"pending_messages"`
}

// HealthInfo is the health report of one node. Secondaries and HasQuorum
// are only present when the node is the primary.
type HealthInfo struct {
	OK                bool                     `json:"ok"`
	Role              string                   `json:"role"`
	TS                time.Time                `json:"ts"`
	MessageCount      int                      `json:"message_count"`
	PendingOutOfOrder int                      `json:"pending_out_of_order"`
	Secondaries       map[string]SecondaryInfo `json:"secondaries,omitempty"`
	HasQuorum         *bool                    `json:"has_quorum,omitempty"`
}

// Append writes content with write concern w (primary only). The call
// blocks until the node has collected w-1 secondary ACKs. requestID is
// optional; when set it is sent as X-Request-ID for log correlation.
func (c *Client) Append(ctx context.Context, content string, w int, requestID string) (*logstore.Message, error) {
	body, _ := json.Marshal(map[string]any{"content": content, "w": w})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/append", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("append request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result logstore.Message
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Log returns every committed message, ascending by id.
func (c *Client) Log(ctx context.Context) ([]logstore.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/log", c.baseURL), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("log request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result []logstore.Message
	return result, json.NewDecoder(resp.Body).Decode(&result)
}

// Health fetches the node's health report.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result HealthInfo
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Replicate posts a raw replicated record to a secondary, the same call the
// primary's machinery makes. Useful for tooling that feeds a secondary
// directly.
func (c *Client) Replicate(ctx context.Context, msg logstore.Message) (*Ack, error) {
	body, _ := json.Marshal(msg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/replicate", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result Ack
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts HTTP error responses into Go errors. 2xx is success;
// anything else becomes an APIError carrying the server's {"error": "..."}
// detail when one is present.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
