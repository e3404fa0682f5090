// Package transport is the node-to-node I/O adapter: a replicate POST and a
// health probe per secondary URL, both JSON over HTTP with their own
// timeouts. Failures are partitioned into the four kinds the replication
// machinery distinguishes; callers treat them all as retryable, so the
// partitioning exists for logs and tests rather than control flow.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"replicated-log/internal/logstore"
)

var (
	// ErrTimeout covers a replicate call or probe that ran out of time.
	ErrTimeout = errors.New("transport: timeout")
	// ErrConnect covers failures to reach the peer at all.
	ErrConnect = errors.New("transport: connect")
	// ErrBadAck covers a 2xx replicate response whose body is not a
	// well-formed {"status":"ok"} acknowledgement.
	ErrBadAck = errors.New("transport: bad ack shape")
)

// StatusError is a non-2xx HTTP response from a peer.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: http status %d", e.Code)
}

// Ack is a secondary's acknowledgement of one replicated message.
type Ack struct {
	Status   string `json:"status"`
	ID       uint64 `json:"id"`
	Dedup    bool   `json:"dedup,omitempty"`
	Buffered bool   `json:"buffered,omitempty"`
}

// HTTP implements the adapter over net/http. Replicate calls and health
// probes use separate clients because their timeouts differ by an order of
// magnitude.
type HTTP struct {
	repl  *http.Client
	probe *http.Client
}

// NewHTTP creates an adapter with the given per-call timeouts.
func NewHTTP(replTimeout, probeTimeout time.Duration) *HTTP {
	return &HTTP{
		repl:  &http.Client{Timeout: replTimeout},
		probe: &http.Client{Timeout: probeTimeout},
	}
}

// SendReplicate POSTs msg to baseURL's replicate endpoint and parses the ACK.
func (h *HTTP) SendReplicate(ctx context.Context, baseURL string, msg logstore.Message) (Ack, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Ack{}, fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/replicate", bytes.NewReader(body))
	if err != nil {
		return Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.repl.Do(req)
	if err != nil {
		return Ack{}, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return Ack{}, &StatusError{Code: resp.StatusCode}
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrBadAck, err)
	}
	if ack.Status != "ok" {
		return Ack{}, fmt.Errorf("%w: status %q", ErrBadAck, ack.Status)
	}
	return ack, nil
}

// ProbeHealth GETs baseURL's health endpoint. Any non-2xx or I/O failure is
// an error; the body is ignored.
func (h *HTTP) ProbeHealth(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := h.probe.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// classify folds the zoo of net/http error shapes into the two kinds the
// rest of the system names: a call that ran out of time vs. a peer that
// could not be reached.
func classify(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnect, err)
}
