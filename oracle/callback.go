package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flashbots/noisyagg/protocol"
)

// Callback delivers a fulfilled request to the ledger.
type Callback interface {
	Deliver(ctx context.Context, result *Result) error
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(ctx context.Context, result *Result) error

// Deliver calls f.
func (f CallbackFunc) Deliver(ctx context.Context, result *Result) error {
	return f(ctx, result)
}

// HTTPCallback posts results as JSON to a ledger's callback endpoint.
// Throttled (429) and 5xx responses are retried up to MaxAttempts times.
type HTTPCallback struct {
	URL         string
	Client      *http.Client
	MaxAttempts int
	Backoff     time.Duration
}

// NewHTTPCallback creates an HTTPCallback using http.DefaultClient.
func NewHTTPCallback(url string) *HTTPCallback {
	return &HTTPCallback{URL: url, Client: http.DefaultClient, MaxAttempts: 5, Backoff: 200 * time.Millisecond}
}

type statusError struct {
	code int
	msg  []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("callback rejected with status %d: %s", e.code, e.msg)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Deliver posts result and fails on any non-2xx status. A rejected result
// leaves the ledger unchanged, so retrying a throttled delivery is safe.
func (c *HTTPCallback) Deliver(ctx context.Context, result *Result) error {
	body, err := protocol.SerializeMessage(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	attempts := max(c.MaxAttempts, 1)
	backoff := c.Backoff
	for attempt := 1; ; attempt++ {
		err = c.post(ctx, body)
		var se *statusError
		if err == nil || !errors.As(err, &se) || !se.retryable() || attempt >= attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *HTTPCallback) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, msg: bytes.TrimSpace(msg)}
	}
	return nil
}
