package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/protocol"
	"go.uber.org/atomic"
)

// APIError is a non-2xx response from the ledger API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger returned %d: %s", e.StatusCode, e.Message)
}

// LedgerClient signs and sends requests to an HTTPLedger.
type LedgerClient struct {
	baseURL    string
	signingKey crypto.PrivateKey
	http       *http.Client
	nonce      atomic.Uint64
}

// NewLedgerClient creates a client acting as signingKey's owner. Nonces start
// from the current time so a restarted client does not reuse them.
func NewLedgerClient(baseURL string, signingKey crypto.PrivateKey) (*LedgerClient, error) {
	if _, err := signingKey.PublicKey(); err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	c := &LedgerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: signingKey,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
	c.nonce.Store(uint64(time.Now().UnixNano()))
	return c, nil
}

// PublicKey returns the client's identity.
func (c *LedgerClient) PublicKey() crypto.PublicKey {
	pk, _ := c.signingKey.PublicKey()
	return pk
}

func (c *LedgerClient) nextNonce() uint64 {
	return c.nonce.Inc()
}

// OpenBatch opens a batch with the given noise magnitude.
func (c *LedgerClient) OpenBatch(ctx context.Context, noise uint64) (protocol.BatchID, error) {
	var resp OpenBatchResponse
	err := postSignedRequest(ctx, c, "/batches", &OpenBatchRequest{Op: OpOpenBatch, NoiseMagnitude: noise, Nonce: c.nextNonce()}, &resp)
	return resp.BatchID, err
}

// CloseBatch closes batch id.
func (c *LedgerClient) CloseBatch(ctx context.Context, id protocol.BatchID) error {
	return postSignedRequest(ctx, c, batchPath(id, "close"), &CloseBatchRequest{Op: OpCloseBatch, BatchID: id, Nonce: c.nextNonce()}, nil)
}

// SetNoiseMagnitude replaces the noise magnitude of batch id.
func (c *LedgerClient) SetNoiseMagnitude(ctx context.Context, id protocol.BatchID, noise uint64) error {
	return postSignedRequest(ctx, c, batchPath(id, "noise"), &SetNoiseRequest{Op: OpSetNoise, BatchID: id, NoiseMagnitude: noise, Nonce: c.nextNonce()}, nil)
}

// Submit contributes value to batch id.
func (c *LedgerClient) Submit(ctx context.Context, id protocol.BatchID, value uint64) error {
	return postSignedRequest(ctx, c, batchPath(id, "submit"), &SubmitRequest{Op: OpSubmit, BatchID: id, Value: value, Nonce: c.nextNonce()}, nil)
}

// RequestRelease asks for the noisy result of batch id.
func (c *LedgerClient) RequestRelease(ctx context.Context, id protocol.BatchID) (protocol.RequestID, error) {
	var resp ReleaseResponse
	err := postSignedRequest(ctx, c, batchPath(id, "release"), &ReleaseRequest{Op: OpRelease, BatchID: id, Nonce: c.nextNonce()}, &resp)
	return resp.RequestID, err
}

// AddProvider grants provider the data provider role.
func (c *LedgerClient) AddProvider(ctx context.Context, provider crypto.PublicKey) error {
	return postSignedRequest(ctx, c, "/admin/providers", &ProviderRequest{Op: OpAddProvider, Provider: provider.String(), Nonce: c.nextNonce()}, nil)
}

// RemoveProvider revokes the data provider role from provider.
func (c *LedgerClient) RemoveProvider(ctx context.Context, provider crypto.PublicKey) error {
	return postSignedRequest(ctx, c, "/admin/providers/remove", &ProviderRequest{Op: OpRemoveProvider, Provider: provider.String(), Nonce: c.nextNonce()}, nil)
}

// TransferOwnership hands the owner role to newOwner.
func (c *LedgerClient) TransferOwnership(ctx context.Context, newOwner crypto.PublicKey) error {
	return postSignedRequest(ctx, c, "/admin/owner", &OwnerRequest{Op: OpTransferOwnership, NewOwner: newOwner.String(), Nonce: c.nextNonce()}, nil)
}

// Pause pauses the ledger.
func (c *LedgerClient) Pause(ctx context.Context) error {
	return postSignedRequest(ctx, c, "/admin/pause", &PauseRequest{Op: OpPause, Nonce: c.nextNonce()}, nil)
}

// Unpause resumes the ledger.
func (c *LedgerClient) Unpause(ctx context.Context) error {
	return postSignedRequest(ctx, c, "/admin/unpause", &PauseRequest{Op: OpUnpause, Nonce: c.nextNonce()}, nil)
}

// SetCooldown changes the cooldown window of action.
func (c *LedgerClient) SetCooldown(ctx context.Context, action protocol.ActionKind, d time.Duration) error {
	return postSignedRequest(ctx, c, "/admin/cooldown", &CooldownRequest{Op: OpSetCooldown, Action: action.String(), Cooldown: d, Nonce: c.nextNonce()}, nil)
}

// Batch fetches the view of batch id.
func (c *LedgerClient) Batch(ctx context.Context, id protocol.BatchID) (*protocol.BatchView, error) {
	var view protocol.BatchView
	if err := c.get(ctx, batchPath(id, ""), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Status fetches the ledger-wide state.
func (c *LedgerClient) Status(ctx context.Context) (*protocol.Status, error) {
	var status protocol.Status
	if err := c.get(ctx, "/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Events fetches the audit trail of batch id, or of everything when id is 0.
func (c *LedgerClient) Events(ctx context.Context, id protocol.BatchID) ([]*StoredEvent, error) {
	path := "/events"
	if id != 0 {
		path += "?" + url.Values{"batch": {strconv.FormatUint(uint64(id), 10)}}.Encode()
	}
	var resp EventsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// AwaitRelease polls batch id until its noisy result is released.
func (c *LedgerClient) AwaitRelease(ctx context.Context, id protocol.BatchID, interval time.Duration) (*protocol.Release, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := c.Batch(ctx, id)
		if err != nil {
			return nil, err
		}
		if view.Release != nil {
			return view.Release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func batchPath(id protocol.BatchID, action string) string {
	path := "/batches/" + strconv.FormatUint(uint64(id), 10)
	if action != "" {
		path += "/" + action
	}
	return path
}

func postSignedRequest[T any](ctx context.Context, c *LedgerClient, path string, obj *T, out any) error {
	signed, err := protocol.NewSigned(c.signingKey, obj)
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}
	body, err := json.Marshal(signed)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *LedgerClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *LedgerClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
