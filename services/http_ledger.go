package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/metrics"
	"github.com/flashbots/noisyagg/oracle"
	"github.com/flashbots/noisyagg/protocol"
	"github.com/go-chi/chi/v5"
)

// OracleCallbackPath is the route oracle results are posted to.
const OracleCallbackPath = "/oracle/callback"

// HTTPLedger exposes a protocol.Ledger over HTTP.
//
// Every mutating request except the oracle callback is a protocol.Signed
// envelope; the signer is the caller identity passed to the ledger.
type HTTPLedger struct {
	ledger *protocol.Ledger
	events EventStore
	nonces *NonceTracker
	now    func() time.Time
	log    *slog.Logger
}

// NewHTTPLedger wraps ledger. now defaults to time.Now.
func NewHTTPLedger(ledger *protocol.Ledger, events EventStore, now func() time.Time, log *slog.Logger) (*HTTPLedger, error) {
	if ledger == nil {
		return nil, errors.New("ledger cannot be nil")
	}
	if events == nil {
		return nil, errors.New("event store cannot be nil")
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}

	return &HTTPLedger{
		ledger: ledger,
		events: events,
		nonces: NewNonceTracker(),
		now:    now,
		log:    log,
	}, nil
}

// RegisterRoutes registers the ledger API.
func (s *HTTPLedger) RegisterRoutes(r chi.Router) {
	r.Get("/status", s.handleStatus)

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", s.handleOpenBatch)
		r.Get("/{id}", s.handleGetBatch)
		r.Post("/{id}/close", s.handleCloseBatch)
		r.Post("/{id}/noise", s.handleSetNoise)
		r.Post("/{id}/submit", s.handleSubmit)
		r.Post("/{id}/release", s.handleRelease)
	})

	r.Get("/requests/{id}", s.handleGetRequest)
	r.Get("/events", s.handleGetEvents)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/pause", s.handlePause)
		r.Post("/unpause", s.handleUnpause)
		r.Post("/providers", s.handleAddProvider)
		r.Post("/providers/remove", s.handleRemoveProvider)
		r.Post("/cooldown", s.handleSetCooldown)
		r.Post("/owner", s.handleTransferOwnership)
	})

	r.Post(OracleCallbackPath, s.handleOracleCallback)
}

// Deliver admits an oracle result in-process, through the same path as
// the HTTP callback.
func (s *HTTPLedger) Deliver(_ context.Context, result *oracle.Result) error {
	_, err := s.admitResult(result)
	return err
}

func (s *HTTPLedger) admitResult(result *oracle.Result) (*CallbackResponse, error) {
	start := time.Now()
	value, err := s.ledger.OnDecryptionResult(result.RequestID, result.Cleartext, result.Proof, s.now())
	s.observe("decryption_callback", start, err)
	if err != nil {
		s.log.Warn("decryption callback rejected", "requestID", result.RequestID, "err", err)
		return nil, err
	}

	dc, err := s.ledger.DecryptionContext(result.RequestID)
	if err != nil {
		return nil, err
	}
	s.log.Info("noisy result released", "requestID", result.RequestID, "batchID", dc.BatchID)
	return &CallbackResponse{RequestID: result.RequestID, BatchID: dc.BatchID, Result: value}, nil
}

type signedRequest interface {
	RequestOp() Operation
	RequestNonce() uint64
}

// decodeSigned decodes and authenticates a signed request for op, then
// consumes its nonce. An envelope signed for another operation is rejected
// without consuming the nonce. On failure it has already written the
// response.
func decodeSigned[T signedRequest](s *HTTPLedger, w http.ResponseWriter, r *http.Request, op Operation) (*T, crypto.PublicKey, bool) {
	signedReq, err := protocol.DecodeMessage[protocol.Signed[T]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return nil, nil, false
	}

	if got := (*req).RequestOp(); got != op {
		http.Error(w, fmt.Sprintf("%v: signed for %q, route expects %q", ErrOperationMismatch, got, op), http.StatusBadRequest)
		return nil, nil, false
	}

	if err := s.nonces.Use(signer, (*req).RequestNonce()); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return nil, nil, false
	}

	return req, signer, true
}

func batchIDParam(w http.ResponseWriter, r *http.Request) (protocol.BatchID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid batch id", http.StatusBadRequest)
		return 0, false
	}
	return protocol.BatchID(id), true
}

// pathBatchID checks that the signed body names the same batch as the URL.
func pathBatchID(w http.ResponseWriter, r *http.Request, body protocol.BatchID) (protocol.BatchID, bool) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return 0, false
	}
	if id != body {
		http.Error(w, fmt.Sprintf("batch mismatch: URL says %d, body says %d", id, body), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *HTTPLedger) handleOpenBatch(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[OpenBatchRequest](s, w, r, OpOpenBatch)
	if !ok {
		return
	}

	start := time.Now()
	id, err := s.ledger.OpenBatch(caller, req.NoiseMagnitude, s.now())
	s.observe("open_batch", start, err)
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info("batch opened", "batchID", id, "noiseMagnitude", req.NoiseMagnitude)
	json.NewEncoder(w).Encode(&OpenBatchResponse{BatchID: id})
}

func (s *HTTPLedger) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[CloseBatchRequest](s, w, r, OpCloseBatch)
	if !ok {
		return
	}
	id, ok := pathBatchID(w, r, req.BatchID)
	if !ok {
		return
	}

	start := time.Now()
	err := s.ledger.CloseBatch(caller, id, s.now())
	s.observe("close_batch", start, err)
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info("batch closed", "batchID", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleSetNoise(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[SetNoiseRequest](s, w, r, OpSetNoise)
	if !ok {
		return
	}
	id, ok := pathBatchID(w, r, req.BatchID)
	if !ok {
		return
	}

	start := time.Now()
	err := s.ledger.SetNoiseMagnitude(caller, id, req.NoiseMagnitude, s.now())
	s.observe("set_noise_magnitude", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[SubmitRequest](s, w, r, OpSubmit)
	if !ok {
		return
	}
	id, ok := pathBatchID(w, r, req.BatchID)
	if !ok {
		return
	}

	start := time.Now()
	err := s.ledger.Submit(caller, id, req.Value, s.now())
	s.observe("submit", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleRelease(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[ReleaseRequest](s, w, r, OpRelease)
	if !ok {
		return
	}
	id, ok := pathBatchID(w, r, req.BatchID)
	if !ok {
		return
	}

	start := time.Now()
	requestID, err := s.ledger.RequestNoisyResult(r.Context(), caller, id, s.now())
	s.observe("request_noisy_result", start, err)
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info("noisy result requested", "batchID", id, "requestID", requestID)
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(&ReleaseResponse{RequestID: requestID})
}

func (s *HTTPLedger) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	result, err := protocol.DecodeMessage[oracle.Result](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.admitResult(result)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *HTTPLedger) handlePause(w http.ResponseWriter, r *http.Request) {
	_, caller, ok := decodeSigned[PauseRequest](s, w, r, OpPause)
	if !ok {
		return
	}

	start := time.Now()
	err := s.ledger.Pause(caller, s.now())
	s.observe("pause", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Warn("ledger paused", "by", caller.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleUnpause(w http.ResponseWriter, r *http.Request) {
	_, caller, ok := decodeSigned[PauseRequest](s, w, r, OpUnpause)
	if !ok {
		return
	}

	start := time.Now()
	err := s.ledger.Unpause(caller, s.now())
	s.observe("unpause", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("ledger unpaused", "by", caller.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleAddProvider(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[ProviderRequest](s, w, r, OpAddProvider)
	if !ok {
		return
	}
	provider, err := crypto.NewPublicKeyFromString(req.Provider)
	if err != nil {
		http.Error(w, "invalid provider key", http.StatusBadRequest)
		return
	}

	start := time.Now()
	err = s.ledger.AddProvider(caller, provider, s.now())
	s.observe("add_provider", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleRemoveProvider(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[ProviderRequest](s, w, r, OpRemoveProvider)
	if !ok {
		return
	}
	provider, err := crypto.NewPublicKeyFromString(req.Provider)
	if err != nil {
		http.Error(w, "invalid provider key", http.StatusBadRequest)
		return
	}

	start := time.Now()
	err = s.ledger.RemoveProvider(caller, provider, s.now())
	s.observe("remove_provider", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleSetCooldown(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[CooldownRequest](s, w, r, OpSetCooldown)
	if !ok {
		return
	}
	kind, err := protocol.ParseActionKind(req.Action)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	err = s.ledger.SetCooldown(caller, kind, req.Cooldown, s.now())
	s.observe("set_cooldown", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("cooldown changed", "action", kind.String(), "cooldown", req.Cooldown)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := decodeSigned[OwnerRequest](s, w, r, OpTransferOwnership)
	if !ok {
		return
	}
	newOwner, err := crypto.NewPublicKeyFromString(req.NewOwner)
	if err != nil {
		http.Error(w, "invalid owner key", http.StatusBadRequest)
		return
	}

	start := time.Now()
	err = s.ledger.TransferOwnership(caller, newOwner, s.now())
	s.observe("transfer_ownership", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Warn("ownership transferred", "from", caller.String(), "to", newOwner.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPLedger) handleStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.ledger.Status())
}

func (s *HTTPLedger) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	view, err := s.ledger.Batch(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(&view)
}

func (s *HTTPLedger) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}
	dc, err := s.ledger.DecryptionContext(protocol.RequestID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(&dc)
}

func (s *HTTPLedger) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := s.events.Events(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*StoredEvent{}
	}
	json.NewEncoder(w).Encode(&EventsResponse{Events: events})
}

func parseEventFilter(r *http.Request) (EventFilter, error) {
	q := r.URL.Query()
	var filter EventFilter

	if v := q.Get("batch"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid batch: %w", err)
		}
		filter.BatchID = protocol.BatchID(id)
	}
	if v := q.Get("request"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid request: %w", err)
		}
		filter.RequestID = protocol.RequestID(id)
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	filter.Kind = protocol.EventKind(q.Get("kind"))
	return filter, nil
}

func (s *HTTPLedger) observe(operation string, start time.Time, err error) {
	metrics.RecordOperation(operation, outcome(err), time.Since(start))
}

// errorClasses maps ledger errors to HTTP status and metrics outcome.
// Order matters: the first match wins.
var errorClasses = []struct {
	err     error
	status  int
	outcome string
}{
	{protocol.ErrInvalidAuthority, http.StatusForbidden, "invalid_authority"},
	{protocol.ErrPausedState, http.StatusLocked, "paused"},
	{protocol.ErrCooldownActive, http.StatusTooManyRequests, "cooldown"},
	{protocol.ErrInvalidBatch, http.StatusConflict, "invalid_batch"},
	{protocol.ErrBatchNotActive, http.StatusConflict, "batch_state"},
	{protocol.ErrUnknownRequest, http.StatusNotFound, "unknown_request"},
	{protocol.ErrReplayDetected, http.StatusConflict, "replay"},
	{protocol.ErrNotInitialized, http.StatusUnprocessableEntity, "not_initialized"},
	{protocol.ErrStateMismatch, http.StatusUnprocessableEntity, "state_mismatch"},
	{protocol.ErrInvalidProof, http.StatusUnprocessableEntity, "invalid_proof"},
	{protocol.ErrMalformedCleartext, http.StatusUnprocessableEntity, "malformed_cleartext"},
	{protocol.ErrInvalidActionKind, http.StatusBadRequest, "bad_request"},
	{fhe.ErrValueOutOfRange, http.StatusBadRequest, "bad_request"},
	{oracle.ErrQueueFull, http.StatusServiceUnavailable, "oracle_busy"},
}

func classify(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.status, c.outcome
		}
	}
	return http.StatusInternalServerError, "error"
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	_, o := classify(err)
	return o
}

// StatusCode returns the HTTP status reported for a ledger error.
func StatusCode(err error) int {
	status, _ := classify(err)
	return status
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusCode(err))
}
