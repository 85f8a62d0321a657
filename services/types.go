package services

import (
	"time"

	"github.com/flashbots/noisyagg/protocol"
)

// Operation names the ledger operation a signed request authorizes. It is
// part of the signed object, so an envelope signed for one route is rejected
// by every other route, including routes that share its request type.
type Operation string

const (
	OpOpenBatch         Operation = "open_batch"
	OpCloseBatch        Operation = "close_batch"
	OpSetNoise          Operation = "set_noise_magnitude"
	OpSubmit            Operation = "submit"
	OpRelease           Operation = "request_noisy_result"
	OpPause             Operation = "pause"
	OpUnpause           Operation = "unpause"
	OpAddProvider       Operation = "add_provider"
	OpRemoveProvider    Operation = "remove_provider"
	OpSetCooldown       Operation = "set_cooldown"
	OpTransferOwnership Operation = "transfer_ownership"
)

// Every signed request carries an Op and a Nonce that must strictly increase
// per signer.

// OpenBatchRequest opens a batch with an initial noise magnitude.
type OpenBatchRequest struct {
	NoiseMagnitude uint64    `json:"noise_magnitude"`
	Op             Operation `json:"op"`
	Nonce          uint64    `json:"nonce"`
}

// OpenBatchResponse returns the id of the new batch.
type OpenBatchResponse struct {
	BatchID protocol.BatchID `json:"batch_id"`
}

// CloseBatchRequest closes a batch.
type CloseBatchRequest struct {
	BatchID protocol.BatchID `json:"batch_id"`
	Op      Operation        `json:"op"`
	Nonce   uint64           `json:"nonce"`
}

// SetNoiseRequest replaces the noise magnitude of an active batch.
type SetNoiseRequest struct {
	BatchID        protocol.BatchID `json:"batch_id"`
	NoiseMagnitude uint64           `json:"noise_magnitude"`
	Op             Operation        `json:"op"`
	Nonce          uint64           `json:"nonce"`
}

// SubmitRequest contributes a value to a batch. The value travels to the
// ledger in the clear and is encrypted on arrival.
type SubmitRequest struct {
	BatchID protocol.BatchID `json:"batch_id"`
	Value   uint64           `json:"value"`
	Op      Operation        `json:"op"`
	Nonce   uint64           `json:"nonce"`
}

// ReleaseRequest asks for the noisy result of a closed batch.
type ReleaseRequest struct {
	BatchID protocol.BatchID `json:"batch_id"`
	Op      Operation        `json:"op"`
	Nonce   uint64           `json:"nonce"`
}

// ReleaseResponse returns the request id the result will be released under.
type ReleaseResponse struct {
	RequestID protocol.RequestID `json:"request_id"`
}

// PauseRequest pauses or unpauses the ledger, depending on Op.
type PauseRequest struct {
	Op    Operation `json:"op"`
	Nonce uint64    `json:"nonce"`
}

// ProviderRequest adds or removes a provider, depending on Op.
type ProviderRequest struct {
	Provider string    `json:"provider"`
	Op       Operation `json:"op"`
	Nonce    uint64    `json:"nonce"`
}

// CooldownRequest changes a cooldown window.
type CooldownRequest struct {
	Action   string        `json:"action"`
	Cooldown time.Duration `json:"cooldown,string"`
	Op       Operation     `json:"op"`
	Nonce    uint64        `json:"nonce"`
}

// OwnerRequest transfers ownership.
type OwnerRequest struct {
	NewOwner string    `json:"new_owner"`
	Op       Operation `json:"op"`
	Nonce    uint64    `json:"nonce"`
}

// CallbackResponse acknowledges an accepted oracle callback.
type CallbackResponse struct {
	RequestID protocol.RequestID `json:"request_id"`
	BatchID   protocol.BatchID   `json:"batch_id"`
	Result    uint64             `json:"result"`
}

// EventsResponse lists stored audit events.
type EventsResponse struct {
	Events []*StoredEvent `json:"events"`
}

func (r OpenBatchRequest) RequestNonce() uint64  { return r.Nonce }
func (r CloseBatchRequest) RequestNonce() uint64 { return r.Nonce }
func (r SetNoiseRequest) RequestNonce() uint64   { return r.Nonce }
func (r SubmitRequest) RequestNonce() uint64     { return r.Nonce }
func (r ReleaseRequest) RequestNonce() uint64    { return r.Nonce }
func (r PauseRequest) RequestNonce() uint64      { return r.Nonce }
func (r ProviderRequest) RequestNonce() uint64   { return r.Nonce }
func (r CooldownRequest) RequestNonce() uint64   { return r.Nonce }
func (r OwnerRequest) RequestNonce() uint64      { return r.Nonce }

func (r OpenBatchRequest) RequestOp() Operation  { return r.Op }
func (r CloseBatchRequest) RequestOp() Operation { return r.Op }
func (r SetNoiseRequest) RequestOp() Operation   { return r.Op }
func (r SubmitRequest) RequestOp() Operation     { return r.Op }
func (r ReleaseRequest) RequestOp() Operation    { return r.Op }
func (r PauseRequest) RequestOp() Operation      { return r.Op }
func (r ProviderRequest) RequestOp() Operation   { return r.Op }
func (r CooldownRequest) RequestOp() Operation   { return r.Op }
func (r OwnerRequest) RequestOp() Operation      { return r.Op }
