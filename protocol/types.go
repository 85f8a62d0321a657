package protocol

import (
	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
)

// BatchID identifies a batch. IDs start at 1; 0 means "no batch".
type BatchID uint64

// RequestID identifies a decryption request. Assigned by the oracle.
type RequestID uint64

// Batch is the lifecycle record of one aggregation batch.
type Batch struct {
	ID             BatchID  `json:"id"`
	Active         bool     `json:"active"`
	RecordCount    uint64   `json:"record_count"`
	NoiseMagnitude fhe.Slot `json:"noise_magnitude"`
}

// DecryptionContext binds a request id to the state it was issued against.
type DecryptionContext struct {
	RequestID RequestID        `json:"request_id"`
	BatchID   BatchID          `json:"batch_id"`
	StateHash crypto.StateHash `json:"state_hash"`
	Processed bool             `json:"processed"`
}

// Release is the revealed noisy aggregate of a batch.
type Release struct {
	RequestID RequestID `json:"request_id"`
	Result    uint64    `json:"result"`
	Finalized bool      `json:"finalized"`
}

// BatchView is a read-only snapshot of everything the ledger holds for a batch.
type BatchView struct {
	Batch
	Accumulator fhe.Slot `json:"accumulator"`
	NoisyResult fhe.Slot `json:"noisy_result"`
	Release     *Release `json:"release,omitempty"`
}
