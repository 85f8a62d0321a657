package protocol

import (
	"errors"
	"fmt"
)

// Authorization failures.
var (
	ErrInvalidAuthority = errors.New("caller lacks the required role")
	ErrPausedState      = errors.New("ledger is paused")
)

// Lifecycle failures.
var (
	ErrInvalidBatch   = errors.New("invalid batch")
	ErrBatchNotActive = errors.New("batch is not in the required state")
)

// ErrCooldownActive is transient: the caller may retry once the window elapses.
var ErrCooldownActive = errors.New("cooldown active")

// Data integrity failures.
var (
	ErrNotInitialized = errors.New("ciphertext not initialized")
	ErrStateMismatch  = errors.New("state commitment mismatch")
)

// Callback rejections.
var (
	ErrUnknownRequest     = errors.New("unknown decryption request")
	ErrReplayDetected     = errors.New("decryption request already processed")
	ErrInvalidProof       = errors.New("invalid decryption proof")
	ErrMalformedCleartext = errors.New("malformed cleartext")
)

// Operand names the ciphertext that noise calibration found missing.
type Operand string

const (
	OperandAccumulator    Operand = "accumulator"
	OperandNoiseMagnitude Operand = "noise magnitude"
)

// NotInitializedError reports which operand of the noisy sum was missing.
type NotInitializedError struct {
	BatchID BatchID
	Operand Operand
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s: %s of batch %d", ErrNotInitialized, e.Operand, e.BatchID)
}

func (e *NotInitializedError) Unwrap() error {
	return ErrNotInitialized
}
