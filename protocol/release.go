package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
)

// noisySum adds the noise magnitude of a closed batch to its accumulated sum.
// Both operands must be initialized; an empty accumulator is never treated as
// an encryption of zero.
func (l *Ledger) noisySum(b *Batch) (fhe.Handle, error) {
	acc, ok := l.store.accumulators[b.ID].Handle()
	if !ok || !l.fhe.IsInitialized(acc) {
		return fhe.Handle{}, &NotInitializedError{BatchID: b.ID, Operand: OperandAccumulator}
	}
	noise, ok := b.NoiseMagnitude.Handle()
	if !ok || !l.fhe.IsInitialized(noise) {
		return fhe.Handle{}, &NotInitializedError{BatchID: b.ID, Operand: OperandNoiseMagnitude}
	}

	sum, err := l.fhe.Add(acc, noise)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("adding noise: %w", err)
	}
	return sum, nil
}

// RequestNoisyResult asks the oracle to decrypt the noisy aggregate of a
// closed batch and returns the request id the result will arrive under.
//
// Anyone may call it, subject to the decryption cooldown. Repeated requests
// for the same batch each get their own context.
func (l *Ledger) RequestNoisyResult(ctx context.Context, caller crypto.PublicKey, id BatchID, now time.Time) (RequestID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(caller) == 0 {
		return 0, ErrInvalidAuthority
	}
	if err := l.store.gate.RequireNotPaused(); err != nil {
		return 0, err
	}
	if err := l.store.throttle.Check(caller, ActionDecryptionRequest, now); err != nil {
		return 0, err
	}
	b, err := l.store.batch(id)
	if err != nil {
		return 0, err
	}
	if b.Active {
		return 0, fmt.Errorf("%w: batch %d is still open", ErrBatchNotActive, id)
	}
	if b.RecordCount == 0 {
		return 0, fmt.Errorf("%w: batch %d has no records", ErrInvalidBatch, id)
	}

	noisy, err := l.noisySum(b)
	if err != nil {
		return 0, err
	}

	handles := []fhe.Handle{noisy}
	stateHash := commitHandles(handles, l.config.DeploymentID)

	requestID, err := l.oracle.RequestDecryption(ctx, handles)
	if err != nil {
		return 0, fmt.Errorf("requesting decryption: %w", err)
	}
	if _, exists := l.store.contexts[requestID]; exists {
		return 0, fmt.Errorf("oracle reissued request id %d", requestID)
	}

	l.store.noisyResults[id] = fhe.InitializedSlot(noisy)
	l.store.contexts[requestID] = &DecryptionContext{
		RequestID: requestID,
		BatchID:   id,
		StateHash: stateHash,
	}
	l.store.throttle.Record(caller, ActionDecryptionRequest, now)

	l.emit(Event{
		Kind:      EventDecryptionRequested,
		Time:      now,
		Actor:     caller.String(),
		BatchID:   id,
		RequestID: requestID,
	})
	return requestID, nil
}

// OnDecryptionResult admits the oracle's answer to requestID and returns the
// revealed noisy aggregate.
//
// The gates run in a fixed order: replay, state commitment, proof. Any
// rejection leaves the ledger exactly as it was. The callback is accepted
// while paused so that outstanding requests can still complete.
func (l *Ledger) OnDecryptionResult(requestID RequestID, cleartext, proof []byte, now time.Time) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dc, ok := l.store.contexts[requestID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownRequest, requestID)
	}
	if dc.Processed {
		return 0, fmt.Errorf("%w: request %d", ErrReplayDetected, requestID)
	}

	handles := l.store.handleList(dc.BatchID)
	if commitHandles(handles, l.config.DeploymentID) != dc.StateHash {
		return 0, fmt.Errorf("%w: request %d for batch %d", ErrStateMismatch, requestID, dc.BatchID)
	}

	if !l.oracle.VerifyProof(requestID, cleartext, proof) {
		return 0, fmt.Errorf("%w: request %d", ErrInvalidProof, requestID)
	}

	values, err := DecodeCleartext(cleartext, len(handles))
	if err != nil {
		return 0, err
	}
	result := values[0]

	dc.Processed = true
	if _, released := l.store.releases[dc.BatchID]; !released {
		l.store.releases[dc.BatchID] = &Release{
			RequestID: requestID,
			Result:    result,
			Finalized: true,
		}
	}

	l.emit(Event{
		Kind:      EventDecryptionCompleted,
		Time:      now,
		BatchID:   dc.BatchID,
		RequestID: requestID,
		Result:    uint64Ptr(result),
	})
	return result, nil
}
