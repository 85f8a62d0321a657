package protocol

import (
	"fmt"
	"time"

	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
)

// OpenBatch creates a new active batch whose noise magnitude is the
// encryption of magnitude.
func (l *Ledger) OpenBatch(caller crypto.PublicKey, magnitude uint64, now time.Time) (BatchID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerActive(caller); err != nil {
		return 0, err
	}

	encrypted, err := l.fhe.Encrypt(magnitude)
	if err != nil {
		return 0, fmt.Errorf("encrypting noise magnitude: %w", err)
	}

	b := l.store.appendBatch(encrypted)
	l.emit(Event{
		Kind:      EventBatchOpened,
		Time:      now,
		Actor:     caller.String(),
		BatchID:   b.ID,
		Magnitude: uint64Ptr(magnitude),
	})
	return b.ID, nil
}

// CloseBatch ends the submission window of batch id. Closing is one-way.
func (l *Ledger) CloseBatch(caller crypto.PublicKey, id BatchID, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerActive(caller); err != nil {
		return err
	}
	b, err := l.store.batch(id)
	if err != nil {
		return err
	}
	if !b.Active {
		return fmt.Errorf("%w: batch %d is already closed", ErrBatchNotActive, id)
	}

	b.Active = false
	l.emit(Event{
		Kind:        EventBatchClosed,
		Time:        now,
		Actor:       caller.String(),
		BatchID:     id,
		RecordCount: b.RecordCount,
	})
	return nil
}

// SetNoiseMagnitude replaces the noise magnitude of a batch that is still
// accepting submissions.
func (l *Ledger) SetNoiseMagnitude(caller crypto.PublicKey, id BatchID, magnitude uint64, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerActive(caller); err != nil {
		return err
	}
	b, err := l.store.batch(id)
	if err != nil {
		return err
	}
	if !b.Active {
		return fmt.Errorf("%w: batch %d is closed", ErrBatchNotActive, id)
	}

	encrypted, err := l.fhe.Encrypt(magnitude)
	if err != nil {
		return fmt.Errorf("encrypting noise magnitude: %w", err)
	}

	b.NoiseMagnitude = fhe.InitializedSlot(encrypted)
	l.emit(Event{
		Kind:      EventNoiseMagnitudeSet,
		Time:      now,
		Actor:     caller.String(),
		BatchID:   id,
		Magnitude: uint64Ptr(magnitude),
	})
	return nil
}

// Submit encrypts value and folds it into the accumulator of batch id.
//
// The first submission initializes the accumulator with the encrypted value;
// every later one replaces it with the homomorphic sum. Nothing is mutated
// unless the whole operation succeeds.
func (l *Ledger) Submit(caller crypto.PublicKey, id BatchID, value uint64, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.gate.RequireProvider(caller); err != nil {
		return err
	}
	if err := l.store.gate.RequireNotPaused(); err != nil {
		return err
	}
	if err := l.store.throttle.Check(caller, ActionSubmission, now); err != nil {
		return err
	}
	b, err := l.store.batch(id)
	if err != nil {
		return err
	}
	if !b.Active {
		return fmt.Errorf("%w: batch %d is closed", ErrBatchNotActive, id)
	}

	encrypted, err := l.fhe.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting submission: %w", err)
	}

	next := encrypted
	if acc, ok := l.store.accumulators[id].Handle(); ok {
		next, err = l.fhe.Add(acc, encrypted)
		if err != nil {
			return fmt.Errorf("accumulating submission: %w", err)
		}
	}

	l.store.accumulators[id] = fhe.InitializedSlot(next)
	b.RecordCount++
	l.store.throttle.Record(caller, ActionSubmission, now)

	l.emit(Event{
		Kind:        EventDataSubmitted,
		Time:        now,
		Actor:       caller.String(),
		BatchID:     id,
		RecordCount: b.RecordCount,
	})
	return nil
}
