package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/testutil"
	"github.com/stretchr/testify/require"
)

func TestNoisyResultEndToEnd(t *testing.T) {
	e := newLedgerEnv(t)
	requester := testutil.NewActor(t)

	id, err := e.ledger.OpenBatch(e.owner.PublicKey, 5, e.clock.Now())
	require.NoError(t, err)
	require.NoError(t, e.ledger.Submit(e.owner.PublicKey, id, 10, e.clock.Advance(time.Second)))
	require.NoError(t, e.ledger.Submit(e.owner.PublicKey, id, 7, e.clock.Advance(time.Second)))
	require.NoError(t, e.ledger.CloseBatch(e.owner.PublicKey, id, e.clock.Now()))

	reqID, err := e.ledger.RequestNoisyResult(context.Background(), requester.PublicKey, id, e.clock.Now())
	require.NoError(t, err)

	dc, err := e.ledger.DecryptionContext(reqID)
	require.NoError(t, err)
	require.Equal(t, id, dc.BatchID)
	require.False(t, dc.Processed)

	requested := e.events.ofKind(EventDecryptionRequested)
	require.Len(t, requested, 1)
	require.Equal(t, reqID, requested[0].RequestID)
	require.Equal(t, requester.PublicKey.String(), requested[0].Actor)

	cleartext, proof := e.oracle.fulfil(t, reqID)
	result, err := e.ledger.OnDecryptionResult(reqID, cleartext, proof, e.clock.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(22), result)

	completed := e.events.ofKind(EventDecryptionCompleted)
	require.Len(t, completed, 1)
	require.Equal(t, reqID, completed[0].RequestID)
	require.Equal(t, id, completed[0].BatchID)
	require.Equal(t, uint64(22), *completed[0].Result)

	dc, err = e.ledger.DecryptionContext(reqID)
	require.NoError(t, err)
	require.True(t, dc.Processed)

	release, ok := e.ledger.Release(id)
	require.True(t, ok)
	require.Equal(t, Release{RequestID: reqID, Result: 22, Finalized: true}, release)

	_, err = e.ledger.OnDecryptionResult(reqID, cleartext, proof, e.clock.Now())
	require.ErrorIs(t, err, ErrReplayDetected)
	require.Len(t, e.events.ofKind(EventDecryptionCompleted), 1)
}

func TestRequestNoisyResultPreconditions(t *testing.T) {
	e := newLedgerEnv(t)
	ctx := context.Background()

	_, err := e.ledger.RequestNoisyResult(ctx, e.owner.PublicKey, 0, e.clock.Now())
	require.ErrorIs(t, err, ErrInvalidBatch)
	_, err = e.ledger.RequestNoisyResult(ctx, e.owner.PublicKey, 1, e.clock.Now())
	require.ErrorIs(t, err, ErrInvalidBatch)

	active, err := e.ledger.OpenBatch(e.owner.PublicKey, 1, e.clock.Now())
	require.NoError(t, err)
	require.NoError(t, e.ledger.Submit(e.owner.PublicKey, active, 3, e.clock.Now()))
	_, err = e.ledger.RequestNoisyResult(ctx, e.owner.PublicKey, active, e.clock.Now())
	require.ErrorIs(t, err, ErrBatchNotActive)

	empty := e.closedBatch(t, 1)
	_, err = e.ledger.RequestNoisyResult(ctx, e.owner.PublicKey, empty, e.clock.Now())
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = e.ledger.RequestNoisyResult(ctx, nil, empty, e.clock.Now())
	require.ErrorIs(t, err, ErrInvalidAuthority)

	view, err := e.ledger.Batch(empty)
	require.NoError(t, err)
	require.True(t, view.NoisyResult.IsEmpty())
	require.Empty(t, e.events.ofKind(EventDecryptionRequested))
}

func TestRequestNoisyResultNotInitialized(t *testing.T) {
	e := newLedgerEnv(t)
	id := e.closedBatch(t, 4, 1, 2)

	e.ledger.store.accumulators[id] = fhe.EmptySlot()
	_, err := e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.ErrorIs(t, err, ErrNotInitialized)
	var notInit *NotInitializedError
	require.ErrorAs(t, err, &notInit)
	require.Equal(t, OperandAccumulator, notInit.Operand)

	id2 := e.closedBatch(t, 4, 1, 2)
	e.ledger.store.batches[id2-1].NoiseMagnitude = fhe.EmptySlot()
	_, err = e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id2, e.clock.Now())
	require.ErrorAs(t, err, &notInit)
	require.Equal(t, OperandNoiseMagnitude, notInit.Operand)
	require.Contains(t, err.Error(), "noise magnitude")

	// A handle the capability never produced is not initialized either.
	e.ledger.store.batches[id2-1].NoiseMagnitude = fhe.InitializedSlot(fhe.Handle{1})
	_, err = e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id2, e.clock.Now())
	require.ErrorAs(t, err, &notInit)
	require.Equal(t, OperandNoiseMagnitude, notInit.Operand)
}

func TestRequestNoisyResultOracleFailure(t *testing.T) {
	e := newLedgerEnvWithConfig(t, &LedgerConfig{
		DeploymentID:       "test-deployment",
		DecryptionCooldown: time.Minute,
	})
	id := e.closedBatch(t, 1, 2)

	e.oracle.fail = errOracleDown
	_, err := e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.ErrorIs(t, err, errOracleDown)

	view, err := e.ledger.Batch(id)
	require.NoError(t, err)
	require.True(t, view.NoisyResult.IsEmpty())

	// A failed request does not start the cooldown.
	e.oracle.fail = nil
	_, err = e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)
}

func TestRequestNoisyResultReusedRequestID(t *testing.T) {
	e := newLedgerEnv(t)
	e.oracle.reuseID = true
	id := e.closedBatch(t, 1, 2)

	_, err := e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)
	_, err = e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.Error(t, err)
}

func TestRequestNoisyResultCooldown(t *testing.T) {
	e := newLedgerEnvWithConfig(t, &LedgerConfig{
		DeploymentID:       "test-deployment",
		DecryptionCooldown: time.Minute,
	})
	id := e.closedBatch(t, 1, 2)
	ctx := context.Background()

	_, err := e.ledger.RequestNoisyResult(ctx, e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)
	_, err = e.ledger.RequestNoisyResult(ctx, e.owner.PublicKey, id, e.clock.Advance(30*time.Second))
	require.ErrorIs(t, err, ErrCooldownActive)

	// Submission and decryption windows are independent.
	other, err := e.ledger.OpenBatch(e.owner.PublicKey, 0, e.clock.Now())
	require.NoError(t, err)
	require.NoError(t, e.ledger.Submit(e.owner.PublicKey, other, 1, e.clock.Now()))

	_, err = e.ledger.RequestNoisyResult(ctx, e.owner.PublicKey, id, e.clock.Advance(30*time.Second))
	require.NoError(t, err)
}

func TestCallbackUnknownAndReplayLeaveStateUnchanged(t *testing.T) {
	e := newLedgerEnv(t)
	id := e.closedBatch(t, 5, 10, 7)
	reqID, err := e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)
	cleartext, proof := e.oracle.fulfil(t, reqID)

	before := e.snapshot()
	_, err = e.ledger.OnDecryptionResult(reqID+100, cleartext, proof, e.clock.Now())
	require.ErrorIs(t, err, ErrUnknownRequest)
	require.Equal(t, before, e.snapshot())

	_, err = e.ledger.OnDecryptionResult(reqID, cleartext, proof, e.clock.Now())
	require.NoError(t, err)

	after := e.snapshot()
	_, err = e.ledger.OnDecryptionResult(reqID, EncodeCleartext([]uint64{99}), fakeProof(reqID, EncodeCleartext([]uint64{99})), e.clock.Now())
	require.ErrorIs(t, err, ErrReplayDetected)
	require.Equal(t, after, e.snapshot())

	release, ok := e.ledger.Release(id)
	require.True(t, ok)
	require.Equal(t, uint64(22), release.Result)
}

func TestCallbackStateMismatch(t *testing.T) {
	e := newLedgerEnv(t)
	id := e.closedBatch(t, 5, 10, 7)
	reqID, err := e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)
	cleartext, proof := e.oracle.fulfil(t, reqID)

	original := e.ledger.store.noisyResults[id]
	forged, err := e.fhe.Capability.Encrypt(1000)
	require.NoError(t, err)
	e.ledger.store.noisyResults[id] = fhe.InitializedSlot(forged)

	before := e.snapshot()
	_, err = e.ledger.OnDecryptionResult(reqID, cleartext, proof, e.clock.Now())
	require.ErrorIs(t, err, ErrStateMismatch)
	require.Equal(t, before, e.snapshot())

	e.ledger.store.noisyResults[id] = fhe.EmptySlot()
	_, err = e.ledger.OnDecryptionResult(reqID, cleartext, proof, e.clock.Now())
	require.ErrorIs(t, err, ErrStateMismatch)

	// Restoring the committed state lets the genuine answer through.
	e.ledger.store.noisyResults[id] = original
	result, err := e.ledger.OnDecryptionResult(reqID, cleartext, proof, e.clock.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(22), result)
}

func TestCallbackCommitmentBindsDeployment(t *testing.T) {
	e := newLedgerEnv(t)
	id := e.closedBatch(t, 5, 10)
	reqID, err := e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)
	cleartext, proof := e.oracle.fulfil(t, reqID)

	e.ledger.config = &LedgerConfig{DeploymentID: "other-deployment"}
	_, err = e.ledger.OnDecryptionResult(reqID, cleartext, proof, e.clock.Now())
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestCallbackInvalidProof(t *testing.T) {
	e := newLedgerEnv(t)
	id := e.closedBatch(t, 5, 10, 7)
	reqID, err := e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)
	cleartext, proof := e.oracle.fulfil(t, reqID)

	before := e.snapshot()
	forgedCleartext := EncodeCleartext([]uint64{1})
	_, err = e.ledger.OnDecryptionResult(reqID, forgedCleartext, proof, e.clock.Now())
	require.ErrorIs(t, err, ErrInvalidProof)
	_, err = e.ledger.OnDecryptionResult(reqID, cleartext, []byte("garbage"), e.clock.Now())
	require.ErrorIs(t, err, ErrInvalidProof)
	require.Equal(t, before, e.snapshot())

	// A later, genuine delivery is still accepted.
	result, err := e.ledger.OnDecryptionResult(reqID, cleartext, proof, e.clock.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(22), result)
}

func TestCallbackMalformedCleartext(t *testing.T) {
	e := newLedgerEnv(t)
	id := e.closedBatch(t, 5, 10)
	reqID, err := e.ledger.RequestNoisyResult(context.Background(), e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)

	short := []byte{1, 2, 3}
	before := e.snapshot()
	_, err = e.ledger.OnDecryptionResult(reqID, short, fakeProof(reqID, short), e.clock.Now())
	require.ErrorIs(t, err, ErrMalformedCleartext)
	require.Equal(t, before, e.snapshot())
}

func TestMultipleRequestsPerBatch(t *testing.T) {
	e := newLedgerEnv(t)
	id := e.closedBatch(t, 5, 10, 7)
	ctx := context.Background()

	first, err := e.ledger.RequestNoisyResult(ctx, e.owner.PublicKey, id, e.clock.Now())
	require.NoError(t, err)
	second, err := e.ledger.RequestNoisyResult(ctx, testutil.NewActor(t).PublicKey, id, e.clock.Now())
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	c2, p2 := e.oracle.fulfil(t, second)
	result, err := e.ledger.OnDecryptionResult(second, c2, p2, e.clock.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(22), result)

	c1, p1 := e.oracle.fulfil(t, first)
	result, err = e.ledger.OnDecryptionResult(first, c1, p1, e.clock.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(22), result)

	release, ok := e.ledger.Release(id)
	require.True(t, ok)
	require.Equal(t, second, release.RequestID)

	_, err = e.ledger.OnDecryptionResult(first, c1, p1, e.clock.Now())
	require.ErrorIs(t, err, ErrReplayDetected)
	_, err = e.ledger.OnDecryptionResult(second, c2, p2, e.clock.Now())
	require.ErrorIs(t, err, ErrReplayDetected)
}

func TestDecryptionContextUnknown(t *testing.T) {
	e := newLedgerEnv(t)
	_, err := e.ledger.DecryptionContext(1)
	require.ErrorIs(t, err, ErrUnknownRequest)
	_, ok := e.ledger.Release(1)
	require.False(t, ok)
}
