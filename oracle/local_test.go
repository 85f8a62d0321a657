package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/protocol"
	"github.com/flashbots/noisyagg/testutil"
	"github.com/stretchr/testify/require"
)

func newTestOracle(t *testing.T, env *testutil.FHEEnv, config Config) *LocalOracle {
	t.Helper()
	o, err := NewLocalOracle(config, env.Decryptor, testutil.NewActor(t).PrivateKey, nil)
	require.NoError(t, err)
	return o
}

func TestNewLocalOracleValidation(t *testing.T) {
	env := testutil.NewFHEEnv(t)
	_, err := NewLocalOracle(DefaultConfig(), nil, testutil.NewActor(t).PrivateKey, nil)
	require.Error(t, err)
	_, err = NewLocalOracle(DefaultConfig(), env.Decryptor, nil, nil)
	require.Error(t, err)
}

func TestLocalOracleReleasesThroughLedger(t *testing.T) {
	env := testutil.NewFHEEnv(t)
	o := newTestOracle(t, env, DefaultConfig())
	owner := testutil.NewActor(t)
	clock := testutil.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	ledger, err := protocol.NewLedger(&protocol.LedgerConfig{DeploymentID: "oracle-test"}, owner.PublicKey, env.Capability, o, nil)
	require.NoError(t, err)

	results := make(chan uint64, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx, CallbackFunc(func(ctx context.Context, r *Result) error {
		v, err := ledger.OnDecryptionResult(r.RequestID, r.Cleartext, r.Proof, clock.Now())
		if err != nil {
			return err
		}
		results <- v
		return nil
	}))

	id, err := ledger.OpenBatch(owner.PublicKey, 5, clock.Now())
	require.NoError(t, err)
	require.NoError(t, ledger.Submit(owner.PublicKey, id, 10, clock.Now()))
	require.NoError(t, ledger.Submit(owner.PublicKey, id, 7, clock.Now()))
	require.NoError(t, ledger.CloseBatch(owner.PublicKey, id, clock.Now()))

	reqID, err := ledger.RequestNoisyResult(ctx, owner.PublicKey, id, clock.Now())
	require.NoError(t, err)
	require.Equal(t, protocol.RequestID(1), reqID)

	select {
	case v := <-results:
		require.Equal(t, uint64(22), v)
	case <-time.After(10 * time.Second):
		t.Fatal("decryption result was not delivered")
	}

	release, ok := ledger.Release(id)
	require.True(t, ok)
	require.True(t, release.Finalized)

	// Redelivering the same signed result is a replay.
	r, err := o.Fulfil(reqID)
	require.NoError(t, err)
	_, err = ledger.OnDecryptionResult(r.RequestID, r.Cleartext, r.Proof, clock.Now())
	require.ErrorIs(t, err, protocol.ErrReplayDetected)
}

func TestLocalOracleVerifyProof(t *testing.T) {
	env := testutil.NewFHEEnv(t)
	o := newTestOracle(t, env, DefaultConfig())
	other := newTestOracle(t, env, DefaultConfig())

	h, err := env.Capability.Encrypt(33)
	require.NoError(t, err)

	reqID, err := o.RequestDecryption(context.Background(), []fhe.Handle{h})
	require.NoError(t, err)
	_, err = other.RequestDecryption(context.Background(), []fhe.Handle{h})
	require.NoError(t, err)

	r, err := o.Fulfil(reqID)
	require.NoError(t, err)
	values, err := protocol.DecodeCleartext(r.Cleartext, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(33), values[0])

	require.True(t, o.VerifyProof(reqID, r.Cleartext, r.Proof))
	require.False(t, o.VerifyProof(reqID+1, r.Cleartext, r.Proof))
	require.False(t, o.VerifyProof(reqID, protocol.EncodeCleartext([]uint64{34}), r.Proof))
	require.False(t, o.VerifyProof(reqID, r.Cleartext, []byte("short")))
	require.False(t, other.VerifyProof(reqID, r.Cleartext, r.Proof))

	_, err = o.Fulfil(99)
	require.Error(t, err)
}

func TestLocalOracleQueueFull(t *testing.T) {
	env := testutil.NewFHEEnv(t)
	o := newTestOracle(t, env, Config{Workers: 1, QueueSize: 1})
	h, err := env.Capability.Encrypt(1)
	require.NoError(t, err)

	_, err = o.RequestDecryption(context.Background(), []fhe.Handle{h})
	require.NoError(t, err)
	_, err = o.RequestDecryption(context.Background(), []fhe.Handle{h})
	require.ErrorIs(t, err, ErrQueueFull)

	_, err = o.RequestDecryption(context.Background(), nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.RequestDecryption(ctx, []fhe.Handle{h})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocalOracleDecryptFailureIsNotDelivered(t *testing.T) {
	env := testutil.NewFHEEnv(t)
	o := newTestOracle(t, env, Config{Workers: 1, QueueSize: 4})

	delivered := make(chan *Result, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx, CallbackFunc(func(_ context.Context, r *Result) error {
		delivered <- r
		return nil
	}))

	_, err := o.RequestDecryption(ctx, []fhe.Handle{{0xff}})
	require.NoError(t, err)

	h, err := env.Capability.Encrypt(8)
	require.NoError(t, err)
	reqID, err := o.RequestDecryption(ctx, []fhe.Handle{h})
	require.NoError(t, err)

	select {
	case r := <-delivered:
		require.Equal(t, reqID, r.RequestID)
	case <-time.After(10 * time.Second):
		t.Fatal("result was not delivered")
	}
}

func TestHTTPCallback(t *testing.T) {
	received := make(chan Result, 2)
	var status atomic.Int64
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var res Result
		if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		received <- res
		if code := int(status.Load()); code != http.StatusOK {
			http.Error(w, "replay", code)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cb := NewHTTPCallback(srv.URL)
	result := &Result{RequestID: 7, Cleartext: protocol.EncodeCleartext([]uint64{22}), Proof: []byte{1, 2}}
	require.NoError(t, cb.Deliver(context.Background(), result))
	require.Equal(t, *result, <-received)

	status.Store(http.StatusConflict)
	err := cb.Deliver(context.Background(), result)
	require.Error(t, err)
	require.Contains(t, err.Error(), "409")
}

func TestHTTPCallbackRetriesThrottledDelivery(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cb := &HTTPCallback{URL: srv.URL, Client: srv.Client(), MaxAttempts: 3, Backoff: time.Millisecond}
	result := &Result{RequestID: 3, Cleartext: protocol.EncodeCleartext([]uint64{1})}
	require.NoError(t, cb.Deliver(context.Background(), result))
	require.Equal(t, int64(3), calls.Load())

	// Attempts are bounded.
	calls.Store(-10)
	err := cb.Deliver(context.Background(), result)
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Equal(t, int64(-7), calls.Load())
}

func TestHTTPCallbackDoesNotRetryRejection(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "replay", http.StatusConflict)
	}))
	defer srv.Close()

	cb := &HTTPCallback{URL: srv.URL, Client: srv.Client(), MaxAttempts: 5, Backoff: time.Millisecond}
	err := cb.Deliver(context.Background(), &Result{RequestID: 3})
	require.Error(t, err)
	require.Equal(t, int64(1), calls.Load())
}
