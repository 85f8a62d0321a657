package protocol

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/testutil"
	"github.com/stretchr/testify/require"
)

// fakeOracle accepts requests and decrypts on demand. Proofs are a hash of
// the request id and the cleartext.
type fakeOracle struct {
	mu        sync.Mutex
	decryptor fhe.Decryptor
	nextID    RequestID
	requests  map[RequestID][]fhe.Handle
	fail      error
	reuseID   bool
}

func newFakeOracle(decryptor fhe.Decryptor) *fakeOracle {
	return &fakeOracle{decryptor: decryptor, requests: make(map[RequestID][]fhe.Handle)}
}

func (o *fakeOracle) RequestDecryption(_ context.Context, handles []fhe.Handle) (RequestID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return 0, o.fail
	}
	if !o.reuseID || o.nextID == 0 {
		o.nextID++
	}
	o.requests[o.nextID] = append([]fhe.Handle(nil), handles...)
	return o.nextID, nil
}

func (o *fakeOracle) VerifyProof(requestID RequestID, cleartext, proof []byte) bool {
	expected := fakeProof(requestID, cleartext)
	return string(expected) == string(proof)
}

// fulfil decrypts the handles of requestID and returns a valid answer.
func (o *fakeOracle) fulfil(t *testing.T, requestID RequestID) ([]byte, []byte) {
	t.Helper()
	o.mu.Lock()
	handles, ok := o.requests[requestID]
	o.mu.Unlock()
	require.True(t, ok, "request %d was never issued", requestID)

	values := make([]uint64, len(handles))
	for i, h := range handles {
		v, err := o.decryptor.Decrypt(h)
		require.NoError(t, err)
		values[i] = v
	}
	cleartext := EncodeCleartext(values)
	return cleartext, fakeProof(requestID, cleartext)
}

func fakeProof(requestID RequestID, cleartext []byte) []byte {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(requestID))
	sum := sha256.Sum256(append(prefix[:], cleartext...))
	return sum[:]
}

// countingCapability counts homomorphic additions.
type countingCapability struct {
	fhe.Capability
	adds int
}

func (c *countingCapability) Add(a, b fhe.Handle) (fhe.Handle, error) {
	c.adds++
	return c.Capability.Add(a, b)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) ofKind(kind EventKind) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type ledgerEnv struct {
	ledger     *Ledger
	fhe        *testutil.FHEEnv
	capability *countingCapability
	oracle     *fakeOracle
	events     *eventLog
	owner      testutil.Actor
	clock      *testutil.Clock
}

func newLedgerEnv(t *testing.T) *ledgerEnv {
	t.Helper()
	return newLedgerEnvWithConfig(t, &LedgerConfig{DeploymentID: "test-deployment"})
}

func newLedgerEnvWithConfig(t *testing.T, config *LedgerConfig) *ledgerEnv {
	t.Helper()
	env := testutil.NewFHEEnv(t)
	capability := &countingCapability{Capability: env.Capability}
	oracle := newFakeOracle(env.Decryptor)
	events := &eventLog{}
	owner := testutil.NewActor(t)

	ledger, err := NewLedger(config, owner.PublicKey, capability, oracle, events)
	require.NoError(t, err)

	return &ledgerEnv{
		ledger:     ledger,
		fhe:        env,
		capability: capability,
		oracle:     oracle,
		events:     events,
		owner:      owner,
		clock:      testutil.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

// closedBatch opens a batch with the given noise, submits values from the
// owner one second apart, and closes it.
func (e *ledgerEnv) closedBatch(t *testing.T, noise uint64, values ...uint64) BatchID {
	t.Helper()
	id, err := e.ledger.OpenBatch(e.owner.PublicKey, noise, e.clock.Now())
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, e.ledger.Submit(e.owner.PublicKey, id, v, e.clock.Advance(time.Second)))
	}
	require.NoError(t, e.ledger.CloseBatch(e.owner.PublicKey, id, e.clock.Now()))
	return id
}

// snapshot deep-copies the store maps a rejected callback must not touch.
type snapshot struct {
	noisyResults map[BatchID]fhe.Slot
	contexts     map[RequestID]DecryptionContext
	releases     map[BatchID]Release
}

func (e *ledgerEnv) snapshot() snapshot {
	e.ledger.mu.Lock()
	defer e.ledger.mu.Unlock()

	s := snapshot{
		noisyResults: make(map[BatchID]fhe.Slot),
		contexts:     make(map[RequestID]DecryptionContext),
		releases:     make(map[BatchID]Release),
	}
	for k, v := range e.ledger.store.noisyResults {
		s.noisyResults[k] = v
	}
	for k, v := range e.ledger.store.contexts {
		s.contexts[k] = *v
	}
	for k, v := range e.ledger.store.releases {
		s.releases[k] = *v
	}
	return s
}

var errOracleDown = errors.New("oracle unavailable")
