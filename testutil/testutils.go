package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
	"github.com/stretchr/testify/require"
)

// TestParametersConfig returns small BGV parameters for tests.
func TestParametersConfig() fhe.ParametersConfig {
	return fhe.ParametersConfig{
		LogN:             12,
		LogQ:             []int{54},
		LogP:             []int{54},
		PlaintextModulus: 0x10001,
	}
}

// NewTestKeySet generates a key set over TestParametersConfig.
func NewTestKeySet(t testing.TB) *fhe.KeySet {
	t.Helper()
	params, err := fhe.NewParameters(TestParametersConfig())
	require.NoError(t, err)
	return fhe.GenerateKeySet(params)
}

// FHEEnv bundles both sides of the encryption scheme over a shared store.
type FHEEnv struct {
	Keys       *fhe.KeySet
	Store      *fhe.CiphertextStore
	Capability *fhe.BGV
	Decryptor  *fhe.BGVDecryptor
}

// NewFHEEnv creates a fresh FHEEnv.
func NewFHEEnv(t testing.TB) *FHEEnv {
	t.Helper()
	keys := NewTestKeySet(t)
	store := fhe.NewCiphertextStore()
	return &FHEEnv{
		Keys:       keys,
		Store:      store,
		Capability: fhe.NewBGV(keys.Params, keys.PublicKey, store),
		Decryptor:  fhe.NewBGVDecryptor(keys.Params, keys.SecretKey, store),
	}
}

// Actor is a key pair identifying a ledger caller.
type Actor struct {
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
}

// NewActor generates a fresh Actor.
func NewActor(t testing.TB) Actor {
	t.Helper()
	pk, sk, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return Actor{PublicKey: pk, PrivateKey: sk}
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
