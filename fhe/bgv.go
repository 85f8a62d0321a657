package fhe

import (
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// ParametersConfig selects BGV parameters.
type ParametersConfig struct {
	LogN             int    `yaml:"log_n"`
	LogQ             []int  `yaml:"log_q"`
	LogP             []int  `yaml:"log_p"`
	PlaintextModulus uint64 `yaml:"plaintext_modulus"`
}

// DefaultParametersConfig is a 128-bit secure set with a 16-bit plaintext space.
// Addition-only workloads need a single modulus level.
func DefaultParametersConfig() ParametersConfig {
	return ParametersConfig{
		LogN:             13,
		LogQ:             []int{54},
		LogP:             []int{54},
		PlaintextModulus: 0x10001,
	}
}

// NewParameters instantiates BGV parameters from cfg.
func NewParameters(cfg ParametersConfig) (bgv.Parameters, error) {
	params, err := bgv.NewParametersFromLiteral(bgv.ParametersLiteral{
		LogN:             cfg.LogN,
		LogQ:             cfg.LogQ,
		LogP:             cfg.LogP,
		PlaintextModulus: cfg.PlaintextModulus,
	})
	if err != nil {
		return bgv.Parameters{}, fmt.Errorf("invalid bgv parameters: %w", err)
	}
	return params, nil
}

// KeySet is a BGV key pair. The public key encrypts on the ledger side, the
// secret key stays with the decryption oracle.
type KeySet struct {
	Params    bgv.Parameters
	SecretKey *rlwe.SecretKey
	PublicKey *rlwe.PublicKey
}

// GenerateKeySet samples a fresh key pair for params.
func GenerateKeySet(params bgv.Parameters) *KeySet {
	sk, pk := rlwe.NewKeyGenerator(params).GenKeyPairNew()
	return &KeySet{Params: params, SecretKey: sk, PublicKey: pk}
}

// CiphertextStore maps handles to ciphertexts. Entries are immutable and
// never removed.
type CiphertextStore struct {
	mu  sync.RWMutex
	cts map[Handle]*rlwe.Ciphertext
}

// NewCiphertextStore creates an empty store.
func NewCiphertextStore() *CiphertextStore {
	return &CiphertextStore{cts: make(map[Handle]*rlwe.Ciphertext)}
}

// Put stores ct and returns its handle.
func (s *CiphertextStore) Put(ct *rlwe.Ciphertext) (Handle, error) {
	serialized, err := ct.MarshalBinary()
	if err != nil {
		return Handle{}, fmt.Errorf("serializing ciphertext: %w", err)
	}
	h := HandleOf(serialized)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cts[h]; !exists {
		s.cts[h] = ct.CopyNew()
	}
	return h, nil
}

// Get returns the ciphertext behind h.
func (s *CiphertextStore) Get(h Handle) (*rlwe.Ciphertext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ct, ok := s.cts[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return ct, nil
}

// Has reports whether h is stored.
func (s *CiphertextStore) Has(h Handle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cts[h]
	return ok
}

// Len returns the number of stored ciphertexts.
func (s *CiphertextStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cts)
}

// BGV implements Capability with public-key BGV encryption.
type BGV struct {
	params bgv.Parameters
	store  *CiphertextStore

	// lattigo encoders and evaluators keep internal buffers
	mu        sync.Mutex
	encoder   *bgv.Encoder
	encryptor *rlwe.Encryptor
	evaluator *bgv.Evaluator
}

// NewBGV creates the encryption capability for pk. Ciphertexts go to store.
func NewBGV(params bgv.Parameters, pk *rlwe.PublicKey, store *CiphertextStore) *BGV {
	return &BGV{
		params:    params,
		store:     store,
		encoder:   bgv.NewEncoder(params),
		encryptor: rlwe.NewEncryptor(params, pk),
		evaluator: bgv.NewEvaluator(params, nil),
	}
}

// PlaintextModulus returns the modulus sums are reduced by.
func (b *BGV) PlaintextModulus() uint64 {
	return b.params.PlaintextModulus()
}

// Encrypt encrypts value into slot 0 of a fresh ciphertext.
func (b *BGV) Encrypt(value uint64) (Handle, error) {
	if value >= b.params.PlaintextModulus() {
		return Handle{}, fmt.Errorf("%w: %d >= %d", ErrValueOutOfRange, value, b.params.PlaintextModulus())
	}

	b.mu.Lock()
	pt := bgv.NewPlaintext(b.params, b.params.MaxLevel())
	if err := b.encoder.Encode([]uint64{value}, pt); err != nil {
		b.mu.Unlock()
		return Handle{}, fmt.Errorf("encoding plaintext: %w", err)
	}
	ct, err := b.encryptor.EncryptNew(pt)
	b.mu.Unlock()
	if err != nil {
		return Handle{}, fmt.Errorf("encrypting: %w", err)
	}

	return b.store.Put(ct)
}

// IsInitialized reports whether h refers to a stored ciphertext.
func (b *BGV) IsInitialized(h Handle) bool {
	return !h.IsZero() && b.store.Has(h)
}

// Add returns the handle of ct(a) + ct(b).
func (b *BGV) Add(x, y Handle) (Handle, error) {
	ctX, err := b.store.Get(x)
	if err != nil {
		return Handle{}, err
	}
	ctY, err := b.store.Get(y)
	if err != nil {
		return Handle{}, err
	}

	b.mu.Lock()
	sum, err := b.evaluator.AddNew(ctX, ctY)
	b.mu.Unlock()
	if err != nil {
		return Handle{}, fmt.Errorf("homomorphic add: %w", err)
	}

	return b.store.Put(sum)
}

// BGVDecryptor implements Decryptor with the BGV secret key.
type BGVDecryptor struct {
	params bgv.Parameters
	store  *CiphertextStore

	mu        sync.Mutex
	encoder   *bgv.Encoder
	decryptor *rlwe.Decryptor
}

// NewBGVDecryptor creates a decryptor reading ciphertexts from store.
func NewBGVDecryptor(params bgv.Parameters, sk *rlwe.SecretKey, store *CiphertextStore) *BGVDecryptor {
	return &BGVDecryptor{
		params:    params,
		store:     store,
		encoder:   bgv.NewEncoder(params),
		decryptor: rlwe.NewDecryptor(params, sk),
	}
}

// Decrypt returns slot 0 of the plaintext behind h.
func (d *BGVDecryptor) Decrypt(h Handle) (uint64, error) {
	ct, err := d.store.Get(h)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pt := d.decryptor.DecryptNew(ct)
	values := make([]uint64, d.params.N())
	if err := d.encoder.Decode(pt, values); err != nil {
		return 0, fmt.Errorf("decoding plaintext: %w", err)
	}
	return values[0], nil
}
