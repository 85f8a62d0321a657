package fhe

import "errors"

var (
	ErrInvalidHandle   = errors.New("invalid ciphertext handle")
	ErrUnknownHandle   = errors.New("unknown ciphertext handle")
	ErrValueOutOfRange = errors.New("plaintext exceeds plaintext modulus")
)

// Capability is what the ledger needs from the encryption scheme.
type Capability interface {
	// Encrypt encrypts value and returns the handle of the fresh ciphertext.
	Encrypt(value uint64) (Handle, error)

	// IsInitialized reports whether h refers to a ciphertext that was produced.
	IsInitialized(h Handle) bool

	// Add homomorphically adds the ciphertexts behind a and b.
	Add(a, b Handle) (Handle, error)
}

// Decryptor recovers plaintexts. Only the decryption oracle holds one.
type Decryptor interface {
	Decrypt(h Handle) (uint64, error)
}
