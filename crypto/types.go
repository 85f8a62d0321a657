package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// PublicKey is an Ed25519 public key. In the ledger it doubles as the
// identity of an actor: the owner, a data provider, a result requester or
// the decryption oracle.
type PublicKey []byte

// NewPublicKeyFromBytes copies data into a new PublicKey.
func NewPublicKeyFromBytes(data []byte) PublicKey {
	pk := make([]byte, len(data))
	copy(pk, data)
	return PublicKey(pk)
}

// NewPublicKeyFromString parses a hex-encoded public key.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return PublicKey{}, err
	}
	if len(rawBytes) != ed25519.PublicKeySize {
		return PublicKey{}, errors.New("invalid public key size")
	}
	return NewPublicKeyFromBytes(rawBytes), nil
}

// Bytes returns the raw key bytes.
func (pk PublicKey) Bytes() []byte {
	return pk
}

// Equal reports whether both keys hold the same bytes.
func (pk PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(pk, other) == 1
}

// String returns the hex encoding of the key. Used as the map key for
// per-actor state.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk)
}

// PrivateKey is an Ed25519 private key.
type PrivateKey []byte

// NewPrivateKeyFromBytes copies data into a new PrivateKey.
func NewPrivateKeyFromBytes(data []byte) PrivateKey {
	sk := make([]byte, len(data))
	copy(sk, data)
	return PrivateKey(sk)
}

// NewPrivateKeyFromString parses a hex-encoded private key.
func NewPrivateKeyFromString(data string) (PrivateKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if len(rawBytes) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return NewPrivateKeyFromBytes(rawBytes), nil
}

// Bytes exposes the key material. Handle with care.
func (sk PrivateKey) Bytes() []byte {
	return sk
}

// PublicKey derives the public half of the key pair.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) < ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return PublicKey(sk[32:]), nil
}

// GenerateKeyPair generates a fresh Ed25519 key pair.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PublicKey(publicKey), PrivateKey(privateKey), nil
}

// Signature is an Ed25519 signature.
type Signature []byte

// NewSignature copies data into a new Signature.
func NewSignature(data []byte) Signature {
	sig := make([]byte, len(data))
	copy(sig, data)
	return Signature(sig)
}

// Bytes returns the raw signature bytes.
func (s Signature) Bytes() []byte {
	return []byte(s)
}

// Verify checks the signature over data against publicKey.
func (s Signature) Verify(publicKey PublicKey, data []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, s)
}

// String returns the hex encoding of the signature.
func (s Signature) String() string {
	return hex.EncodeToString(s.Bytes())
}

// Sign signs data with privateKey.
func Sign(privateKey PrivateKey, data []byte) (Signature, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return Signature(ed25519.Sign(ed25519.PrivateKey(privateKey), data)), nil
}
