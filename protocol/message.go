package protocol

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/flashbots/noisyagg/crypto"
)

// Signed authenticates an actor's request.
// The signature covers the serialized object followed by the public key, so
// the same object cannot be replayed under a different identity.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

// NewSigned signs obj with privkey.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serializedData, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, append(serializedData, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// Recover verifies the signature and returns the object and the signer.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	if s.Object == nil {
		return nil, nil, errors.New("signed message has no object")
	}

	serializedData, err := SerializeMessage(s.Object)
	if err != nil {
		return nil, nil, err
	}

	if !s.Signature.Verify(s.PublicKey, append(serializedData, s.PublicKey...)) {
		return nil, nil, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey, nil
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON bytes.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
