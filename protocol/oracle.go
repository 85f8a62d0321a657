package protocol

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/flashbots/noisyagg/fhe"
)

// Oracle is the external decryption service.
//
// RequestDecryption must return before the result is delivered: the ledger
// holds its lock across the call and the answer arrives later through
// Ledger.OnDecryptionResult.
type Oracle interface {
	RequestDecryption(ctx context.Context, handles []fhe.Handle) (RequestID, error)
	VerifyProof(requestID RequestID, cleartext, proof []byte) bool
}

// CleartextWordSize is the encoded size of one decrypted value.
const CleartextWordSize = 8

// EncodeCleartext encodes one big-endian word per decrypted handle.
func EncodeCleartext(values []uint64) []byte {
	out := make([]byte, len(values)*CleartextWordSize)
	for i, v := range values {
		binary.BigEndian.PutUint64(out[i*CleartextWordSize:], v)
	}
	return out
}

// DecodeCleartext decodes exactly n words.
func DecodeCleartext(cleartext []byte, n int) ([]uint64, error) {
	if n == 0 || len(cleartext) != n*CleartextWordSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedCleartext, n*CleartextWordSize, len(cleartext))
	}
	values := make([]uint64, n)
	for i := range values {
		values[i] = binary.BigEndian.Uint64(cleartext[i*CleartextWordSize:])
	}
	return values, nil
}
