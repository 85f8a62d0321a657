package crypto

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// StateHash commits to the ciphertext set of a decryption request.
type StateHash [32]byte

// String returns the hex encoding of the hash.
func (h StateHash) String() string {
	return hex.EncodeToString(h[:])
}

const commitmentDomain = "noisyagg/decryption-state/v1"

// Commit computes Keccak-256 over the domain tag, the deployment identity and
// the ordered handle list. Every variable-length field is length-prefixed, so
// distinct inputs never share an encoding.
func Commit(handles [][32]byte, deploymentID string) StateHash {
	h := sha3.NewLegacyKeccak256()

	var lenBuf [8]byte
	writeField := func(b []byte) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
		h.Write(lenBuf[:])
		h.Write(b)
	}

	writeField([]byte(commitmentDomain))
	writeField([]byte(deploymentID))

	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(handles)))
	h.Write(lenBuf[:])
	for _, handle := range handles {
		h.Write(handle[:])
	}

	var out StateHash
	h.Sum(out[:0])
	return out
}
