package fhe

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"
)

// Handle references a ciphertext held in a CiphertextStore.
type Handle [32]byte

// HandleOf derives the handle of a serialized ciphertext.
func HandleOf(serialized []byte) Handle {
	return Handle(blake3.Sum256(serialized))
}

// IsZero reports whether h is the zero handle, which never refers to a ciphertext.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText encodes the handle as hex.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex handle.
func (h *Handle) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(raw) != len(h) {
		return ErrInvalidHandle
	}
	copy(h[:], raw)
	return nil
}

// Slot holds either nothing or a ciphertext handle.
type Slot struct {
	handle Handle
	set    bool
}

// EmptySlot returns a slot that holds no ciphertext.
func EmptySlot() Slot {
	return Slot{}
}

// InitializedSlot returns a slot holding h.
func InitializedSlot(h Handle) Slot {
	return Slot{handle: h, set: true}
}

// Handle returns the held handle and whether the slot is initialized.
func (s Slot) Handle() (Handle, bool) {
	return s.handle, s.set
}

// IsEmpty reports whether the slot holds no ciphertext.
func (s Slot) IsEmpty() bool {
	return !s.set
}

// MarshalJSON encodes an empty slot as null and an initialized slot as its hex handle.
func (s Slot) MarshalJSON() ([]byte, error) {
	if !s.set {
		return []byte("null"), nil
	}
	return json.Marshal(s.handle)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Slot) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = EmptySlot()
		return nil
	}
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	*s = InitializedSlot(h)
	return nil
}
