package protocol

import (
	"fmt"

	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
)

// Store is the complete ledger state. It performs no locking of its own;
// Ledger serializes access.
type Store struct {
	gate     *Gate
	throttle *Throttle

	batches      []*Batch
	accumulators map[BatchID]fhe.Slot
	noisyResults map[BatchID]fhe.Slot
	contexts     map[RequestID]*DecryptionContext
	releases     map[BatchID]*Release
}

// NewStore creates the genesis state: owner holds both roles, nothing is
// paused and no batch exists.
func NewStore(owner crypto.PublicKey, config *LedgerConfig) *Store {
	return &Store{
		gate:         NewGate(owner),
		throttle:     NewThrottle(config.SubmissionCooldown, config.DecryptionCooldown),
		accumulators: make(map[BatchID]fhe.Slot),
		noisyResults: make(map[BatchID]fhe.Slot),
		contexts:     make(map[RequestID]*DecryptionContext),
		releases:     make(map[BatchID]*Release),
	}
}

// BatchCount is the number of batches ever opened, which is also the id of
// the newest batch.
func (s *Store) BatchCount() uint64 {
	return uint64(len(s.batches))
}

func (s *Store) batch(id BatchID) (*Batch, error) {
	if id == 0 || uint64(id) > s.BatchCount() {
		return nil, fmt.Errorf("%w: batch %d does not exist", ErrInvalidBatch, id)
	}
	return s.batches[id-1], nil
}

func (s *Store) appendBatch(magnitude fhe.Handle) *Batch {
	b := &Batch{
		ID:             BatchID(len(s.batches) + 1),
		Active:         true,
		NoiseMagnitude: fhe.InitializedSlot(magnitude),
	}
	s.batches = append(s.batches, b)
	return b
}

func (s *Store) view(id BatchID) (BatchView, error) {
	b, err := s.batch(id)
	if err != nil {
		return BatchView{}, err
	}
	v := BatchView{
		Batch:       *b,
		Accumulator: s.accumulators[id],
		NoisyResult: s.noisyResults[id],
	}
	if r, ok := s.releases[id]; ok {
		rel := *r
		v.Release = &rel
	}
	return v, nil
}

// handleList returns the ciphertext handles a decryption of batch id covers,
// in commitment order.
func (s *Store) handleList(id BatchID) []fhe.Handle {
	if h, ok := s.noisyResults[id].Handle(); ok {
		return []fhe.Handle{h}
	}
	return nil
}

func commitHandles(handles []fhe.Handle, deploymentID string) crypto.StateHash {
	raw := make([][32]byte, len(handles))
	for i, h := range handles {
		raw[i] = h
	}
	return crypto.Commit(raw, deploymentID)
}
