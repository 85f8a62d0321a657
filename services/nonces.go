package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flashbots/noisyagg/crypto"
)

// ErrStaleNonce is returned for a signed request whose nonce does not exceed
// the signer's previous one.
var ErrStaleNonce = errors.New("stale nonce")

// ErrOperationMismatch is returned for a signed request posted to a route
// other than the one it was signed for.
var ErrOperationMismatch = errors.New("operation mismatch")

// NonceTracker rejects replayed signed requests.
type NonceTracker struct {
	mu   sync.Mutex
	last map[string]uint64
}

// NewNonceTracker creates an empty tracker.
func NewNonceTracker() *NonceTracker {
	return &NonceTracker{last: make(map[string]uint64)}
}

// Use consumes nonce for signer. Nonces start at 1.
func (n *NonceTracker) Use(signer crypto.PublicKey, nonce uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := signer.String()
	if nonce <= n.last[key] {
		return fmt.Errorf("%w: %d, last used %d", ErrStaleNonce, nonce, n.last[key])
	}
	n.last[key] = nonce
	return nil
}
