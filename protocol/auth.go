package protocol

import (
	"github.com/flashbots/noisyagg/crypto"
)

// Gate holds the authorization state: the owner, the provider set and the
// pause flag.
type Gate struct {
	owner     crypto.PublicKey
	providers map[string]bool
	paused    bool
}

// NewGate creates a gate owned by owner. The owner starts out as a provider.
func NewGate(owner crypto.PublicKey) *Gate {
	return &Gate{
		owner:     owner,
		providers: map[string]bool{owner.String(): true},
	}
}

// Owner returns the current owner.
func (g *Gate) Owner() crypto.PublicKey {
	return g.owner
}

// IsProvider reports whether actor may submit data.
func (g *Gate) IsProvider(actor crypto.PublicKey) bool {
	return g.providers[actor.String()]
}

// Paused reports whether the ledger is paused.
func (g *Gate) Paused() bool {
	return g.paused
}

// RequireOwner fails with ErrInvalidAuthority unless caller is the owner.
func (g *Gate) RequireOwner(caller crypto.PublicKey) error {
	if caller == nil || !g.owner.Equal(caller) {
		return ErrInvalidAuthority
	}
	return nil
}

// RequireProvider fails with ErrInvalidAuthority unless caller is a provider.
func (g *Gate) RequireProvider(caller crypto.PublicKey) error {
	if caller == nil || !g.IsProvider(caller) {
		return ErrInvalidAuthority
	}
	return nil
}

// RequireNotPaused fails with ErrPausedState while paused.
func (g *Gate) RequireNotPaused() error {
	if g.paused {
		return ErrPausedState
	}
	return nil
}

func (g *Gate) setPaused(paused bool) {
	g.paused = paused
}

func (g *Gate) addProvider(actor crypto.PublicKey) {
	g.providers[actor.String()] = true
}

func (g *Gate) removeProvider(actor crypto.PublicKey) {
	delete(g.providers, actor.String())
}

// Provider membership is left unchanged: only the genesis owner is
// implicitly a provider.
func (g *Gate) transferOwnership(newOwner crypto.PublicKey) {
	g.owner = crypto.NewPublicKeyFromBytes(newOwner)
}
