package protocol

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
)

// Ledger is the encrypted aggregation ledger.
//
// All operations, including oracle callbacks, run under a single mutex, so
// each one observes and produces a consistent Store.
type Ledger struct {
	// Thread safety
	mu sync.Mutex

	config *LedgerConfig
	store  *Store

	// Collaborators
	fhe    fhe.Capability
	oracle Oracle
	events EventSink
}

// NewLedger creates a ledger owned by owner.
//
// events may be nil, in which case events are discarded.
func NewLedger(config *LedgerConfig, owner crypto.PublicKey, capability fhe.Capability, oracle Oracle, events EventSink) (*Ledger, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	if len(owner) == 0 {
		return nil, errors.New("owner cannot be empty")
	}
	if capability == nil {
		return nil, errors.New("encryption capability cannot be nil")
	}
	if oracle == nil {
		return nil, errors.New("oracle cannot be nil")
	}
	if events == nil {
		events = nopSink{}
	}

	return &Ledger{
		config: config,
		store:  NewStore(owner, config),
		fhe:    capability,
		oracle: oracle,
		events: events,
	}, nil
}

// Config returns the ledger configuration.
func (l *Ledger) Config() *LedgerConfig {
	return l.config
}

func (l *Ledger) emit(e Event) {
	l.events.Emit(e)
}

// Pause halts every mutating operation except Unpause and oracle callbacks.
func (l *Ledger) Pause(caller crypto.PublicKey, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.gate.RequireOwner(caller); err != nil {
		return err
	}
	if err := l.store.gate.RequireNotPaused(); err != nil {
		return err
	}
	l.store.gate.setPaused(true)
	l.emit(Event{Kind: EventPaused, Time: now, Actor: caller.String()})
	return nil
}

// Unpause resumes normal operation. Unpausing a running ledger is a no-op.
func (l *Ledger) Unpause(caller crypto.PublicKey, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.gate.RequireOwner(caller); err != nil {
		return err
	}
	if !l.store.gate.Paused() {
		return nil
	}
	l.store.gate.setPaused(false)
	l.emit(Event{Kind: EventUnpaused, Time: now, Actor: caller.String()})
	return nil
}

// AddProvider grants actor the data provider role.
func (l *Ledger) AddProvider(caller, actor crypto.PublicKey, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerActive(caller); err != nil {
		return err
	}
	if len(actor) == 0 {
		return errors.New("provider key cannot be empty")
	}
	l.store.gate.addProvider(actor)
	l.emit(Event{Kind: EventProviderAdded, Time: now, Actor: caller.String(), Subject: actor.String()})
	return nil
}

// RemoveProvider revokes actor's data provider role.
func (l *Ledger) RemoveProvider(caller, actor crypto.PublicKey, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerActive(caller); err != nil {
		return err
	}
	l.store.gate.removeProvider(actor)
	l.emit(Event{Kind: EventProviderRemoved, Time: now, Actor: caller.String(), Subject: actor.String()})
	return nil
}

// TransferOwnership hands the owner role to newOwner.
func (l *Ledger) TransferOwnership(caller, newOwner crypto.PublicKey, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerActive(caller); err != nil {
		return err
	}
	if len(newOwner) == 0 {
		return errors.New("new owner cannot be empty")
	}
	l.store.gate.transferOwnership(newOwner)
	l.emit(Event{Kind: EventOwnershipTransferred, Time: now, Actor: caller.String(), Subject: newOwner.String()})
	return nil
}

// SetCooldown changes the window duration of kind for every actor.
func (l *Ledger) SetCooldown(caller crypto.PublicKey, kind ActionKind, d time.Duration, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerActive(caller); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidActionKind, int(kind))
	}
	if d < 0 {
		return errors.New("cooldown must not be negative")
	}
	l.store.throttle.SetCooldown(kind, d)
	l.emit(Event{Kind: EventCooldownSet, Time: now, Actor: caller.String(), Action: kind.String(), Cooldown: d})
	return nil
}

func (l *Ledger) requireOwnerActive(caller crypto.PublicKey) error {
	if err := l.store.gate.RequireOwner(caller); err != nil {
		return err
	}
	return l.store.gate.RequireNotPaused()
}

// Status is a snapshot of the ledger-wide state.
type Status struct {
	Owner              crypto.PublicKey `json:"owner"`
	Paused             bool             `json:"paused"`
	BatchCount         uint64           `json:"batch_count"`
	SubmissionCooldown time.Duration    `json:"submission_cooldown"`
	DecryptionCooldown time.Duration    `json:"decryption_cooldown"`
}

// Status returns the ledger-wide state.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Status{
		Owner:              crypto.NewPublicKeyFromBytes(l.store.gate.Owner()),
		Paused:             l.store.gate.Paused(),
		BatchCount:         l.store.BatchCount(),
		SubmissionCooldown: l.store.throttle.Cooldown(ActionSubmission),
		DecryptionCooldown: l.store.throttle.Cooldown(ActionDecryptionRequest),
	}
}

// IsProvider reports whether actor currently holds the provider role.
func (l *Ledger) IsProvider(actor crypto.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.gate.IsProvider(actor)
}

// Batch returns a snapshot of batch id.
func (l *Ledger) Batch(id BatchID) (BatchView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.view(id)
}

// DecryptionContext returns a copy of the context of requestID.
func (l *Ledger) DecryptionContext(requestID RequestID) (DecryptionContext, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.store.contexts[requestID]
	if !ok {
		return DecryptionContext{}, fmt.Errorf("%w: %d", ErrUnknownRequest, requestID)
	}
	return *c, nil
}

// Release returns the finalized result of batch id, if any.
func (l *Ledger) Release(id BatchID) (Release, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.store.releases[id]
	if !ok {
		return Release{}, false
	}
	return *r, true
}
