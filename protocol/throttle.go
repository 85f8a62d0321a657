package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/flashbots/noisyagg/crypto"
)

// ErrInvalidActionKind is returned for an unknown cooldown window.
var ErrInvalidActionKind = errors.New("unknown action kind")

// ActionKind selects one of the independent cooldown windows.
type ActionKind int

const (
	ActionSubmission ActionKind = iota
	ActionDecryptionRequest
	numActionKinds
)

func (k ActionKind) String() string {
	switch k {
	case ActionSubmission:
		return "submission"
	case ActionDecryptionRequest:
		return "decryption_request"
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// ParseActionKind is the inverse of ActionKind.String.
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "submission":
		return ActionSubmission, nil
	case "decryption_request":
		return ActionDecryptionRequest, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidActionKind, s)
}

// Valid reports whether k names a known window.
func (k ActionKind) Valid() bool {
	return k >= 0 && k < numActionKinds
}

type actionTimes struct {
	last [numActionKinds]time.Time
	seen [numActionKinds]bool
}

// Throttle enforces per-actor cooldown windows. Each window has one duration
// applied to every actor; changing it affects the next check.
type Throttle struct {
	cooldowns [numActionKinds]time.Duration
	actors    map[string]*actionTimes
}

// NewThrottle creates a throttle with the given window durations.
func NewThrottle(submission, decryption time.Duration) *Throttle {
	t := &Throttle{actors: make(map[string]*actionTimes)}
	t.cooldowns[ActionSubmission] = submission
	t.cooldowns[ActionDecryptionRequest] = decryption
	return t
}

// Cooldown returns the current duration of the kind window.
func (t *Throttle) Cooldown(kind ActionKind) time.Duration {
	return t.cooldowns[kind]
}

// SetCooldown replaces the duration of the kind window.
func (t *Throttle) SetCooldown(kind ActionKind, d time.Duration) {
	t.cooldowns[kind] = d
}

// Check fails with ErrCooldownActive while now is inside actor's window.
func (t *Throttle) Check(actor crypto.PublicKey, kind ActionKind, now time.Time) error {
	times, ok := t.actors[actor.String()]
	if !ok || !times.seen[kind] {
		return nil
	}
	readyAt := times.last[kind].Add(t.cooldowns[kind])
	if now.Before(readyAt) {
		return fmt.Errorf("%w: %s allowed again in %s", ErrCooldownActive, kind, readyAt.Sub(now))
	}
	return nil
}

// Record stores now as actor's last action of kind. The stored time never
// moves backwards.
func (t *Throttle) Record(actor crypto.PublicKey, kind ActionKind, now time.Time) {
	key := actor.String()
	times, ok := t.actors[key]
	if !ok {
		times = &actionTimes{}
		t.actors[key] = times
	}
	if times.seen[kind] && now.Before(times.last[kind]) {
		return
	}
	times.last[kind] = now
	times.seen[kind] = true
}

// LastAction returns actor's last recorded action of kind.
func (t *Throttle) LastAction(actor crypto.PublicKey, kind ActionKind) (time.Time, bool) {
	times, ok := t.actors[actor.String()]
	if !ok || !times.seen[kind] {
		return time.Time{}, false
	}
	return times.last[kind], true
}
