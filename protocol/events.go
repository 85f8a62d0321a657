package protocol

import (
	"time"
)

// EventKind names an observable ledger event.
type EventKind string

const (
	EventBatchOpened          EventKind = "batch_opened"
	EventBatchClosed          EventKind = "batch_closed"
	EventNoiseMagnitudeSet    EventKind = "noise_magnitude_set"
	EventDataSubmitted        EventKind = "data_submitted"
	EventDecryptionRequested  EventKind = "decryption_requested"
	EventDecryptionCompleted  EventKind = "decryption_completed"
	EventPaused               EventKind = "paused"
	EventUnpaused             EventKind = "unpaused"
	EventProviderAdded        EventKind = "provider_added"
	EventProviderRemoved      EventKind = "provider_removed"
	EventCooldownSet          EventKind = "cooldown_set"
	EventOwnershipTransferred EventKind = "ownership_transferred"
)

// Event is one entry of the audit trail. Submitted values never appear in
// events; noise magnitudes do, since calibration is public.
type Event struct {
	Kind        EventKind     `json:"kind"`
	Time        time.Time     `json:"time"`
	Actor       string        `json:"actor,omitempty"`
	BatchID     BatchID       `json:"batch_id,omitempty"`
	RequestID   RequestID     `json:"request_id,omitempty"`
	RecordCount uint64        `json:"record_count,omitempty"`
	Magnitude   *uint64       `json:"magnitude,omitempty"`
	Result      *uint64       `json:"result,omitempty"`
	Subject     string        `json:"subject,omitempty"`
	Action      string        `json:"action,omitempty"`
	Cooldown    time.Duration `json:"cooldown,omitempty"`
}

// EventSink receives ledger events in operation order.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f(e).
func (f EventSinkFunc) Emit(e Event) {
	f(e)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

// Emit forwards e to every sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

func uint64Ptr(v uint64) *uint64 {
	return &v
}
