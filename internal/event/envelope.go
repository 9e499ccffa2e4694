package event

import (
	"context"
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposited
	EventTypeBorrowed
	EventTypeRedeemed
	EventTypeRepaid
	EventTypePartialDelivery
	EventTypeReserveStatusChanged
)

// EventEnvelope wraps every outbound event
type EventEnvelope struct {
	// Sequence of the last ledger entry the event reflects (0 when none)
	Sequence int64 `json:"sequence"`

	// Idempotency key of the workflow that produced the event
	IdempotencyKey string `json:"idempotency_key"`

	EventType EventType `json:"-"`
	TypeName  string    `json:"event_type"`

	Reserve   string    `json:"reserve"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the key of the workflow that produced it
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Reserve returns the asset the event concerns
	Reserve() string

	// Sequence returns the last ledger entry sequence the event reflects
	Sequence() int64

	// OccurredAt returns when the event was produced
	OccurredAt() time.Time
}

// Sink receives events once the ledger has committed them. Emit must not
// block the workflow that produced the event.
type Sink interface {
	Emit(ctx context.Context, evt Event)
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) {}

// NewEnvelope wraps evt for publishing.
func NewEnvelope(evt Event) EventEnvelope {
	return EventEnvelope{
		Sequence:       evt.Sequence(),
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		TypeName:       evt.EventType().String(),
		Reserve:        evt.Reserve(),
		Timestamp:      evt.OccurredAt(),
		Payload:        evt,
	}
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposited:
		return "deposited"
	case EventTypeBorrowed:
		return "borrowed"
	case EventTypeRedeemed:
		return "redeemed"
	case EventTypeRepaid:
		return "repaid"
	case EventTypePartialDelivery:
		return "partial_delivery"
	case EventTypeReserveStatusChanged:
		return "reserve_status_changed"
	default:
		return "unknown"
	}
}
