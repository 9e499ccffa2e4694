package event

import (
	"time"

	"github.com/google/uuid"
)

// Leg is the share of a workflow's amount moved through one provider.
type Leg struct {
	ProviderID string `json:"provider_id"`
	Amount     int64  `json:"amount"`
}

// WorkflowCompleted is emitted after a deposit, borrow, redemption or
// repayment has been fully committed to the ledger.
type WorkflowCompleted struct {
	Kind         EventType `json:"-"`
	RequestKey   string    `json:"request_key"`
	UserID       uuid.UUID `json:"user_id"`
	Asset        string    `json:"asset"`
	Amount       int64     `json:"amount"`
	Legs         []Leg     `json:"legs"`
	LastSequence int64     `json:"last_sequence"`
	Timestamp    time.Time `json:"timestamp"`
}

func (w *WorkflowCompleted) IdempotencyKey() string { return w.RequestKey }
func (w *WorkflowCompleted) EventType() EventType   { return w.Kind }
func (w *WorkflowCompleted) Reserve() string        { return w.Asset }
func (w *WorkflowCompleted) Sequence() int64        { return w.LastSequence }
func (w *WorkflowCompleted) OccurredAt() time.Time  { return w.Timestamp }

// PartialDelivery is emitted when a waterfall stops after delivering some
// chunks. The ledger reflects exactly the delivered legs.
type PartialDelivery struct {
	Workflow     EventType `json:"-"`
	WorkflowName string    `json:"workflow"`
	RequestKey   string    `json:"request_key"`
	UserID       uuid.UUID `json:"user_id"`
	Asset        string    `json:"asset"`
	Requested    int64     `json:"requested"`
	Delivered    int64     `json:"delivered"`
	Legs         []Leg     `json:"legs"`
	Reason       string    `json:"reason"`
	LastSequence int64     `json:"last_sequence"`
	Timestamp    time.Time `json:"timestamp"`
}

func (p *PartialDelivery) IdempotencyKey() string { return p.RequestKey }
func (p *PartialDelivery) EventType() EventType   { return EventTypePartialDelivery }
func (p *PartialDelivery) Reserve() string        { return p.Asset }
func (p *PartialDelivery) Sequence() int64        { return p.LastSequence }
func (p *PartialDelivery) OccurredAt() time.Time  { return p.Timestamp }

// ReserveStatusChanged is emitted when a reserve is activated or deactivated.
type ReserveStatusChanged struct {
	RequestKey string    `json:"request_key"`
	Asset      string    `json:"asset"`
	Active     bool      `json:"active"`
	Timestamp  time.Time `json:"timestamp"`
}

func (r *ReserveStatusChanged) IdempotencyKey() string { return r.RequestKey }
func (r *ReserveStatusChanged) EventType() EventType   { return EventTypeReserveStatusChanged }
func (r *ReserveStatusChanged) Reserve() string        { return r.Asset }
func (r *ReserveStatusChanged) Sequence() int64        { return 0 }
func (r *ReserveStatusChanged) OccurredAt() time.Time  { return r.Timestamp }
