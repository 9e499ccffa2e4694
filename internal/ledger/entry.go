package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind represents the purpose of a ledger entry
type EntryKind int32

const (
	EntryKindDeposit EntryKind = iota
	EntryKindWithdrawal
	EntryKindBorrow
	EntryKindRepay
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindDeposit:
		return "deposit"
	case EntryKindWithdrawal:
		return "withdrawal"
	case EntryKindBorrow:
		return "borrow"
	case EntryKindRepay:
		return "repay"
	default:
		return "unknown"
	}
}

// ParseEntryKind is the inverse of EntryKind.String.
func ParseEntryKind(s string) (EntryKind, bool) {
	switch s {
	case "deposit":
		return EntryKindDeposit, true
	case "withdrawal":
		return EntryKindWithdrawal, true
	case "borrow":
		return EntryKindBorrow, true
	case "repay":
		return EntryKindRepay, true
	}
	return 0, false
}

// Entry is the immutable record of one applied mutation.
type Entry struct {
	EntryID    uuid.UUID
	Sequence   int64 // monotone per store
	RequestKey string
	Kind       EntryKind
	Asset      string
	UserID     uuid.UUID
	ProviderID string
	Amount     int64 // always positive
	Timestamp  time.Time
}

func newEntry(seq int64, kind EntryKind, m Mutation, ts time.Time) Entry {
	return Entry{
		EntryID:    uuid.New(),
		Sequence:   seq,
		RequestKey: m.RequestKey,
		Kind:       kind,
		Asset:      m.Asset,
		UserID:     m.UserID,
		ProviderID: m.ProviderID,
		Amount:     m.Amount,
		Timestamp:  ts,
	}
}

// NewEntry builds an entry for stores that assign sequences themselves.
func NewEntry(seq int64, kind EntryKind, m Mutation, ts time.Time) Entry {
	return newEntry(seq, kind, m, ts)
}
