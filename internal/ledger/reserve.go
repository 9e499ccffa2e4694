package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reserve is the aggregate ledger record of one supported asset.
// Amounts use math.AmountConfig; LTV, threshold and bonus use math.FractionScale.
type Reserve struct {
	Asset                string
	Symbol               string
	TotalLiquidity       int64 // deposited minus withdrawn
	AvailableLiquidity   int64 // not lent out
	LoanToValue          int64
	LiquidationThreshold int64
	LiquidationBonus     int64
	TokenID              string // derivative token issued 1:1 against deposits
	Active               bool
	UpdatedAt            time.Time
}

// Borrowed returns liquidity currently lent out.
func (r Reserve) Borrowed() int64 {
	return r.TotalLiquidity - r.AvailableLiquidity
}

// UserBalance is one user's position in one reserve.
type UserBalance struct {
	Asset     string
	UserID    uuid.UUID
	Deposited int64
	Borrowed  int64
}

// IsZero reports whether the balance carries no deposit and no debt.
func (b UserBalance) IsZero() bool {
	return b.Deposited == 0 && b.Borrowed == 0
}

// Mutation is the input of every amount-moving ledger operation.
type Mutation struct {
	RequestKey string // idempotency key of the workflow that issued it
	Asset      string
	UserID     uuid.UUID
	ProviderID string // provider that moved the funds, informational
	Amount     int64
}

// Store is the authoritative record of reserves, user balances and the
// entries that changed them. Implementations must be safe for concurrent use
// and must apply each mutation atomically: either every field changes and an
// entry is appended, or nothing changes.
type Store interface {
	CreateReserve(ctx context.Context, r Reserve) error
	SetReserveActive(ctx context.Context, asset string, active bool) error
	ListReserves(ctx context.Context) ([]Reserve, error)
	QueryReserve(ctx context.Context, asset string) (Reserve, error)
	QueryUserBalance(ctx context.Context, asset string, userID uuid.UUID) (UserBalance, error)
	ListUserBalances(ctx context.Context, userID uuid.UUID) ([]UserBalance, error)

	CreditDeposit(ctx context.Context, m Mutation) (Entry, error)
	DebitWithdrawal(ctx context.Context, m Mutation) (Entry, error)
	CreditBorrow(ctx context.Context, m Mutation) (Entry, error)
	DebitBorrow(ctx context.Context, m Mutation) (Entry, error)

	Entries(ctx context.Context, asset string, afterSequence int64, limit int) ([]Entry, error)
	HasRequest(ctx context.Context, requestKey string) (bool, error)
}

// Apply computes the effect of an entry of the given kind on a reserve and a
// user balance. It returns the updated copies or an error; the inputs are
// never modified, so a failed mutation leaves the caller's state untouched.
func Apply(kind EntryKind, r Reserve, b UserBalance, amount int64) (Reserve, UserBalance, error) {
	if err := ValidateAmount(amount); err != nil {
		return r, b, err
	}

	switch kind {
	case EntryKindDeposit:
		b.Deposited += amount
		r.TotalLiquidity += amount
		r.AvailableLiquidity += amount
	case EntryKindWithdrawal:
		if amount > b.Deposited {
			return r, b, insufficientBalance(b, amount)
		}
		b.Deposited -= amount
		r.TotalLiquidity -= amount
		r.AvailableLiquidity -= amount
	case EntryKindBorrow:
		b.Borrowed += amount
		r.AvailableLiquidity -= amount
	case EntryKindRepay:
		b.Borrowed -= amount
		r.AvailableLiquidity += amount
	default:
		return r, b, fmt.Errorf("unknown entry kind %d", kind)
	}

	if err := ValidateReserve(r); err != nil {
		return r, b, err
	}
	if err := ValidateUserBalance(b); err != nil {
		return r, b, err
	}
	return r, b, nil
}
