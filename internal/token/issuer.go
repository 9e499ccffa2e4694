// Package token mints and burns the derivative tokens issued 1:1 against
// deposits.
package token

import (
	"LendingAggregator/internal/poolerr"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Issuer mints derivative tokens on deposit and burns them on redemption.
// Errors match poolerr.ErrTokenIssuer.
type Issuer interface {
	Mint(ctx context.Context, tokenID string, holder uuid.UUID, amount int64) error
	Burn(ctx context.Context, tokenID string, holder uuid.UUID, amount int64) error
}

type holding struct {
	tokenID string
	holder  uuid.UUID
}

// MemoryIssuer keeps token balances in process memory.
type MemoryIssuer struct {
	mu       sync.Mutex
	balances map[holding]int64
	supply   map[string]int64
	failWith error
}

func NewMemoryIssuer() *MemoryIssuer {
	return &MemoryIssuer{
		balances: make(map[holding]int64),
		supply:   make(map[string]int64),
	}
}

// FailWith makes every subsequent call fail with err. nil clears it.
func (m *MemoryIssuer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MemoryIssuer) Mint(ctx context.Context, tokenID string, holder uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ctx, amount); err != nil {
		return fmt.Errorf("%w: mint %s: %v", poolerr.ErrTokenIssuer, tokenID, err)
	}
	m.balances[holding{tokenID, holder}] += amount
	m.supply[tokenID] += amount
	return nil
}

func (m *MemoryIssuer) Burn(ctx context.Context, tokenID string, holder uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ctx, amount); err != nil {
		return fmt.Errorf("%w: burn %s: %v", poolerr.ErrTokenIssuer, tokenID, err)
	}
	key := holding{tokenID, holder}
	if m.balances[key] < amount {
		return fmt.Errorf("%w: burn %s: holder %s has %d, need %d",
			poolerr.ErrTokenIssuer, tokenID, holder, m.balances[key], amount)
	}
	m.balances[key] -= amount
	m.supply[tokenID] -= amount
	return nil
}

// BalanceOf returns the holder's token balance.
func (m *MemoryIssuer) BalanceOf(tokenID string, holder uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[holding{tokenID, holder}]
}

// TotalSupply returns the outstanding supply of tokenID.
func (m *MemoryIssuer) TotalSupply(tokenID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supply[tokenID]
}

func (m *MemoryIssuer) checkLocked(ctx context.Context, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failWith != nil {
		return m.failWith
	}
	if amount <= 0 {
		return fmt.Errorf("non-positive amount %d", amount)
	}
	return nil
}
