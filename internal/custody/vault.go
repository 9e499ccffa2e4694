// Package custody moves underlying assets between users and the
// aggregator's own holdings.
package custody

import (
	"LendingAggregator/internal/poolerr"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Vault is the transfer primitive deposits and repayments rely on.
type Vault interface {
	// TransferIn pulls amount from the user into aggregator custody. It
	// requires an allowance of at least amount and consumes it.
	TransferIn(ctx context.Context, asset string, from uuid.UUID, amount int64) error

	// TransferOut returns amount from aggregator custody to the user.
	TransferOut(ctx context.Context, asset string, to uuid.UUID, amount int64) error
}

type account struct {
	asset string
	owner uuid.UUID
}

// MemoryVault is an in-process ledger of user wallets, allowances and the
// aggregator's custody.
type MemoryVault struct {
	mu         sync.Mutex
	wallets    map[account]int64
	allowances map[account]int64
	held       map[string]int64
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		wallets:    make(map[account]int64),
		allowances: make(map[account]int64),
		held:       make(map[string]int64),
	}
}

// Fund credits a user's wallet.
func (v *MemoryVault) Fund(asset string, owner uuid.UUID, amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.wallets[account{asset, owner}] += amount
}

// Approve sets how much the aggregator may pull from the user's wallet.
func (v *MemoryVault) Approve(asset string, owner uuid.UUID, amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowances[account{asset, owner}] = amount
}

func (v *MemoryVault) BalanceOf(asset string, owner uuid.UUID) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wallets[account{asset, owner}]
}

func (v *MemoryVault) Allowance(asset string, owner uuid.UUID) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allowances[account{asset, owner}]
}

// Held returns the amount of asset sitting in aggregator custody.
func (v *MemoryVault) Held(asset string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.held[asset]
}

func (v *MemoryVault) TransferIn(ctx context.Context, asset string, from uuid.UUID, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: transfer in %d", poolerr.ErrInvalidAmount, amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := account{asset, from}
	if v.allowances[key] < amount {
		return fmt.Errorf("%w: %s allowance of %s is %d, need %d",
			poolerr.ErrInsufficientAllowance, asset, from, v.allowances[key], amount)
	}
	if v.wallets[key] < amount {
		return fmt.Errorf("%w: %s wallet of %s holds %d, need %d",
			poolerr.ErrInsufficientBalance, asset, from, v.wallets[key], amount)
	}
	v.allowances[key] -= amount
	v.wallets[key] -= amount
	v.held[asset] += amount
	return nil
}

func (v *MemoryVault) TransferOut(ctx context.Context, asset string, to uuid.UUID, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: transfer out %d", poolerr.ErrInvalidAmount, amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.held[asset] < amount {
		return fmt.Errorf("custody holds %d %s, need %d", v.held[asset], asset, amount)
	}
	v.held[asset] -= amount
	v.wallets[account{asset, to}] += amount
	return nil
}

// Release hands amount of custody over to a provider. It is the funding
// side of provider.MemoryPool deposits.
func (v *MemoryVault) Release(ctx context.Context, asset string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.held[asset] < amount {
		return fmt.Errorf("custody holds %d %s, need %d", v.held[asset], asset, amount)
	}
	v.held[asset] -= amount
	return nil
}

// Credit delivers amount paid out by a provider to the recipient's wallet.
// It is the payout side of provider.MemoryPool withdrawals.
func (v *MemoryVault) Credit(ctx context.Context, asset string, to uuid.UUID, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.wallets[account{asset, to}] += amount
	return nil
}

// Faucet is a Vault for development setups. Every pull is funded and
// approved just before it happens, so any user can deposit or repay.
type Faucet struct {
	*MemoryVault
}

func NewFaucet(v *MemoryVault) Faucet {
	return Faucet{MemoryVault: v}
}

func (f Faucet) TransferIn(ctx context.Context, asset string, from uuid.UUID, amount int64) error {
	if amount > 0 {
		f.Fund(asset, from, amount)
		f.Approve(asset, from, f.Allowance(asset, from)+amount)
	}
	return f.MemoryVault.TransferIn(ctx, asset, from, amount)
}
