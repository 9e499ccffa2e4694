package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	errPaused             = errors.New("pool paused")
	errUnsupportedReserve = errors.New("reserve not supported")
	errPoolLiquidity      = errors.New("pool liquidity below requested amount")
	errNonPositive        = errors.New("non-positive amount")
)

// PayoutFunc delivers withdrawn funds to the recipient.
type PayoutFunc func(ctx context.Context, asset string, recipient uuid.UUID, amount int64) error

// FundingFunc pulls deposited funds from the depositor's custody.
type FundingFunc func(ctx context.Context, asset string, amount int64) error

// MemoryPool is an in-process lending pool. It backs development setups and
// tests with the same behavior a live pool exposes through its adapter.
type MemoryPool struct {
	id string

	mu       sync.Mutex
	reserves map[string]*Rates
	paused   bool
	failWith error
	payout   PayoutFunc
	funding  FundingFunc

	deposits  int
	withdraws int
}

func NewMemoryPool(id string) *MemoryPool {
	return &MemoryPool{id: id, reserves: make(map[string]*Rates)}
}

// WithPayout sets the hook invoked on every successful withdrawal.
func (p *MemoryPool) WithPayout(fn PayoutFunc) *MemoryPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payout = fn
	return p
}

// WithFunding sets the hook invoked on every accepted deposit.
func (p *MemoryPool) WithFunding(fn FundingFunc) *MemoryPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funding = fn
	return p
}

// SetReserve creates or replaces the state of one asset.
func (p *MemoryPool) SetReserve(asset string, rates Rates) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := rates
	p.reserves[asset] = &r
}

// SetPaused toggles rejection of deposits and withdrawals.
func (p *MemoryPool) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
}

// FailWith makes every subsequent mutating call fail with err. nil clears it.
func (p *MemoryPool) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Calls returns the number of Deposit and Withdraw calls received.
func (p *MemoryPool) Calls() (deposits, withdraws int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deposits, p.withdraws
}

func (p *MemoryPool) ID() string { return p.id }

func (p *MemoryPool) Deposit(ctx context.Context, asset string, amount int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deposits++

	r, err := p.checkLocked(ctx, asset, amount)
	if err != nil {
		return Wrap(p.id, "deposit", asset, err)
	}
	if p.funding != nil {
		if err := p.funding(ctx, asset, amount); err != nil {
			return Wrap(p.id, "deposit", asset, fmt.Errorf("funding: %w", err))
		}
	}
	r.AvailableLiquidity += amount
	return nil
}

func (p *MemoryPool) Withdraw(ctx context.Context, asset string, recipient uuid.UUID, amount int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.withdraws++

	r, err := p.checkLocked(ctx, asset, amount)
	if err != nil {
		return Wrap(p.id, "withdraw", asset, err)
	}
	if r.AvailableLiquidity < amount {
		return Wrap(p.id, "withdraw", asset,
			fmt.Errorf("%w: have %d, need %d", errPoolLiquidity, r.AvailableLiquidity, amount))
	}

	if p.payout != nil {
		if err := p.payout(ctx, asset, recipient, amount); err != nil {
			return Wrap(p.id, "withdraw", asset, fmt.Errorf("payout: %w", err))
		}
	}
	r.AvailableLiquidity -= amount
	return nil
}

func (p *MemoryPool) Reserves(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.reserves))
	for asset := range p.reserves {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out, nil
}

func (p *MemoryPool) ReserveRates(_ context.Context, asset string) (Rates, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.reserves[asset]
	if !ok {
		return Rates{}, Wrap(p.id, "rates", asset, errUnsupportedReserve)
	}
	return *r, nil
}

func (p *MemoryPool) checkLocked(ctx context.Context, asset string, amount int64) (*Rates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.failWith != nil {
		return nil, p.failWith
	}
	if p.paused {
		return nil, errPaused
	}
	if amount <= 0 {
		return nil, errNonPositive
	}
	r, ok := p.reserves[asset]
	if !ok {
		return nil, errUnsupportedReserve
	}
	return r, nil
}
