package pool_test

import (
	"LendingAggregator/internal/custody"
	"LendingAggregator/internal/event"
	"LendingAggregator/internal/ledger"
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/pool"
	"LendingAggregator/internal/pricefeed"
	"LendingAggregator/internal/provider"
	"LendingAggregator/internal/risk"
	"LendingAggregator/internal/router"
	"LendingAggregator/internal/token"
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	asset   = "USDC"
	tokenID = "aggUSDC"
	unit    = int64(1_000_000)   // one whole USDC
	usd     = int64(100_000_000) // $1 at price scale
	pct     = int64(1_000_000)   // 1% at rate scale
)

var (
	alice = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	bob   = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
)

type poolSpec struct {
	id        string
	rate      int64
	borrow    int64
	available int64
}

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Emit(_ context.Context, evt event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordingSink) All() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

type harness struct {
	t      *testing.T
	orch   *pool.Orchestrator
	deps   pool.Deps
	store  *ledger.MemoryStore
	vault  *custody.MemoryVault
	issuer *token.MemoryIssuer
	prices *pricefeed.StaticFeed
	pools  map[string]*provider.MemoryPool
	sink   *recordingSink
}

func newHarness(t *testing.T, specs ...poolSpec) *harness {
	t.Helper()
	ctx := context.Background()

	store := ledger.NewMemoryStore()
	vault := custody.NewMemoryVault()
	issuer := token.NewMemoryIssuer()
	prices := pricefeed.NewStaticFeed(map[string]int64{asset: usd})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	reg := provider.NewRegistry()

	pools := make(map[string]*provider.MemoryPool)
	for _, s := range specs {
		p := provider.NewMemoryPool(s.id).WithPayout(vault.Credit).WithFunding(vault.Release)
		p.SetReserve(asset, provider.Rates{
			LiquidityRate:      s.rate,
			BorrowRate:         s.borrow,
			AvailableLiquidity: s.available,
		})
		require.NoError(t, reg.Register(asset, p))
		pools[s.id] = p
	}

	sink := &recordingSink{}
	deps := pool.Deps{
		Store:    store,
		Registry: reg,
		Router:   router.New(reg, metrics),
		Risk:     risk.NewEngine(store, prices),
		Issuer:   issuer,
		Vault:    vault,
		Events:   sink,
		Metrics:  metrics,
		Logger:   zerolog.Nop(),
	}
	orch := pool.New(deps)

	require.NoError(t, orch.CreateReserve(ctx, ledger.Reserve{
		Asset:                asset,
		Symbol:               "USDC",
		LoanToValue:          750_000,
		LiquidationThreshold: 800_000,
		LiquidationBonus:     50_000,
		TokenID:              tokenID,
		Active:               true,
	}))

	return &harness{
		t:      t,
		orch:   orch,
		deps:   deps,
		store:  store,
		vault:  vault,
		issuer: issuer,
		prices: prices,
		pools:  pools,
		sink:   sink,
	}
}

// seed records a pre-existing deposit, as if made before the test started.
func (h *harness) seed(user uuid.UUID, amount int64) {
	h.t.Helper()
	ctx := context.Background()
	_, err := h.store.CreditDeposit(ctx, ledger.Mutation{
		RequestKey: uuid.NewString(),
		Asset:      asset,
		UserID:     user,
		ProviderID: "seed",
		Amount:     amount,
	})
	require.NoError(h.t, err)
	require.NoError(h.t, h.issuer.Mint(ctx, tokenID, user, amount))
}

// fund gives the user wallet funds and approves the aggregator to pull them.
func (h *harness) fund(user uuid.UUID, amount int64) {
	h.vault.Fund(asset, user, amount)
	h.vault.Approve(asset, user, amount)
}

func (h *harness) reserve() ledger.Reserve {
	h.t.Helper()
	r, err := h.store.QueryReserve(context.Background(), asset)
	require.NoError(h.t, err)
	return r
}

func (h *harness) balance(user uuid.UUID) ledger.UserBalance {
	h.t.Helper()
	b, err := h.store.QueryUserBalance(context.Background(), asset, user)
	require.NoError(h.t, err)
	return b
}

func (h *harness) liquidity(id string) int64 {
	h.t.Helper()
	rates, err := h.pools[id].ReserveRates(context.Background(), asset)
	require.NoError(h.t, err)
	return rates.AvailableLiquidity
}

func (h *harness) withdrawCalls() int {
	total := 0
	for _, p := range h.pools {
		_, w := p.Calls()
		total += w
	}
	return total
}

func (h *harness) assertReserveInvariant() {
	h.t.Helper()
	r := h.reserve()
	require.GreaterOrEqual(h.t, r.AvailableLiquidity, int64(0))
	require.LessOrEqual(h.t, r.AvailableLiquidity, r.TotalLiquidity)
}

func req(user uuid.UUID, amount int64) pool.Request {
	return pool.Request{Asset: asset, UserID: user, Amount: amount}
}
