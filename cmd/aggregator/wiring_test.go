package main

import (
	"LendingAggregator/internal/config"
	"LendingAggregator/internal/custody"
	"LendingAggregator/internal/ledger"
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/pool"
	"LendingAggregator/internal/pricefeed"
	"LendingAggregator/internal/risk"
	"LendingAggregator/internal/router"
	"LendingAggregator/internal/token"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalogue() config.Catalogue {
	return config.Catalogue{
		Reserves: []config.ReserveConfig{
			{
				Asset: "USDC", Symbol: "USDC", TokenID: "aggUSDC",
				LoanToValue: "0.75", LiquidationThreshold: "0.8", LiquidationBonus: "0",
				Providers: []config.ProviderConfig{
					{ID: "shared", Kind: config.ProviderMemory, LiquidityRate: "0.03", Liquidity: "100"},
					{ID: "other", Kind: config.ProviderMemory, LiquidityRate: "0.05", Liquidity: "10"},
				},
			},
			{
				Asset: "WETH", Symbol: "WETH", TokenID: "aggWETH",
				LoanToValue: "0.8", LiquidationThreshold: "0.85", LiquidationBonus: "0",
				Providers: []config.ProviderConfig{
					{ID: "shared", Kind: config.ProviderMemory, LiquidityRate: "0.02", Liquidity: "5"},
				},
			},
		},
		Prices: map[string]string{"USDC": "1", "WETH": "3000"},
	}
}

func TestNewRegistry_SharesPoolsAcrossReserves(t *testing.T) {
	reg, err := newRegistry(testCatalogue(), nil, custody.NewMemoryVault(), 0)
	require.NoError(t, err)

	usdc := reg.Providers("USDC")
	weth := reg.Providers("WETH")
	require.Len(t, usdc, 2)
	require.Len(t, weth, 1)
	assert.Same(t, usdc[0], weth[0])

	rates, err := weth[0].ReserveRates(context.Background(), "WETH")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), rates.AvailableLiquidity)
}

func TestNewRegistry_NATSProviderNeedsConnection(t *testing.T) {
	cat := testCatalogue()
	cat.Reserves[0].Providers = append(cat.Reserves[0].Providers,
		config.ProviderConfig{ID: "remote", Kind: config.ProviderNATS, SubjectPrefix: "lagg.providers.remote"})

	_, err := newRegistry(cat, nil, custody.NewMemoryVault(), 0)
	assert.Error(t, err)
}

func TestCreateReserves_IsIdempotentAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cat := testCatalogue()
	store := ledger.NewMemoryStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	reg, err := newRegistry(cat, nil, custody.NewMemoryVault(), 0)
	require.NoError(t, err)
	prices, err := cat.PriceTable()
	require.NoError(t, err)

	orch := pool.New(pool.Deps{
		Store:    store,
		Registry: reg,
		Router:   router.New(reg, metrics),
		Risk:     risk.NewEngine(store, pricefeed.NewStaticFeed(prices)),
		Issuer:   token.NewMemoryIssuer(),
		Vault:    custody.NewMemoryVault(),
		Metrics:  metrics,
		Logger:   zerolog.Nop(),
	})

	require.NoError(t, createReserves(ctx, orch, store, cat))
	require.NoError(t, orch.SetReserveActive(ctx, "WETH", false))
	require.NoError(t, createReserves(ctx, orch, store, cat))

	reserves, err := store.ListReserves(ctx)
	require.NoError(t, err)
	require.Len(t, reserves, 2)
	assert.False(t, reserves[1].Active, "stored state wins over the catalogue")
}

func TestParseTolerance(t *testing.T) {
	v, err := parseTolerance("0.5")
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), v)

	_, err = parseTolerance("x")
	assert.Error(t, err)
}
