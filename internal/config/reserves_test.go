package config_test

import (
	"LendingAggregator/internal/config"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogue = `
reserves:
  - asset: usdc
    loan_to_value: "0.75"
    liquidation_threshold: "0.8"
    liquidation_bonus: "0.05"
    providers:
      - id: p1
        liquidity_rate: "0.03"
        borrow_rate: "0.05"
        liquidity: "1000"
      - id: p2
        kind: nats
  - asset: WETH
    symbol: Wrapped Ether
    token_id: aWETH
    loan_to_value: "0.8"
    liquidation_threshold: "0.85"
    active: false
prices:
  usdc: "1"
  WETH: "3000.5"
`

func writeCatalogue(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reserves.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCatalogue(t *testing.T) {
	cat, err := config.LoadCatalogue(writeCatalogue(t, catalogue))
	require.NoError(t, err)
	require.Len(t, cat.Reserves, 2)

	usdc := cat.Reserves[0]
	assert.Equal(t, "USDC", usdc.Asset)
	assert.Equal(t, "USDC", usdc.Symbol)
	assert.Equal(t, "aggUSDC", usdc.TokenID)

	r, err := usdc.Reserve()
	require.NoError(t, err)
	assert.Equal(t, int64(750_000), r.LoanToValue)
	assert.Equal(t, int64(800_000), r.LiquidationThreshold)
	assert.Equal(t, int64(50_000), r.LiquidationBonus)
	assert.True(t, r.Active)

	require.Len(t, usdc.Providers, 2)
	assert.Equal(t, config.ProviderMemory, usdc.Providers[0].Kind)
	rates, err := usdc.Providers[0].Rates()
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), rates.LiquidityRate)
	assert.Equal(t, int64(5_000_000), rates.BorrowRate)
	assert.Equal(t, int64(1_000_000_000), rates.AvailableLiquidity)
	assert.Equal(t, "lagg.providers.p2", usdc.Providers[1].SubjectPrefix)

	weth, err := cat.Reserves[1].Reserve()
	require.NoError(t, err)
	assert.False(t, weth.Active)
	assert.Equal(t, "aWETH", weth.TokenID)
	assert.Equal(t, int64(0), weth.LiquidationBonus)

	prices, err := cat.PriceTable()
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), prices["USDC"])
	assert.Equal(t, int64(300_050_000_000), prices["WETH"])
}

func TestLoadCatalogue_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "reserves: []\n"},
		{"unknown field", "reserves:\n  - asset: USDC\n    loan_to_value: \"0.5\"\n    liquidation_threshold: \"0.6\"\n    colour: red\n"},
		{"ltv above threshold", "reserves:\n  - asset: USDC\n    loan_to_value: \"0.9\"\n    liquidation_threshold: \"0.8\"\n"},
		{"missing ltv", "reserves:\n  - asset: USDC\n    liquidation_threshold: \"0.8\"\n"},
		{"duplicate asset", "reserves:\n  - asset: USDC\n    loan_to_value: \"0.5\"\n    liquidation_threshold: \"0.6\"\n  - asset: usdc\n    loan_to_value: \"0.5\"\n    liquidation_threshold: \"0.6\"\n"},
		{"duplicate provider", "reserves:\n  - asset: USDC\n    loan_to_value: \"0.5\"\n    liquidation_threshold: \"0.6\"\n    providers:\n      - id: p1\n      - id: p1\n"},
		{"bad provider kind", "reserves:\n  - asset: USDC\n    loan_to_value: \"0.5\"\n    liquidation_threshold: \"0.6\"\n    providers:\n      - id: p1\n        kind: grpc\n"},
		{"negative price", "reserves:\n  - asset: USDC\n    loan_to_value: \"0.5\"\n    liquidation_threshold: \"0.6\"\nprices:\n  USDC: \"-1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadCatalogue(writeCatalogue(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogue_MissingFile(t *testing.T) {
	_, err := config.LoadCatalogue(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = config.LoadCatalogue("")
	assert.Error(t, err)
}
