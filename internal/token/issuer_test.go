package token_test

import (
	"LendingAggregator/internal/poolerr"
	"LendingAggregator/internal/token"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var holder = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

func TestMemoryIssuer_MintBurn(t *testing.T) {
	ctx := context.Background()
	iss := token.NewMemoryIssuer()

	require.NoError(t, iss.Mint(ctx, "aggUSDC", holder, 100))
	require.NoError(t, iss.Burn(ctx, "aggUSDC", holder, 40))
	assert.Equal(t, int64(60), iss.BalanceOf("aggUSDC", holder))
	assert.Equal(t, int64(60), iss.TotalSupply("aggUSDC"))

	err := iss.Burn(ctx, "aggUSDC", holder, 61)
	assert.ErrorIs(t, err, poolerr.ErrTokenIssuer)
	assert.Equal(t, int64(60), iss.BalanceOf("aggUSDC", holder))
}

func TestMemoryIssuer_FailWith(t *testing.T) {
	iss := token.NewMemoryIssuer()
	iss.FailWith(errors.New("issuer offline"))

	err := iss.Mint(context.Background(), "aggUSDC", holder, 1)
	assert.ErrorIs(t, err, poolerr.ErrTokenIssuer)
	assert.Zero(t, iss.TotalSupply("aggUSDC"))
}
