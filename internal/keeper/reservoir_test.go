package keeper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservoirCommitsWithinLevel(t *testing.T) {
	r := NewReservoir(decimal.NewFromInt(100), nil)

	assert.True(t, r.CheckBidCost(context.Background(), 1, decimal.NewFromInt(60)))
	assert.True(t, r.CheckBidCost(context.Background(), 2, decimal.NewFromInt(40)))
	assert.False(t, r.CheckBidCost(context.Background(), 3, decimal.NewFromInt(1)))
}

func TestReservoirSingleTopUpRetry(t *testing.T) {
	calls := 0
	topUp := func(context.Context) (decimal.Decimal, bool) {
		calls++
		return decimal.NewFromInt(150), true
	}
	r := NewReservoir(decimal.NewFromInt(100), topUp)

	// Fits outright: no top-up.
	require.True(t, r.CheckBidCost(context.Background(), 1, decimal.NewFromInt(100)))
	assert.Equal(t, 0, calls)

	// Shortfall, but the topped-up level covers it.
	require.True(t, r.CheckBidCost(context.Background(), 2, decimal.NewFromInt(50)))
	assert.Equal(t, 1, calls)

	// Shortfall the top-up cannot cover: exactly one more attempt, then a
	// refusal without error.
	require.False(t, r.CheckBidCost(context.Background(), 3, decimal.NewFromInt(500)))
	assert.Equal(t, 2, calls)
}

func TestReservoirFailedTopUp(t *testing.T) {
	topUp := func(context.Context) (decimal.Decimal, bool) {
		return decimal.Zero, false
	}
	r := NewReservoir(decimal.NewFromInt(10), topUp)

	assert.False(t, r.CheckBidCost(context.Background(), 1, decimal.NewFromInt(20)))
}
