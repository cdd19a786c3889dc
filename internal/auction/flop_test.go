package auction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3keepers/auctionbot/internal/chain"
)

func newFlop(r *fakeReader) *FlopStrategy {
	return &FlopStrategy{reader: r, house: testHouse}
}

func TestFlopBidShrinksLot(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		flop: map[uint64]chain.FlopBid{
			// 50000 stablecoin buys up to 300 freshly minted tokens.
			1: {Bid: rad("50000"), Lot: wad("300"), End: 2000},
		},
	}

	// Model accepts 200 stablecoin per token: take 250 tokens for the bid.
	plan, err := newFlop(r).Bid(context.Background(), 1, dec("200"))
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, dec("50000").Equal(plan.Cost))
	assert.True(t, dec("200").Equal(plan.Price))
	assert.Equal(t, chain.Selector("dent(uint256,uint256,uint256)"), plan.Tx.Data[:4])
}

func TestFlopInsufficientDecrease(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		flop: map[uint64]chain.FlopBid{
			1: {Bid: rad("50000"), Lot: wad("300"), End: 2000},
		},
	}

	// ourLot = 50000/172 ~ 290.7; * 1.05 > 300: not enough of a decrease.
	plan, err := newFlop(r).Bid(context.Background(), 1, dec("172"))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestFlopLargerLotSuppressed(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		flop: map[uint64]chain.FlopBid{
			1: {Bid: rad("50000"), Lot: wad("300"), End: 2000},
		},
	}

	// A price below the current effective price would ask for more tokens
	// than the auction currently offers.
	plan, err := newFlop(r).Bid(context.Background(), 1, dec("150"))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestFlopGetInput(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		era: 1000,
		flop: map[uint64]chain.FlopBid{
			4: {Bid: rad("50000"), Lot: wad("250"), Guy: testBidder, Tic: 1200, End: 5000},
		},
	}

	st, err := newFlop(r).GetInput(context.Background(), 4)
	require.NoError(t, err)
	require.NotNil(t, st.Flopper)
	require.NotNil(t, st.Price)
	assert.True(t, dec("200").Equal(*st.Price))
}
