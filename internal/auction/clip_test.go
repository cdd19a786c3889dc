package auction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3keepers/auctionbot/internal/chain"
)

func newClip(r *fakeReader) *ClipStrategy {
	return &ClipStrategy{reader: r, house: testHouse, our: testBidder}
}

func TestClipTakeWholeLot(t *testing.T) {
	r := &fakeReader{
		quo: map[uint64]chain.ClipStatus{
			// 2 units of collateral at 140, well under the 1000 owed.
			1: {Price: ray("140"), Lot: wad("2"), Tab: rad("1000")},
		},
	}

	plan, err := newClip(r).Bid(context.Background(), 1, dec("150"))
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, dec("140").Equal(plan.Price))
	assert.True(t, dec("280").Equal(plan.Cost))
	assert.Equal(t, chain.Selector("take(uint256,uint256,uint256,address,bytes)"), plan.Tx.Data[:4])
	assert.Len(t, plan.Tx.Data, 4+6*32)
}

func TestClipTakeCappedByTab(t *testing.T) {
	r := &fakeReader{
		quo: map[uint64]chain.ClipStatus{
			// Only 700 still owed: at 140 that affords 5 of the 10 units.
			1: {Price: ray("140"), Lot: wad("10"), Tab: rad("700")},
		},
	}

	plan, err := newClip(r).Bid(context.Background(), 1, dec("150"))
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, dec("700").Equal(plan.Cost), "cost %s", plan.Cost)
}

func TestClipWaitsForPriceToDescend(t *testing.T) {
	r := &fakeReader{
		quo: map[uint64]chain.ClipStatus{
			1: {Price: ray("160"), Lot: wad("2"), Tab: rad("1000")},
		},
	}

	plan, err := newClip(r).Bid(context.Background(), 1, dec("150"))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestClipNeedsRedoBlocksTake(t *testing.T) {
	r := &fakeReader{
		quo: map[uint64]chain.ClipStatus{
			1: {NeedsRedo: true, Price: ray("140"), Lot: wad("2"), Tab: rad("1000")},
		},
	}

	plan, err := newClip(r).Bid(context.Background(), 1, dec("150"))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestClipGetInputDeletionSentinel(t *testing.T) {
	r := &fakeReader{
		era:  1000,
		sale: map[uint64]chain.ClipSale{},
		quo:  map[uint64]chain.ClipStatus{},
	}

	st, err := newClip(r).GetInput(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, st.Deleted())
}

func TestClipGetInputLiveSale(t *testing.T) {
	// Kicked in the recent past, price still descending: the sale must not
	// read as expired even though its kick time is behind the clock.
	r := &fakeReader{
		era: 1000,
		tau: 3600,
		sale: map[uint64]chain.ClipSale{
			2: {Lot: wad("2"), Tab: rad("1000"), Tic: 900},
		},
		quo: map[uint64]chain.ClipStatus{
			2: {Price: ray("140"), Lot: wad("2"), Tab: rad("1000")},
		},
	}

	st, err := newClip(r).GetInput(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, st.Deleted())
	assert.False(t, st.Expired())
	assert.Equal(t, uint64(0), st.Tic)
	assert.Equal(t, uint64(4500), st.End)
	require.NotNil(t, st.Price)
	assert.True(t, dec("140").Equal(*st.Price))
}

func TestClipGetInputNeedsRedo(t *testing.T) {
	r := &fakeReader{
		era: 5000,
		tau: 3600,
		sale: map[uint64]chain.ClipSale{
			2: {Lot: wad("2"), Tab: rad("1000"), Tic: 1000},
		},
		quo: map[uint64]chain.ClipStatus{
			2: {NeedsRedo: true, Price: ray("140"), Lot: wad("2"), Tab: rad("1000")},
		},
	}

	st, err := newClip(r).GetInput(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, st.Deleted())
	assert.True(t, st.Expired())
	assert.Equal(t, uint64(0), st.Tic)
	require.NotNil(t, st.Price)
	assert.True(t, dec("140").Equal(*st.Price))
}

func TestClipLateSaleStillLiveUntilRedo(t *testing.T) {
	// Kick time plus duration already behind the clock, but the house has
	// not flagged a redo: the sale stays live.
	r := &fakeReader{
		era: 9000,
		tau: 3600,
		sale: map[uint64]chain.ClipSale{
			2: {Lot: wad("2"), Tab: rad("1000"), Tic: 1000},
		},
		quo: map[uint64]chain.ClipStatus{
			2: {Price: ray("140"), Lot: wad("2"), Tab: rad("1000")},
		},
	}

	st, err := newClip(r).GetInput(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, st.Expired())
}

func TestClipHasNoSettlementStep(t *testing.T) {
	assert.Nil(t, newClip(&fakeReader{}).Deal(1))
	assert.NotNil(t, newClip(&fakeReader{}).Restart(1))
}
