package auction

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3keepers/auctionbot/internal/chain"
	"github.com/web3keepers/auctionbot/internal/units"
)

// fakeReader serves canned chain state to the strategies under test.
type fakeReader struct {
	kicks uint64
	beg   *big.Int
	tau   uint64
	era   uint64

	flip map[uint64]chain.FlipBid
	flap map[uint64]chain.FlapBid
	flop map[uint64]chain.FlopBid
	sale map[uint64]chain.ClipSale
	quo  map[uint64]chain.ClipStatus
}

func (r *fakeReader) Kicks(context.Context, common.Address) (uint64, error) { return r.kicks, nil }
func (r *fakeReader) Beg(context.Context, common.Address) (*big.Int, error) { return r.beg, nil }
func (r *fakeReader) Tau(context.Context, common.Address) (uint64, error)   { return r.tau, nil }
func (r *fakeReader) Era(context.Context) (uint64, error)                   { return r.era, nil }

func (r *fakeReader) FlipBids(_ context.Context, _ common.Address, id uint64) (chain.FlipBid, error) {
	return r.flip[id], nil
}

func (r *fakeReader) FlapBids(_ context.Context, _ common.Address, id uint64) (chain.FlapBid, error) {
	return r.flap[id], nil
}

func (r *fakeReader) FlopBids(_ context.Context, _ common.Address, id uint64) (chain.FlopBid, error) {
	return r.flop[id], nil
}

func (r *fakeReader) ClipSale(_ context.Context, _ common.Address, id uint64) (chain.ClipSale, error) {
	return r.sale[id], nil
}

func (r *fakeReader) ClipGetStatus(_ context.Context, _ common.Address, id uint64) (chain.ClipStatus, error) {
	return r.quo[id], nil
}

func wad(s string) *big.Int { return units.ToWad(decimal.RequireFromString(s)) }
func ray(s string) *big.Int { return units.ToRay(decimal.RequireFromString(s)) }
func rad(s string) *big.Int { return units.ToRad(decimal.RequireFromString(s)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	testHouse  = common.HexToAddress("0xd8515c1e9b2f93858bf0e5409cd08c2ca7342b9f")
	testBidder = common.HexToAddress("0x1926ad8d2fc92ecd89a1f11dd428c4746f9e4e33")
)

func newFlip(r *fakeReader) *FlipStrategy {
	return &FlipStrategy{reader: r, house: testHouse}
}

func TestFlipFirstBid(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		flip: map[uint64]chain.FlipBid{
			1: {Bid: rad("0"), Lot: wad("1.2"), Tab: rad("100"), End: 2000},
		},
	}

	plan, err := newFlip(r).Bid(context.Background(), 1, dec("20"))
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, dec("24").Equal(plan.Cost), "cost %s", plan.Cost)
	assert.True(t, dec("20").Equal(plan.Price), "price %s", plan.Price)
	assert.Equal(t, testHouse, plan.Tx.To)
	assert.Equal(t, chain.Selector("tend(uint256,uint256,uint256)"), plan.Tx.Data[:4])
	assert.Len(t, plan.Tx.Data, 4+3*32)
}

func TestFlipIncrementEnforced(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		flip: map[uint64]chain.FlipBid{
			1: {Bid: rad("24"), Lot: wad("1.2"), Tab: rad("100"), End: 2000},
		},
	}
	s := newFlip(r)

	// 20.5 * 1.2 = 24.6 < 24 * 1.05 = 25.2: below the minimum increment.
	plan, err := s.Bid(context.Background(), 1, dec("20.5"))
	require.NoError(t, err)
	assert.Nil(t, plan)

	// 21 * 1.2 = 25.2 meets it exactly.
	plan, err = s.Bid(context.Background(), 1, dec("21"))
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, dec("25.2").Equal(plan.Cost))
}

func TestFlipNoOpBidSuppressed(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		flip: map[uint64]chain.FlipBid{
			1: {Bid: rad("24"), Lot: wad("1.2"), Tab: rad("100"), End: 2000},
		},
	}

	// Same effective bid as already on-chain: never re-sent.
	plan, err := newFlip(r).Bid(context.Background(), 1, dec("20"))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestFlipBidClampedToTab(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		flip: map[uint64]chain.FlipBid{
			// beg would demand 99 * 1.05 = 103.95, above tab. The ceiling
			// bid is still legal.
			1: {Bid: rad("99"), Lot: wad("1.2"), Tab: rad("100"), End: 2000},
		},
	}

	plan, err := newFlip(r).Bid(context.Background(), 1, dec("500"))
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, dec("100").Equal(plan.Cost), "cost %s", plan.Cost)
}

func TestFlipLotShrinkingPhase(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		flip: map[uint64]chain.FlipBid{
			1: {Bid: rad("100"), Lot: wad("1.2"), Tab: rad("100"), End: 2000},
		},
	}
	s := newFlip(r)

	// ourLot = 100/100 = 1.0; 1.0 * 1.05 = 1.05 <= 1.2 so the decrease is
	// large enough.
	plan, err := s.Bid(context.Background(), 1, dec("100"))
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, dec("100").Equal(plan.Cost))
	assert.True(t, dec("100").Equal(plan.Price))
	assert.Equal(t, chain.Selector("dent(uint256,uint256,uint256)"), plan.Tx.Data[:4])

	// ourLot = 100/85 ~ 1.176; * 1.05 > 1.2: insufficient decrease.
	plan, err = s.Bid(context.Background(), 1, dec("85"))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestFlipDeletedAuction(t *testing.T) {
	r := &fakeReader{beg: wad("1.05"), flip: map[uint64]chain.FlipBid{}}

	plan, err := newFlip(r).Bid(context.Background(), 7, dec("20"))
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestFlipGetInput(t *testing.T) {
	r := &fakeReader{
		beg: wad("1.05"),
		era: 1700000000,
		flip: map[uint64]chain.FlipBid{
			3: {Bid: rad("24"), Lot: wad("1.2"), Tab: rad("100"), Guy: testBidder, Tic: 1700000100, End: 1700003600},
		},
	}

	st, err := newFlip(r).GetInput(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.ID)
	require.NotNil(t, st.Flipper)
	assert.Equal(t, testHouse, *st.Flipper)
	assert.True(t, dec("24").Equal(st.Bid))
	assert.True(t, dec("1.2").Equal(st.Lot))
	require.NotNil(t, st.Tab)
	assert.True(t, dec("100").Equal(*st.Tab))
	require.NotNil(t, st.Price)
	assert.True(t, dec("20").Equal(*st.Price))
	assert.False(t, st.Deleted())
	assert.False(t, st.Expired())
}
