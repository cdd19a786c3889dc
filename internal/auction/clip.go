package auction

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3keepers/auctionbot/internal/chain"
	"github.com/web3keepers/auctionbot/internal/model"
	"github.com/web3keepers/auctionbot/internal/units"
)

// ClipStrategy works fixed-discount partial-fill auctions: the house quotes
// a continuously descending price and any taker can buy part of the lot at
// that price, up to the remaining amount to raise. There is no ascending
// bid, no increment rule, and no settlement step; each take is final.
type ClipStrategy struct {
	reader Reader
	house  common.Address
	our    common.Address
}

func (s *ClipStrategy) Kind() Kind            { return KindClip }
func (s *ClipStrategy) House() common.Address { return s.house }

func (s *ClipStrategy) AuctionsStarted(ctx context.Context) (uint64, error) {
	return s.reader.Kicks(ctx, s.house)
}

func (s *ClipStrategy) ModelParameters(id uint64) model.Parameters {
	house := s.house
	return model.Parameters{Clipper: &house, ID: id}
}

func (s *ClipStrategy) GetInput(ctx context.Context, id uint64) (*Status, error) {
	sale, err := s.reader.ClipSale(ctx, s.house, id)
	if err != nil {
		return nil, err
	}
	era, err := s.reader.Era(ctx)
	if err != nil {
		return nil, err
	}

	house := s.house
	lot := units.FromWad(sale.Lot)
	tab := units.FromRad(sale.Tab)
	// Descending auctions have no bid expiry, so Tic stays zero.
	st := &Status{
		ID:      id,
		Clipper: &house,
		Lot:     lot,
		Beg:     decimal.NewFromInt(1),
		Era:     era,
	}
	if lot.IsZero() && tab.IsZero() {
		// Fully taken or yanked: zero deadline is the deletion sentinel.
		return st, nil
	}
	st.Tab = &tab

	tau, err := s.reader.Tau(ctx, s.house)
	if err != nil {
		return nil, err
	}
	st.End = sale.Tic + tau

	quote, err := s.reader.ClipGetStatus(ctx, s.house, id)
	if err != nil {
		return nil, err
	}
	// The house's needsRedo flag is the word on expiry; the reported
	// deadline must agree with it either way.
	if quote.NeedsRedo {
		if st.End >= era && era > 0 {
			st.End = era - 1
		}
	} else if st.End <= era {
		st.End = era + 1
	}
	if quote.Price != nil && quote.Price.Sign() > 0 {
		price := units.FromRay(quote.Price)
		st.Price = &price
	}
	return st, nil
}

// Bid takes collateral whenever the house's current quote is at or below
// the model's price: buy as much of the lot as the remaining tab allows at
// the quoted price. The quoted price is passed as the take ceiling so a
// price move between read and mine reverts instead of overpaying.
func (s *ClipStrategy) Bid(ctx context.Context, id uint64, price decimal.Decimal) (*BidPlan, error) {
	if !price.IsPositive() {
		return nil, nil
	}
	quote, err := s.reader.ClipGetStatus(ctx, s.house, id)
	if err != nil {
		return nil, err
	}
	lot := units.FromWad(quote.Lot)
	tab := units.FromRad(quote.Tab)
	curPrice := units.FromRay(quote.Price)
	if quote.NeedsRedo || !lot.IsPositive() || !curPrice.IsPositive() {
		return nil, nil
	}
	if curPrice.GreaterThan(price) {
		return nil, nil
	}
	amt := lot
	if affordable := tab.Div(curPrice); affordable.LessThan(amt) {
		amt = affordable
	}
	if !amt.IsPositive() {
		return nil, nil
	}

	return &BidPlan{
		Price: curPrice,
		Tx: chain.TxCandidate{
			To:    s.house,
			Data:  packTake(id, units.ToWad(amt), quote.Price, s.our),
			Label: fmt.Sprintf("clip.take(%d)", id),
		},
		Cost: amt.Mul(curPrice),
	}, nil
}

// Deal returns nil: takes settle themselves.
func (s *ClipStrategy) Deal(uint64) *chain.TxCandidate { return nil }

func (s *ClipStrategy) Restart(id uint64) *chain.TxCandidate {
	data := chain.PackUint(chain.Selector("redo(uint256,address)"), new(big.Int).SetUint64(id))
	data = chain.PackAddress(data, s.our)
	return &chain.TxCandidate{
		To:    s.house,
		Data:  data,
		Label: fmt.Sprintf("clip.redo(%d)", id),
	}
}

func packTake(id uint64, amt, max *big.Int, who common.Address) []byte {
	// take(uint256 id, uint256 amt, uint256 max, address who, bytes data)
	data := chain.PackUint(chain.Selector("take(uint256,uint256,uint256,address,bytes)"), new(big.Int).SetUint64(id))
	data = chain.PackUint(data, amt)
	data = chain.PackUint(data, max)
	data = chain.PackAddress(data, who)
	// Empty bytes argument: offset to the tail, then zero length.
	data = chain.PackUint(data, big.NewInt(160))
	data = chain.PackUint(data, big.NewInt(0))
	return data
}
