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

// FlipStrategy works English collateral auctions: bids ascend in stablecoin
// until they reach the amount owed (tab), then the auction flips into its
// lot-shrinking phase where bidders accept less collateral for exactly tab.
type FlipStrategy struct {
	reader Reader
	house  common.Address
}

func (s *FlipStrategy) Kind() Kind            { return KindFlip }
func (s *FlipStrategy) House() common.Address { return s.house }

func (s *FlipStrategy) AuctionsStarted(ctx context.Context) (uint64, error) {
	return s.reader.Kicks(ctx, s.house)
}

func (s *FlipStrategy) ModelParameters(id uint64) model.Parameters {
	house := s.house
	return model.Parameters{Flipper: &house, ID: id}
}

func (s *FlipStrategy) GetInput(ctx context.Context, id uint64) (*Status, error) {
	b, err := s.reader.FlipBids(ctx, s.house, id)
	if err != nil {
		return nil, err
	}
	era, err := s.reader.Era(ctx)
	if err != nil {
		return nil, err
	}
	begRaw, err := s.reader.Beg(ctx, s.house)
	if err != nil {
		return nil, err
	}

	house := s.house
	bid := units.FromRad(b.Bid)
	lot := units.FromWad(b.Lot)
	tab := units.FromRad(b.Tab)
	st := &Status{
		ID:      id,
		Flipper: &house,
		Bid:     bid,
		Lot:     lot,
		Tab:     &tab,
		Beg:     units.FromWad(begRaw),
		Guy:     b.Guy,
		Era:     era,
		Tic:     b.Tic,
		End:     b.End,
	}
	// Current effective price: stablecoin committed per unit of collateral.
	if lot.IsPositive() && bid.IsPositive() {
		price := bid.Div(lot)
		st.Price = &price
	}
	return st, nil
}

// Bid computes the best bid at the desired price. In the ascending phase the
// candidate bid is price*lot, clamped to tab; clamping to exactly tab is the
// phase transition into lot-shrinking. In the lot-shrinking phase the
// candidate lot is tab/price. Candidates that fail the minimum increment or
// round to the current on-chain state return nil.
func (s *FlipStrategy) Bid(ctx context.Context, id uint64, price decimal.Decimal) (*BidPlan, error) {
	if !price.IsPositive() {
		return nil, nil
	}
	b, err := s.reader.FlipBids(ctx, s.house, id)
	if err != nil {
		return nil, err
	}
	if b.End == 0 || b.Lot.Sign() == 0 {
		return nil, nil
	}
	begRaw, err := s.reader.Beg(ctx, s.house)
	if err != nil {
		return nil, err
	}

	bid := units.FromRad(b.Bid)
	lot := units.FromWad(b.Lot)
	tab := units.FromRad(b.Tab)
	beg := units.FromWad(begRaw)

	if bid.Equal(tab) {
		// Lot-shrinking phase: offer to take less collateral for tab.
		ourLot := tab.Div(price)
		if units.WadEqual(ourLot, lot) || ourLot.GreaterThanOrEqual(lot) {
			return nil, nil
		}
		if ourLot.Mul(beg).GreaterThan(lot) {
			return nil, nil
		}
		return &BidPlan{
			Price: tab.Div(ourLot),
			Tx: chain.TxCandidate{
				To:    s.house,
				Data:  packDent(id, units.ToWad(ourLot), b.Tab),
				Label: fmt.Sprintf("flip.dent(%d)", id),
			},
			Cost: tab,
		}, nil
	}

	// Ascending phase: bid price*lot, hard-capped at tab.
	ourBid := price.Mul(lot)
	if ourBid.GreaterThanOrEqual(tab) {
		ourBid = tab
	}
	if units.RadEqual(ourBid, bid) || ourBid.LessThanOrEqual(bid) {
		return nil, nil
	}
	// The increment rule never blocks a bid of exactly tab.
	if !ourBid.Equal(tab) && ourBid.LessThan(bid.Mul(beg)) {
		return nil, nil
	}
	return &BidPlan{
		Price: ourBid.Div(lot),
		Tx: chain.TxCandidate{
			To:    s.house,
			Data:  packTend(id, b.Lot, units.ToRad(ourBid)),
			Label: fmt.Sprintf("flip.tend(%d)", id),
		},
		Cost: ourBid,
	}, nil
}

func (s *FlipStrategy) Deal(id uint64) *chain.TxCandidate {
	return &chain.TxCandidate{
		To:    s.house,
		Data:  packID("deal(uint256)", id),
		Label: fmt.Sprintf("flip.deal(%d)", id),
	}
}

func (s *FlipStrategy) Restart(id uint64) *chain.TxCandidate {
	return &chain.TxCandidate{
		To:    s.house,
		Data:  packID("tick(uint256)", id),
		Label: fmt.Sprintf("flip.tick(%d)", id),
	}
}

func packID(sig string, id uint64) []byte {
	return chain.PackUint(chain.Selector(sig), new(big.Int).SetUint64(id))
}

func packTend(id uint64, lot, bid *big.Int) []byte {
	data := chain.PackUint(chain.Selector("tend(uint256,uint256,uint256)"), new(big.Int).SetUint64(id))
	data = chain.PackUint(data, lot)
	return chain.PackUint(data, bid)
}

func packDent(id uint64, lot, bid *big.Int) []byte {
	data := chain.PackUint(chain.Selector("dent(uint256,uint256,uint256)"), new(big.Int).SetUint64(id))
	data = chain.PackUint(data, lot)
	return chain.PackUint(data, bid)
}
