package auction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3keepers/auctionbot/internal/chain"
	"github.com/web3keepers/auctionbot/internal/model"
	"github.com/web3keepers/auctionbot/internal/units"
)

// FlopStrategy works debt auctions: a fixed stablecoin bid buys a shrinking
// lot of freshly minted protocol token. The model's price is stablecoin per
// protocol token, so a higher price means accepting a smaller lot.
type FlopStrategy struct {
	reader Reader
	house  common.Address
}

func (s *FlopStrategy) Kind() Kind            { return KindFlop }
func (s *FlopStrategy) House() common.Address { return s.house }

func (s *FlopStrategy) AuctionsStarted(ctx context.Context) (uint64, error) {
	return s.reader.Kicks(ctx, s.house)
}

func (s *FlopStrategy) ModelParameters(id uint64) model.Parameters {
	house := s.house
	return model.Parameters{Flopper: &house, ID: id}
}

func (s *FlopStrategy) GetInput(ctx context.Context, id uint64) (*Status, error) {
	b, err := s.reader.FlopBids(ctx, s.house, id)
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
	st := &Status{
		ID:      id,
		Flopper: &house,
		Bid:     bid,
		Lot:     lot,
		Beg:     units.FromWad(begRaw),
		Guy:     b.Guy,
		Era:     era,
		Tic:     b.Tic,
		End:     b.End,
	}
	if lot.IsPositive() {
		price := bid.Div(lot)
		st.Price = &price
	}
	return st, nil
}

func (s *FlopStrategy) Bid(ctx context.Context, id uint64, price decimal.Decimal) (*BidPlan, error) {
	if !price.IsPositive() {
		return nil, nil
	}
	b, err := s.reader.FlopBids(ctx, s.house, id)
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
	beg := units.FromWad(begRaw)

	ourLot := bid.Div(price)
	if units.WadEqual(ourLot, lot) || ourLot.GreaterThanOrEqual(lot) {
		return nil, nil
	}
	if ourLot.Mul(beg).GreaterThan(lot) {
		return nil, nil
	}
	return &BidPlan{
		Price: bid.Div(ourLot),
		Tx: chain.TxCandidate{
			To:    s.house,
			Data:  packDent(id, units.ToWad(ourLot), b.Bid),
			Label: fmt.Sprintf("flop.dent(%d)", id),
		},
		Cost: bid,
	}, nil
}

func (s *FlopStrategy) Deal(id uint64) *chain.TxCandidate {
	return &chain.TxCandidate{
		To:    s.house,
		Data:  packID("deal(uint256)", id),
		Label: fmt.Sprintf("flop.deal(%d)", id),
	}
}

func (s *FlopStrategy) Restart(id uint64) *chain.TxCandidate {
	return &chain.TxCandidate{
		To:    s.house,
		Data:  packID("tick(uint256)", id),
		Label: fmt.Sprintf("flop.tick(%d)", id),
	}
}
