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

// FlapStrategy works surplus auctions: a fixed lot of surplus stablecoin is
// sold for ascending bids of protocol token. The model's price is stablecoin
// per protocol token, so a higher price means bidding fewer tokens.
type FlapStrategy struct {
	reader Reader
	house  common.Address
}

func (s *FlapStrategy) Kind() Kind            { return KindFlap }
func (s *FlapStrategy) House() common.Address { return s.house }

func (s *FlapStrategy) AuctionsStarted(ctx context.Context) (uint64, error) {
	return s.reader.Kicks(ctx, s.house)
}

func (s *FlapStrategy) ModelParameters(id uint64) model.Parameters {
	house := s.house
	return model.Parameters{Flapper: &house, ID: id}
}

func (s *FlapStrategy) GetInput(ctx context.Context, id uint64) (*Status, error) {
	b, err := s.reader.FlapBids(ctx, s.house, id)
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
	bid := units.FromWad(b.Bid)
	lot := units.FromRad(b.Lot)
	st := &Status{
		ID:      id,
		Flapper: &house,
		Bid:     bid,
		Lot:     lot,
		Beg:     units.FromWad(begRaw),
		Guy:     b.Guy,
		Era:     era,
		Tic:     b.Tic,
		End:     b.End,
	}
	if bid.IsPositive() {
		price := lot.Div(bid)
		st.Price = &price
	}
	return st, nil
}

func (s *FlapStrategy) Bid(ctx context.Context, id uint64, price decimal.Decimal) (*BidPlan, error) {
	if !price.IsPositive() {
		return nil, nil
	}
	b, err := s.reader.FlapBids(ctx, s.house, id)
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

	bid := units.FromWad(b.Bid)
	lot := units.FromRad(b.Lot)
	beg := units.FromWad(begRaw)

	ourBid := lot.Div(price)
	if units.WadEqual(ourBid, bid) || ourBid.LessThanOrEqual(bid) {
		return nil, nil
	}
	if bid.IsPositive() && ourBid.LessThan(bid.Mul(beg)) {
		return nil, nil
	}
	return &BidPlan{
		Price: lot.Div(ourBid),
		Tx: chain.TxCandidate{
			To:    s.house,
			Data:  packTend(id, b.Lot, units.ToWad(ourBid)),
			Label: fmt.Sprintf("flap.tend(%d)", id),
		},
		Cost: ourBid,
	}, nil
}

func (s *FlapStrategy) Deal(id uint64) *chain.TxCandidate {
	return &chain.TxCandidate{
		To:    s.house,
		Data:  packID("deal(uint256)", id),
		Label: fmt.Sprintf("flap.deal(%d)", id),
	}
}

func (s *FlapStrategy) Restart(id uint64) *chain.TxCandidate {
	return &chain.TxCandidate{
		To:    s.house,
		Data:  packID("tick(uint256)", id),
		Label: fmt.Sprintf("flap.tick(%d)", id),
	}
}
