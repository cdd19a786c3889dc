package auction

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3keepers/auctionbot/internal/chain"
	"github.com/web3keepers/auctionbot/internal/model"
)

// Reader is the subset of chain reads the strategies need. Implemented by
// chain.Client; declared here so tests can substitute fakes.
type Reader interface {
	Kicks(ctx context.Context, house common.Address) (uint64, error)
	Beg(ctx context.Context, house common.Address) (*big.Int, error)
	Tau(ctx context.Context, house common.Address) (uint64, error)
	Era(ctx context.Context) (uint64, error)
	FlipBids(ctx context.Context, house common.Address, id uint64) (chain.FlipBid, error)
	FlapBids(ctx context.Context, house common.Address, id uint64) (chain.FlapBid, error)
	FlopBids(ctx context.Context, house common.Address, id uint64) (chain.FlopBid, error)
	ClipSale(ctx context.Context, house common.Address, id uint64) (chain.ClipSale, error)
	ClipGetStatus(ctx context.Context, house common.Address, id uint64) (chain.ClipStatus, error)
}

// BidPlan is a concrete, legal bid: the effective price it implies, the
// transaction that places it, and its cost in the round's bidding currency.
type BidPlan struct {
	Price decimal.Decimal
	Tx    chain.TxCandidate
	Cost  decimal.Decimal
}

// Strategy adapts one auction flavor to the control loop. One implementation
// is selected at startup; the loop never re-dispatches per call.
type Strategy interface {
	Kind() Kind
	House() common.Address

	// AuctionsStarted reads the house's kick counter.
	AuctionsStarted(ctx context.Context) (uint64, error)

	// GetInput reads and normalizes current auction state. Deleted
	// auctions come back with a zero deadline, never an error.
	GetInput(ctx context.Context, id uint64) (*Status, error)

	// Bid computes the best legal bid at the desired price, or nil when no
	// economically meaningful improving bid exists right now.
	Bid(ctx context.Context, id uint64, price decimal.Decimal) (*BidPlan, error)

	// Deal settles a finished auction for the winning bidder. Nil when the
	// flavor has no settlement step.
	Deal(id uint64) *chain.TxCandidate

	// Restart re-kicks an auction that expired with no bids. Nil when the
	// flavor cannot be restarted.
	Restart(id uint64) *chain.TxCandidate

	// ModelParameters is the identity key for the auction's model process.
	ModelParameters(id uint64) model.Parameters
}

// New selects the strategy implementation for a flavor.
func New(kind Kind, reader Reader, house common.Address, our common.Address) (Strategy, error) {
	switch kind {
	case KindFlip:
		return &FlipStrategy{reader: reader, house: house}, nil
	case KindFlap:
		return &FlapStrategy{reader: reader, house: house}, nil
	case KindFlop:
		return &FlopStrategy{reader: reader, house: house}, nil
	case KindClip:
		return &ClipStrategy{reader: reader, house: house, our: our}, nil
	default:
		return nil, fmt.Errorf("unknown auction type %q", kind)
	}
}
