// Package auction normalizes on-chain auction state and computes legal bids
// for each auction flavor: English collateral (flip), surplus (flap), debt
// (flop), and fixed-discount partial-fill (clip).
package auction

import (
	"encoding/json"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Kind selects the auction flavor the keeper works, fixed at startup.
type Kind string

const (
	KindFlip Kind = "flip"
	KindFlap Kind = "flap"
	KindFlop Kind = "flop"
	KindClip Kind = "clip"
)

// Status is an immutable snapshot of one auction, produced fresh on every
// poll and handed to the pricing model exactly once. End == 0 marks an
// auction that no longer exists on-chain.
type Status struct {
	ID uint64

	Flipper *common.Address
	Flapper *common.Address
	Flopper *common.Address
	Clipper *common.Address

	Bid   decimal.Decimal
	Lot   decimal.Decimal
	Tab   *decimal.Decimal
	Beg   decimal.Decimal
	Guy   common.Address
	Era   uint64
	Tic   uint64
	End   uint64
	Price *decimal.Decimal
}

// Deleted reports whether the auction has been removed on-chain.
func (s *Status) Deleted() bool { return s.End == 0 }

// Expired reports whether bidding has closed, either because the last bid's
// expiry passed or the auction deadline did.
func (s *Status) Expired() bool {
	if s.Deleted() {
		return false
	}
	return (s.Tic != 0 && s.Era > s.Tic) || s.Era > s.End
}

// statusWire is the outbound line-protocol form. Fixed-point amounts travel
// as decimal strings; optional fields are omitted when absent.
type statusWire struct {
	ID      string  `json:"id"`
	Flipper string  `json:"flipper,omitempty"`
	Flapper string  `json:"flapper,omitempty"`
	Flopper string  `json:"flopper,omitempty"`
	Clipper string  `json:"clipper,omitempty"`
	Bid     string  `json:"bid"`
	Lot     string  `json:"lot"`
	Tab     string  `json:"tab,omitempty"`
	Beg     string  `json:"beg"`
	Guy     string  `json:"guy"`
	Era     uint64  `json:"era"`
	Tic     uint64  `json:"tic"`
	End     uint64  `json:"end"`
	Price   *string `json:"price"`
}

func (s *Status) MarshalJSON() ([]byte, error) {
	wire := statusWire{
		ID:  strconv.FormatUint(s.ID, 10),
		Bid: s.Bid.String(),
		Lot: s.Lot.String(),
		Beg: s.Beg.String(),
		Guy: s.Guy.Hex(),
		Era: s.Era,
		Tic: s.Tic,
		End: s.End,
	}
	if s.Flipper != nil {
		wire.Flipper = s.Flipper.Hex()
	}
	if s.Flapper != nil {
		wire.Flapper = s.Flapper.Hex()
	}
	if s.Flopper != nil {
		wire.Flopper = s.Flopper.Hex()
	}
	if s.Clipper != nil {
		wire.Clipper = s.Clipper.Hex()
	}
	if s.Tab != nil {
		wire.Tab = s.Tab.String()
	}
	if s.Price != nil {
		str := s.Price.String()
		wire.Price = &str
	}
	return json.Marshal(wire)
}
