package keeper

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Reservoir bounds cumulative bid spend for one check-for-bids round. It is
// rebuilt fresh each round from the keeper's current internal ledger
// balance, which trades perfect accounting of not-yet-mined bids for
// statelessness: a crashed keeper loses nothing.
type Reservoir struct {
	level decimal.Decimal
	spent decimal.Decimal
	topUp func(ctx context.Context) (decimal.Decimal, bool)
}

// NewReservoir seeds a round's reservoir. topUp, when non-nil, attempts one
// synchronous rebalance and returns the refreshed ledger level.
func NewReservoir(level decimal.Decimal, topUp func(ctx context.Context) (decimal.Decimal, bool)) *Reservoir {
	return &Reservoir{level: level, topUp: topUp}
}

// CheckBidCost reports whether this round can still afford a bid of the
// given cost, committing it when it fits. On a shortfall it attempts at
// most one top-up and one re-check; an insufficient balance after that is a
// warning, never an error.
func (r *Reservoir) CheckBidCost(ctx context.Context, id uint64, cost decimal.Decimal) bool {
	if r.spent.Add(cost).LessThanOrEqual(r.level) {
		r.spent = r.spent.Add(cost)
		return true
	}

	if r.topUp != nil {
		if refreshed, ok := r.topUp(ctx); ok {
			r.level = refreshed
			if r.spent.Add(cost).LessThanOrEqual(r.level) {
				r.spent = r.spent.Add(cost)
				return true
			}
		}
	}

	log.Warn().
		Uint64("auction", id).
		Str("cost", cost.String()).
		Str("level", r.level.String()).
		Str("committed", r.spent.String()).
		Msg("Insufficient balance for bid, skipping this round")
	return false
}
