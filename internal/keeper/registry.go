package keeper

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3keepers/auctionbot/internal/chain"
	"github.com/web3keepers/auctionbot/internal/model"
)

// Auction is the keeper's tracking record for one live auction: its model
// process, the price last submitted on-chain, the gas strategy backing the
// in-flight transaction, and the transaction handles themselves.
type Auction struct {
	ID    uint64
	Model model.Handle

	Price    decimal.Decimal
	HasPrice bool

	Gas      chain.GasStrategy
	ModelGas bool // gas strategy pinned by the model rather than the node

	Pending     []*chain.PendingTx
	SubmittedAt time.Time
}

// ActivePending prunes finished transactions and returns what is still in
// flight. At most one entry is economically active; replacements supersede
// rather than stack.
func (a *Auction) ActivePending() []*chain.PendingTx {
	kept := a.Pending[:0]
	for _, tx := range a.Pending {
		if !tx.Finished() {
			kept = append(kept, tx)
		}
	}
	a.Pending = kept
	return a.Pending
}

// Registry maps auction id to its tracking record, creating a model process
// on first sight of an id and tearing it down exactly once on removal.
type Registry struct {
	mu        sync.Mutex
	entries   map[uint64]*Auction
	factory   model.Factory
	paramsFor func(id uint64) model.Parameters
}

func NewRegistry(factory model.Factory, paramsFor func(id uint64) model.Parameters) *Registry {
	return &Registry{
		entries:   make(map[uint64]*Auction),
		factory:   factory,
		paramsFor: paramsFor,
	}
}

// Get returns the entry for id, creating it (and its model process) when
// create is set. Two Get calls for the same id without an intervening
// Remove always return the same record.
func (r *Registry) Get(id uint64, create bool) (*Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.entries[id]; ok {
		return a, nil
	}
	if !create {
		return nil, nil
	}

	handle, err := r.factory(r.paramsFor(id))
	if err != nil {
		return nil, err
	}
	a := &Auction{ID: id, Model: handle}
	r.entries[id] = a
	log.Info().Uint64("auction", id).Msg("Tracking new auction")
	return a, nil
}

// Remove terminates the auction's model and drops the entry. Removing an
// absent id is a no-op.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.entries[id]
	if !ok {
		return
	}
	a.Model.Terminate()
	delete(r.entries, id)
	log.Info().Uint64("auction", id).Msg("Stopped tracking auction")
}

// All returns the tracked auctions in id order.
func (r *Registry) All() []*Auction {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Auction, 0, len(r.entries))
	for _, a := range r.entries {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked auctions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear terminates every model and empties the registry. Used on shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.entries {
		a.Model.Terminate()
		delete(r.entries, id)
	}
}
