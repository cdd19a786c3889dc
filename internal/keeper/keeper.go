// Package keeper drives the auction bidding state machine: track auctions
// as they appear on-chain, feed their status to pricing models, turn model
// stances into bid transactions, replace in-flight bids as stances change,
// and settle or restart finished auctions.
package keeper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3keepers/auctionbot/internal/auction"
	"github.com/web3keepers/auctionbot/internal/chain"
	"github.com/web3keepers/auctionbot/internal/config"
	"github.com/web3keepers/auctionbot/internal/metrics"
	"github.com/web3keepers/auctionbot/internal/model"
)

// Rebalancer moves bidding currency in and out of the internal ledger.
// Rebalance returns the amount moved (positive in, negative out) and false
// when no rebalance target is configured.
type Rebalancer interface {
	Rebalance(ctx context.Context) (decimal.Decimal, bool, error)
}

// BalanceReader reads the keeper's current internal ledger balance of the
// round's bidding currency.
type BalanceReader func(ctx context.Context) (decimal.Decimal, error)

// BlockNumberReader reads the current chain head, used when no websocket
// block feed is configured.
type BlockNumberReader func(ctx context.Context) (uint64, error)

// Store persists keeper activity. Implemented by the storage package; nil
// disables persistence.
type Store interface {
	LogBid(kind string, id uint64, price, cost decimal.Decimal, action string)
	LogSettlement(kind string, id uint64, guy string)
}

// Notifier pushes keeper activity to an external channel (Telegram). Nil
// disables notifications.
type Notifier interface {
	BidSubmitted(kind string, id uint64, price decimal.Decimal, replaced bool)
	AuctionSettled(kind string, id uint64, guy string)
}

// Keeper is the control-loop owner: the auction registry, the dead-auction
// map, and every collaborator needed to turn model output into
// transactions. All registry and per-auction mutation happens under one
// coarse lock so the auction-check and bid-check passes never interleave
// their view of which auctions exist.
type Keeper struct {
	cfg       *config.Config
	strat     auction.Strategy
	auctions  *Registry
	submitter chain.Submitter

	nodeGas     func() chain.GasStrategy
	balance     BalanceReader
	blockNumber BlockNumberReader
	rebalancer  Rebalancer
	store       Store
	notifier    Notifier

	lk        sync.Mutex
	deadSince map[uint64]uint64
	finishing map[uint64]*chain.PendingTx
	lastBlock atomic.Uint64

	stopCh       chan struct{}
	shuttingDown atomic.Bool
	wg           sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New wires a Keeper. factory creates one pricing model per auction id;
// nodeGas builds the dynamic gas strategy used when the model does not pin
// a gas price.
func New(
	cfg *config.Config,
	strat auction.Strategy,
	factory model.Factory,
	submitter chain.Submitter,
	nodeGas func() chain.GasStrategy,
	balance BalanceReader,
	blockNumber BlockNumberReader,
) *Keeper {
	return &Keeper{
		cfg:         cfg,
		strat:       strat,
		auctions:    NewRegistry(factory, strat.ModelParameters),
		submitter:   submitter,
		nodeGas:     nodeGas,
		balance:     balance,
		blockNumber: blockNumber,
		deadSince:   make(map[uint64]uint64),
		finishing:   make(map[uint64]*chain.PendingTx),
		stopCh:      make(chan struct{}),
	}
}

// SetRebalancer wires the internal ledger rebalancer.
func (k *Keeper) SetRebalancer(r Rebalancer) { k.rebalancer = r }

// SetStore wires bid history persistence.
func (k *Keeper) SetStore(s Store) { k.store = s }

// SetNotifier wires external notifications.
func (k *Keeper) SetNotifier(n Notifier) { k.notifier = n }

// Auctions exposes the registry.
func (k *Keeper) Auctions() *Registry { return k.auctions }

// Start launches the polling loops. blocks carries new head numbers from
// the websocket feed; when nil the keeper polls the node on a timer
// instead.
func (k *Keeper) Start(blocks <-chan uint64) {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return
	}
	k.running = true
	k.mu.Unlock()

	k.wg.Add(1)
	go k.blockLoop(blocks)

	if k.cfg.BidOnAuctions {
		k.wg.Add(1)
		go k.bidLoop()
	}

	log.Info().
		Str("type", k.cfg.AuctionType).
		Str("house", k.cfg.HouseAddress.Hex()).
		Uint64("shard", k.cfg.ShardID).
		Uint64("shards", k.cfg.ShardCount).
		Msg("Keeper started")
}

// Stop halts polling, terminates every model process, and runs shutdown
// cleanup. New auctions stop being accepted immediately; cleanup waits for
// the current pass to release the registry lock.
func (k *Keeper) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	k.running = false
	k.mu.Unlock()

	k.shuttingDown.Store(true)
	close(k.stopCh)
	k.wg.Wait()

	k.lk.Lock()
	k.auctions.Clear()
	k.lk.Unlock()

	// Shutdown-only cleanup, outside the lock: hand back whatever bidding
	// currency the rebalancer is configured to return.
	if k.rebalancer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if moved, ok, err := k.rebalancer.Rebalance(ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown rebalance failed")
		} else if ok {
			log.Info().Str("moved", moved.String()).Msg("Shutdown rebalance complete")
		}
	}

	log.Info().Msg("Keeper stopped")
}

func (k *Keeper) blockLoop(blocks <-chan uint64) {
	defer k.wg.Done()

	if blocks != nil {
		for {
			select {
			case <-k.stopCh:
				return
			case n := <-blocks:
				k.onBlock(n)
			}
		}
	}

	ticker := time.NewTicker(k.cfg.BlockCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-k.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			n, err := k.blockNumber(ctx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Block number read failed")
				continue
			}
			if n > k.lastBlock.Load() {
				k.onBlock(n)
			}
		}
	}
}

func (k *Keeper) bidLoop() {
	defer k.wg.Done()

	ticker := time.NewTicker(k.cfg.BidCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-k.stopCh:
			return
		case <-ticker.C:
			k.checkForBids()
		}
	}
}

// onBlock runs one auction-check pass. Transient chain errors are logged
// and abandoned until the next block; they never stop the loop.
func (k *Keeper) onBlock(n uint64) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered in auction check pass")
		}
	}()
	k.lastBlock.Store(n)
	k.checkAllAuctions(n)
}

// checkAllAuctions walks candidate ids from the configured floor up to the
// house's kick counter, restricted to this keeper's shard, checking each
// and feeding status to the models of the ones still active.
func (k *Keeper) checkAllAuctions(block uint64) {
	started := time.Now()
	defer metrics.ObservePass("auctions", started)

	k.lk.Lock()
	defer k.lk.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), k.cfg.BlockCheckInterval*4)
	defer cancel()

	kicks, err := k.strat.AuctionsStarted(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Reading auction counter failed")
		return
	}
	hi := kicks
	if k.cfg.MaxAuctionID > 0 && hi > k.cfg.MaxAuctionID {
		hi = k.cfg.MaxAuctionID
	}

	for id := k.cfg.MinAuctionID; id <= hi; id++ {
		if k.shuttingDown.Load() {
			return
		}
		if id%k.cfg.ShardCount != k.cfg.ShardID {
			continue
		}

		st, active, err := k.checkAuction(ctx, id, block)
		if err != nil {
			// One auction's trouble never aborts the rest of the pass.
			log.Warn().Uint64("auction", id).Err(err).Msg("Auction check failed")
			continue
		}
		if active && k.cfg.BidOnAuctions {
			k.feedModel(id, st)
		}
	}
}

// checkAuction reconciles local tracking with one auction's on-chain
// lifecycle. It returns the fresh status and whether the auction is still
// biddable.
func (k *Keeper) checkAuction(ctx context.Context, id uint64, block uint64) (*auction.Status, bool, error) {
	// Known-dead ids are skipped without a chain read once the reorg
	// safety margin has passed.
	if dead, ok := k.deadSince[id]; ok && block > dead+k.cfg.DeadAfterBlocks {
		return nil, false, nil
	}

	st, err := k.strat.GetInput(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if st.Deleted() {
		k.auctions.Remove(id)
		delete(k.finishing, id)
		if _, ok := k.deadSince[id]; !ok {
			k.deadSince[id] = block
		}
		return nil, false, nil
	}

	// Seen alive again inside the reorg window: forget the dead mark, or
	// the short-circuit above would strand the auction once the margin
	// passes.
	delete(k.deadSince, id)

	if st.Expired() {
		k.handleFinished(ctx, st)
		k.auctions.Remove(id)
		return nil, false, nil
	}

	return st, true, nil
}

// handleFinished restarts an expired auction nobody bid on, or settles one
// that has a winner the keeper is configured to settle for.
func (k *Keeper) handleFinished(ctx context.Context, st *auction.Status) {
	kind := string(k.strat.Kind())

	// The auction stays readable on-chain until the restart or settlement
	// mines; one in-flight lifecycle transaction per id is enough.
	if tx, ok := k.finishing[st.ID]; ok && !tx.Finished() {
		return
	}

	if st.Guy == (common.Address{}) {
		if !k.cfg.CreateAuctions {
			return
		}
		tx := k.strat.Restart(st.ID)
		if tx == nil {
			return
		}
		pending, err := k.submitter.Submit(ctx, *tx, k.nodeGas(), nil)
		if err != nil {
			log.Warn().Uint64("auction", st.ID).Err(err).Msg("Restart submission failed")
			return
		}
		k.finishing[st.ID] = pending
		metrics.AuctionsRestarted.WithLabelValues(kind).Inc()
		log.Info().Uint64("auction", st.ID).Msg("Restarted expired auction")
		return
	}

	if !k.shouldSettleFor(st.Guy) {
		return
	}
	tx := k.strat.Deal(st.ID)
	if tx == nil {
		return
	}
	pending, err := k.submitter.Submit(ctx, *tx, k.nodeGas(), nil)
	if err != nil {
		log.Warn().Uint64("auction", st.ID).Err(err).Msg("Settlement submission failed")
		return
	}
	k.finishing[st.ID] = pending
	metrics.AuctionsSettled.WithLabelValues(kind).Inc()
	log.Info().Uint64("auction", st.ID).Str("guy", st.Guy.Hex()).Msg("Settled finished auction")
	if k.store != nil {
		k.store.LogSettlement(kind, st.ID, st.Guy.Hex())
	}
	if k.notifier != nil {
		k.notifier.AuctionSettled(kind, st.ID, st.Guy.Hex())
	}

	// Won collateral may have put currency back in the ledger; give the
	// rebalancer a chance to redeploy or withdraw it.
	k.rebalance(ctx)
}

func (k *Keeper) shouldSettleFor(guy common.Address) bool {
	if k.cfg.SettleAll {
		return true
	}
	for _, addr := range k.cfg.SettleFor {
		if addr == guy {
			return true
		}
	}
	return false
}

// feedModel pushes the latest status to the auction's model on every active
// poll. The model decides whether anything changed; the keeper never diffs.
func (k *Keeper) feedModel(id uint64, st *auction.Status) {
	a, err := k.auctions.Get(id, true)
	if err != nil {
		log.Warn().Uint64("auction", id).Err(err).Msg("Starting model failed")
		return
	}
	if err := a.Model.SendStatus(st); err != nil {
		log.Warn().Uint64("auction", id).Err(err).Msg("Feeding model failed")
	}
}

// checkForBids runs one bid-check pass over every tracked auction with a
// freshly seeded reservoir.
func (k *Keeper) checkForBids() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered in bid check pass")
		}
	}()
	started := time.Now()
	defer metrics.ObservePass("bids", started)

	k.lk.Lock()
	defer k.lk.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), k.cfg.BidCheckInterval*4)
	defer cancel()

	reservoir := k.newReservoir(ctx)

	for _, a := range k.auctions.All() {
		if k.shuttingDown.Load() {
			return
		}
		stance := a.Model.GetStance()
		if stance == nil {
			continue
		}
		if err := k.handleBid(ctx, a, stance, reservoir); err != nil {
			log.Warn().Uint64("auction", a.ID).Err(err).Msg("Bid handling failed")
		}
	}
}

func (k *Keeper) newReservoir(ctx context.Context) *Reservoir {
	level, err := k.balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Balance read failed, bidding with empty reservoir")
		level = decimal.Zero
	}

	var topUp func(context.Context) (decimal.Decimal, bool)
	if k.rebalancer != nil {
		topUp = func(ctx context.Context) (decimal.Decimal, bool) {
			moved, ok, err := k.rebalancer.Rebalance(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Reservoir top-up failed")
				return decimal.Zero, false
			}
			if !ok {
				return decimal.Zero, false
			}
			log.Info().Str("moved", moved.String()).Msg("Topped up bidding balance")
			refreshed, err := k.balance(ctx)
			if err != nil {
				return decimal.Zero, false
			}
			return refreshed, true
		}
	}
	return NewReservoir(level, topUp)
}

// handleBid turns one stance into a submit, replace, or leave-alone
// decision for one auction.
func (k *Keeper) handleBid(ctx context.Context, a *Auction, stance *model.Stance, reservoir *Reservoir) error {
	kind := string(k.strat.Kind())

	plan, err := k.strat.Bid(ctx, a.ID, stance.Price)
	if err != nil {
		return err
	}
	if plan == nil {
		return nil
	}

	// Fixed-discount takes are bounded by the take ceiling itself, not by
	// a reservoir pre-check.
	if k.strat.Kind() != auction.KindClip {
		if !reservoir.CheckBidCost(ctx, a.ID, plan.Cost) {
			metrics.BidsSkipped.WithLabelValues(kind, "insufficient_funds").Inc()
			return nil
		}
	}

	pending := a.ActivePending()

	if len(pending) == 0 {
		gas := k.gasFor(a, stance)
		tx, err := k.submitter.Submit(ctx, plan.Tx, gas, nil)
		if err != nil {
			return err
		}
		a.Pending = append(a.Pending, tx)
		a.Price = plan.Price
		a.HasPrice = true
		a.SubmittedAt = time.Now()
		metrics.BidsSubmitted.WithLabelValues(kind).Inc()
		log.Info().
			Uint64("auction", a.ID).
			Str("price", plan.Price.String()).
			Str("cost", plan.Cost.String()).
			Msg("Submitted bid")
		k.recordBid(kind, a.ID, plan, "submit")

		// Deliberate throttle between new bids; blocks only this pass,
		// not in-flight submissions.
		if k.cfg.BidDelay > 0 {
			time.Sleep(k.cfg.BidDelay)
		}
		return nil
	}

	inFlight := pending[len(pending)-1]

	priceChanged := !a.HasPrice || !a.Price.Equal(plan.Price)
	gasSwitch := false
	if stance.GasPrice != nil {
		if fixed, ok := a.Gas.(*chain.FixedGas); ok && a.ModelGas {
			// Gas-price-only change: update the pinned strategy in place,
			// the submitter's worker propagates it to the pending tx.
			if fixed.Price().Cmp(stance.GasPrice) != 0 {
				fixed.SetPrice(stance.GasPrice)
				log.Debug().Uint64("auction", a.ID).Str("gas_price", stance.GasPrice.String()).Msg("Updated pinned gas price")
			}
		} else {
			// Dynamic → fixed needs a real replacement.
			gasSwitch = true
		}
	} else if a.ModelGas {
		// Fixed → dynamic likewise.
		gasSwitch = true
	}

	if !priceChanged && !gasSwitch {
		return nil
	}

	gas := k.gasFor(a, stance)
	tx, err := k.submitter.Submit(ctx, plan.Tx, gas, inFlight)
	if err != nil {
		return err
	}
	a.Pending = append(a.ActivePending(), tx)
	a.Price = plan.Price
	a.HasPrice = true
	a.SubmittedAt = time.Now()
	metrics.BidsReplaced.WithLabelValues(kind).Inc()
	log.Info().
		Uint64("auction", a.ID).
		Str("price", plan.Price.String()).
		Uint64("nonce", tx.Nonce).
		Bool("gas_switch", gasSwitch).
		Msg("Replaced pending bid")
	k.recordBid(kind, a.ID, plan, "replace")
	return nil
}

// gasFor picks the auction's gas strategy for the next submission: pinned
// to the model's gasPrice when it supplies one, the node strategy
// otherwise.
func (k *Keeper) gasFor(a *Auction, stance *model.Stance) chain.GasStrategy {
	if stance.GasPrice != nil {
		if fixed, ok := a.Gas.(*chain.FixedGas); ok && a.ModelGas {
			fixed.SetPrice(stance.GasPrice)
			return fixed
		}
		fixed := chain.NewFixedGas(stance.GasPrice)
		a.Gas = fixed
		a.ModelGas = true
		return fixed
	}
	if a.Gas == nil || a.ModelGas {
		a.Gas = k.nodeGas()
		a.ModelGas = false
	}
	return a.Gas
}

func (k *Keeper) recordBid(kind string, id uint64, plan *auction.BidPlan, action string) {
	if k.store != nil {
		k.store.LogBid(kind, id, plan.Price, plan.Cost, action)
	}
	if k.notifier != nil {
		k.notifier.BidSubmitted(kind, id, plan.Price, action == "replace")
	}
}

func (k *Keeper) rebalance(ctx context.Context) {
	if k.rebalancer == nil {
		return
	}
	moved, ok, err := k.rebalancer.Rebalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Rebalance failed")
		return
	}
	if ok && !moved.IsZero() {
		log.Info().Str("moved", moved.String()).Msg("Rebalanced internal ledger")
	}
}
