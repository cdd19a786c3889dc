package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
)

// TxCandidate is a contract call the keeper wants mined: destination,
// calldata, and a label for logs.
type TxCandidate struct {
	To       common.Address
	Data     []byte
	Label    string
	GasLimit uint64
}

// PendingTx tracks one submitted-but-not-yet-final transaction. A
// replacement reuses its nonce, so at most one of the two can ever mine.
type PendingTx struct {
	Label string
	Nonce uint64

	mu       sync.Mutex
	hash     common.Hash
	gasPrice *big.Int
	done     bool
	mined    bool
}

// Finished reports whether this transaction is mined, failed, or abandoned.
func (p *PendingTx) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Mined reports whether the transaction landed on-chain.
func (p *PendingTx) Mined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mined
}

// CurrentGasPrice is the gas price of the most recent broadcast.
func (p *PendingTx) CurrentGasPrice() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gasPrice == nil {
		return nil
	}
	return new(big.Int).Set(p.gasPrice)
}

// Hash is the hash of the most recent broadcast.
func (p *PendingTx) Hash() common.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hash
}

func (p *PendingTx) finish(mined bool) {
	p.mu.Lock()
	p.done = true
	p.mined = mined
	p.mu.Unlock()
}

// Submitter sends bid transactions. Submission is asynchronous: the call
// returns once the transaction is signed and dispatched to a background
// worker; waiting for inclusion never blocks the caller. Passing replace
// supersedes that pending transaction by reusing its nonce.
type Submitter interface {
	Submit(ctx context.Context, cand TxCandidate, gas GasStrategy, replace *PendingTx) (*PendingTx, error)
}

const (
	defaultGasLimit   = 700_000
	receiptPollEvery  = 4 * time.Second
	gasRecheckEvery   = 15 * time.Second
	inclusionDeadline = 2 * time.Hour
)

// EthSubmitter signs and broadcasts transactions through a node connection.
// While a transaction is pending its background worker re-quotes the gas
// strategy and rebroadcasts at the same nonce whenever the quote clears the
// mempool's replacement bump, so updatable gas strategies take effect
// without a keeper-level replacement.
type EthSubmitter struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

func NewEthSubmitter(eth *ethclient.Client, key *ecdsa.PrivateKey, chainID *big.Int) *EthSubmitter {
	return &EthSubmitter{
		eth:     eth,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}
}

// From returns the keeper's sending address.
func (s *EthSubmitter) From() common.Address { return s.from }

func (s *EthSubmitter) Submit(ctx context.Context, cand TxCandidate, gas GasStrategy, replace *PendingTx) (*PendingTx, error) {
	var nonce uint64
	if replace != nil {
		nonce = replace.Nonce
	} else {
		n, err := s.eth.PendingNonceAt(ctx, s.from)
		if err != nil {
			return nil, err
		}
		nonce = n
	}

	gasPrice := gas.GasPrice(0)
	if gasPrice == nil {
		suggested, err := s.eth.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		gasPrice = suggested
	}
	if replace != nil {
		if prior := replace.CurrentGasPrice(); prior != nil {
			if minimum := BumpGas(prior); gasPrice.Cmp(minimum) < 0 {
				gasPrice = minimum
			}
		}
		// The superseded handle is finished from the keeper's point of
		// view; only its nonce lives on in the replacement.
		replace.finish(false)
	}

	pending := &PendingTx{Label: cand.Label, Nonce: nonce, gasPrice: gasPrice}
	go s.broadcastAndWait(cand, gas, pending)
	return pending, nil
}

func (s *EthSubmitter) broadcastAndWait(cand TxCandidate, gas GasStrategy, pending *PendingTx) {
	started := time.Now()

	hash, err := s.broadcast(cand, pending.Nonce, pending.CurrentGasPrice())
	if err != nil {
		log.Error().Err(err).Str("tx", cand.Label).Msg("Broadcast failed")
		pending.finish(false)
		return
	}
	pending.mu.Lock()
	pending.hash = hash
	pending.mu.Unlock()

	log.Info().
		Str("tx", cand.Label).
		Str("hash", hash.Hex()).
		Uint64("nonce", pending.Nonce).
		Str("gas_price", pending.CurrentGasPrice().String()).
		Msg("Transaction submitted")

	receiptTick := time.NewTicker(receiptPollEvery)
	defer receiptTick.Stop()
	gasTick := time.NewTicker(gasRecheckEvery)
	defer gasTick.Stop()
	deadline := time.NewTimer(inclusionDeadline)
	defer deadline.Stop()

	for {
		select {
		case <-receiptTick.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			receipt, err := s.eth.TransactionReceipt(ctx, pending.Hash())
			cancel()
			if err == nil && receipt != nil {
				if receipt.Status == types.ReceiptStatusSuccessful {
					log.Info().Str("tx", cand.Label).Str("hash", pending.Hash().Hex()).Msg("Transaction mined")
					pending.finish(true)
				} else {
					log.Warn().Str("tx", cand.Label).Str("hash", pending.Hash().Hex()).Msg("Transaction reverted")
					pending.finish(false)
				}
				return
			}
			if pending.Finished() {
				// Superseded by a replacement while we were waiting.
				return
			}
		case <-gasTick.C:
			if pending.Finished() {
				return
			}
			quote := gas.GasPrice(time.Since(started))
			if quote == nil {
				continue
			}
			current := pending.CurrentGasPrice()
			if quote.Cmp(BumpGas(current)) < 0 {
				continue
			}
			hash, err := s.broadcast(cand, pending.Nonce, quote)
			if err != nil {
				// The original may have just mined; the receipt poll settles it.
				log.Debug().Err(err).Str("tx", cand.Label).Msg("Gas rebroadcast rejected")
				continue
			}
			pending.mu.Lock()
			pending.hash = hash
			pending.gasPrice = quote
			pending.mu.Unlock()
			log.Info().
				Str("tx", cand.Label).
				Str("hash", hash.Hex()).
				Str("gas_price", quote.String()).
				Msg("Rebroadcast at higher gas price")
		case <-deadline.C:
			log.Warn().Str("tx", cand.Label).Msg("Giving up waiting for inclusion")
			pending.finish(false)
			return
		}
	}
}

func (s *EthSubmitter) broadcast(cand TxCandidate, nonce uint64, gasPrice *big.Int) (common.Hash, error) {
	gasLimit := cand.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	tx := types.NewTransaction(nonce, cand.To, big.NewInt(0), gasLimit, gasPrice, cand.Data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// DryRunSubmitter logs what would have been sent. Returned handles finish
// immediately so the keeper never considers a dry-run bid in flight.
type DryRunSubmitter struct {
	nonce uint64
	mu    sync.Mutex
}

func NewDryRunSubmitter() *DryRunSubmitter { return &DryRunSubmitter{} }

func (s *DryRunSubmitter) Submit(_ context.Context, cand TxCandidate, gas GasStrategy, replace *PendingTx) (*PendingTx, error) {
	s.mu.Lock()
	nonce := s.nonce
	if replace != nil {
		nonce = replace.Nonce
		replace.finish(false)
	} else {
		s.nonce++
	}
	s.mu.Unlock()

	gasPrice := gas.GasPrice(0)
	log.Info().
		Str("tx", cand.Label).
		Str("to", cand.To.Hex()).
		Uint64("nonce", nonce).
		Str("gas_price", gasString(gasPrice)).
		Msg("DRY RUN - transaction not sent")

	pending := &PendingTx{Label: cand.Label, Nonce: nonce, gasPrice: gasPrice}
	pending.finish(true)
	return pending, nil
}

func gasString(p *big.Int) string {
	if p == nil {
		return "node-default"
	}
	return p.String()
}
