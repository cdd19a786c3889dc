package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// GasStrategy quotes the gas price for a transaction that has been pending
// for the given duration. A nil quote means "no opinion, use the node
// default".
type GasStrategy interface {
	GasPrice(elapsed time.Duration) *big.Int
}

// FixedGas is a pinned gas price, typically supplied by the pricing model.
// The price can be updated in place, which lets a gas-price-only change
// propagate to an already-submitted transaction without a full replacement.
type FixedGas struct {
	mu    sync.Mutex
	price *big.Int
}

func NewFixedGas(price *big.Int) *FixedGas {
	return &FixedGas{price: new(big.Int).Set(price)}
}

func (g *FixedGas) GasPrice(time.Duration) *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.price)
}

// SetPrice updates the pinned price for subsequent quotes.
func (g *FixedGas) SetPrice(price *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.price = new(big.Int).Set(price)
}

// Price returns the current pinned value.
func (g *FixedGas) Price() *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.price)
}

// GasSuggester is satisfied by ethclient.Client.
type GasSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// NodeGas quotes the node's suggested price scaled by a multiplier, then
// escalates 12.5% per escalation interval the transaction stays pending so
// replacements always clear the node's bump threshold.
type NodeGas struct {
	suggester  GasSuggester
	multiplier float64
	every      time.Duration
	timeout    time.Duration

	mu   sync.Mutex
	last *big.Int
}

func NewNodeGas(suggester GasSuggester, multiplier float64) *NodeGas {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	return &NodeGas{
		suggester:  suggester,
		multiplier: multiplier,
		every:      30 * time.Second,
		timeout:    5 * time.Second,
	}
}

func (g *NodeGas) GasPrice(elapsed time.Duration) *big.Int {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	suggested, err := g.suggester.SuggestGasPrice(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("Gas price suggestion failed")
		if g.last == nil {
			return nil
		}
		suggested = g.last
	}

	price := scaleGas(suggested, g.multiplier)
	if elapsed > 0 {
		steps := int64(elapsed / g.every)
		for i := int64(0); i < steps; i++ {
			price = scaleGas(price, 1.125)
		}
	}
	g.last = new(big.Int).Set(price)
	return price
}

// BumpGas returns prior raised by the minimum replacement increment (12.5%,
// rounded up) so a same-nonce replacement is accepted by the mempool.
func BumpGas(prior *big.Int) *big.Int {
	bumped := new(big.Int).Mul(prior, big.NewInt(1125))
	bumped.Add(bumped, big.NewInt(999))
	return bumped.Div(bumped, big.NewInt(1000))
}

func scaleGas(price *big.Int, factor float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(factor))
	out, _ := scaled.Int(nil)
	return out
}
