// Package chain is the keeper's on-chain surface: read calls against the
// auction houses, gas pricing, transaction submission and replacement, and
// the new-block feed.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// FlipBid mirrors the flipper's bids(id) record. Bid and Tab are Rads,
// Lot is a Wad. A deleted or never-kicked id reads back all-zero.
type FlipBid struct {
	Bid *big.Int
	Lot *big.Int
	Guy common.Address
	Tic uint64
	End uint64
	Usr common.Address
	Gal common.Address
	Tab *big.Int
}

// FlapBid mirrors the flapper's bids(id) record: Bid is protocol token
// (Wad), Lot is surplus stablecoin (Rad).
type FlapBid struct {
	Bid *big.Int
	Lot *big.Int
	Guy common.Address
	Tic uint64
	End uint64
}

// FlopBid mirrors the flopper's bids(id) record: Bid is stablecoin (Rad),
// Lot is protocol token (Wad).
type FlopBid struct {
	Bid *big.Int
	Lot *big.Int
	Guy common.Address
	Tic uint64
	End uint64
}

// ClipSale mirrors the clipper's sales(id) record for fixed-discount
// auctions. Tab is a Rad, Lot a Wad, Top a Ray.
type ClipSale struct {
	Pos *big.Int
	Tab *big.Int
	Lot *big.Int
	Usr common.Address
	Tic uint64
	Top *big.Int
}

// ClipStatus mirrors the clipper's getStatus(id): the currently quoted Ray
// price and the remaining lot and tab.
type ClipStatus struct {
	NeedsRedo bool
	Price     *big.Int
	Lot       *big.Int
	Tab       *big.Int
}

// Client performs raw eth_call reads against the auction house contracts.
// Calldata is hand-packed; the house ABIs are small and stable enough that
// full bindings are not worth carrying.
type Client struct {
	eth *ethclient.Client
}

// Dial connects to the node RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &Client{eth: eth}, nil
}

// NewClient wraps an existing ethclient connection.
func NewClient(eth *ethclient.Client) *Client { return &Client{eth: eth} }

// Eth exposes the underlying connection for the submitter and gas source.
func (c *Client) Eth() *ethclient.Client { return c.eth }

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// Selector returns the 4-byte method selector for a signature.
func Selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// PackUint appends a uint256 argument word.
func PackUint(data []byte, x *big.Int) []byte {
	word := make([]byte, 32)
	x.FillBytes(word)
	return append(data, word...)
}

// PackAddress appends an address argument word.
func PackAddress(data []byte, a common.Address) []byte {
	word := make([]byte, 32)
	copy(word[12:], a.Bytes())
	return append(data, word...)
}

func word(out []byte, i int) *big.Int {
	start := i * 32
	end := start + 32
	if end > len(out) {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(out[start:end])
}

func wordAddr(out []byte, i int) common.Address {
	return common.BytesToAddress(word(out, i).Bytes())
}

// Kicks reads the house's auctions-started counter.
func (c *Client) Kicks(ctx context.Context, house common.Address) (uint64, error) {
	out, err := c.call(ctx, house, Selector("kicks()"))
	if err != nil {
		return 0, fmt.Errorf("kicks: %w", err)
	}
	return word(out, 0).Uint64(), nil
}

// Beg reads the house's minimum bid increment factor (Wad).
func (c *Client) Beg(ctx context.Context, house common.Address) (*big.Int, error) {
	out, err := c.call(ctx, house, Selector("beg()"))
	if err != nil {
		return nil, fmt.Errorf("beg: %w", err)
	}
	return word(out, 0), nil
}

// Tau reads the house's auction duration in seconds.
func (c *Client) Tau(ctx context.Context, house common.Address) (uint64, error) {
	out, err := c.call(ctx, house, Selector("tau()"))
	if err != nil {
		return 0, fmt.Errorf("tau: %w", err)
	}
	return word(out, 0).Uint64(), nil
}

// Era returns the latest block timestamp.
func (c *Client) Era(ctx context.Context) (uint64, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("era: %w", err)
	}
	return header.Time, nil
}

// BlockNumber returns the current chain head number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// FlipBids reads the flipper's bids(id). Missing ids decode to zero values,
// not errors.
func (c *Client) FlipBids(ctx context.Context, house common.Address, id uint64) (FlipBid, error) {
	data := PackUint(Selector("bids(uint256)"), new(big.Int).SetUint64(id))
	out, err := c.call(ctx, house, data)
	if err != nil {
		return FlipBid{}, fmt.Errorf("flip bids(%d): %w", id, err)
	}
	return FlipBid{
		Bid: word(out, 0),
		Lot: word(out, 1),
		Guy: wordAddr(out, 2),
		Tic: word(out, 3).Uint64(),
		End: word(out, 4).Uint64(),
		Usr: wordAddr(out, 5),
		Gal: wordAddr(out, 6),
		Tab: word(out, 7),
	}, nil
}

// FlapBids reads the flapper's bids(id).
func (c *Client) FlapBids(ctx context.Context, house common.Address, id uint64) (FlapBid, error) {
	data := PackUint(Selector("bids(uint256)"), new(big.Int).SetUint64(id))
	out, err := c.call(ctx, house, data)
	if err != nil {
		return FlapBid{}, fmt.Errorf("flap bids(%d): %w", id, err)
	}
	return FlapBid{
		Bid: word(out, 0),
		Lot: word(out, 1),
		Guy: wordAddr(out, 2),
		Tic: word(out, 3).Uint64(),
		End: word(out, 4).Uint64(),
	}, nil
}

// FlopBids reads the flopper's bids(id).
func (c *Client) FlopBids(ctx context.Context, house common.Address, id uint64) (FlopBid, error) {
	data := PackUint(Selector("bids(uint256)"), new(big.Int).SetUint64(id))
	out, err := c.call(ctx, house, data)
	if err != nil {
		return FlopBid{}, fmt.Errorf("flop bids(%d): %w", id, err)
	}
	return FlopBid{
		Bid: word(out, 0),
		Lot: word(out, 1),
		Guy: wordAddr(out, 2),
		Tic: word(out, 3).Uint64(),
		End: word(out, 4).Uint64(),
	}, nil
}

// ClipSale reads the clipper's sales(id).
func (c *Client) ClipSale(ctx context.Context, house common.Address, id uint64) (ClipSale, error) {
	data := PackUint(Selector("sales(uint256)"), new(big.Int).SetUint64(id))
	out, err := c.call(ctx, house, data)
	if err != nil {
		return ClipSale{}, fmt.Errorf("clip sales(%d): %w", id, err)
	}
	return ClipSale{
		Pos: word(out, 0),
		Tab: word(out, 1),
		Lot: word(out, 2),
		Usr: wordAddr(out, 3),
		Tic: word(out, 4).Uint64(),
		Top: word(out, 5),
	}, nil
}

// ClipGetStatus reads the clipper's getStatus(id): current descending price
// quote plus remaining lot/tab.
func (c *Client) ClipGetStatus(ctx context.Context, house common.Address, id uint64) (ClipStatus, error) {
	data := PackUint(Selector("getStatus(uint256)"), new(big.Int).SetUint64(id))
	out, err := c.call(ctx, house, data)
	if err != nil {
		return ClipStatus{}, fmt.Errorf("clip getStatus(%d): %w", id, err)
	}
	return ClipStatus{
		NeedsRedo: word(out, 0).Sign() != 0,
		Price:     word(out, 1),
		Lot:       word(out, 2),
		Tab:       word(out, 3),
	}, nil
}

// VatDai reads the internal ledger stablecoin balance (Rad) of an address.
func (c *Client) VatDai(ctx context.Context, vat, usr common.Address) (*big.Int, error) {
	data := PackAddress(Selector("dai(address)"), usr)
	out, err := c.call(ctx, vat, data)
	if err != nil {
		return nil, fmt.Errorf("vat dai: %w", err)
	}
	return word(out, 0), nil
}

// TokenBalance reads an ERC20 balanceOf (Wad for the protocol token).
func (c *Client) TokenBalance(ctx context.Context, token, usr common.Address) (*big.Int, error) {
	data := PackAddress(Selector("balanceOf(address)"), usr)
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return word(out, 0), nil
}
