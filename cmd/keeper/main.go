// Auctionbot - automated bidding keeper for collateral, surplus, debt and
// liquidation auctions.
//
// The keeper watches one auction house, spawns an external pricing model
// per live auction, and turns the model's output into bid transactions:
// submitting, replacing at the same nonce when the model changes its mind,
// settling won auctions, and restarting expired ones.
package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3keepers/auctionbot/internal/auction"
	"github.com/web3keepers/auctionbot/internal/bot"
	"github.com/web3keepers/auctionbot/internal/chain"
	"github.com/web3keepers/auctionbot/internal/config"
	"github.com/web3keepers/auctionbot/internal/keeper"
	"github.com/web3keepers/auctionbot/internal/metrics"
	"github.com/web3keepers/auctionbot/internal/model"
	"github.com/web3keepers/auctionbot/internal/storage"
	"github.com/web3keepers/auctionbot/internal/units"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("type", cfg.AuctionType).
		Str("house", cfg.HouseAddress.Hex()).
		Bool("dry_run", cfg.DryRun).
		Msg("⚡ Auctionbot starting...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	client, err := chain.Dial(ctx, cfg.RPCURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.RPCURL).Msg("Failed to connect to node")
	}

	// Signing identity. Dry-run works keyless; bids are logged, not sent.
	var submitter chain.Submitter
	var our common.Address
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(cfg.PrivateKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid PRIVATE_KEY")
		}
		our = crypto.PubkeyToAddress(key.PublicKey)
		if cfg.DryRun {
			submitter = chain.NewDryRunSubmitter()
		} else {
			submitter = chain.NewEthSubmitter(client.Eth(), key, big.NewInt(cfg.ChainID))
		}
	} else {
		submitter = chain.NewDryRunSubmitter()
	}
	log.Info().Str("address", our.Hex()).Msg("💳 Keeper identity")

	strat, err := auction.New(auction.Kind(cfg.AuctionType), client, cfg.HouseAddress, our)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build auction strategy")
	}

	// One pricing model subprocess per auction, restart-counted.
	var factory model.Factory
	if cfg.BidOnAuctions {
		command := model.NewCommandFactory(cfg.ModelCommand, cfg.ModelArgs...)
		factory = func(p model.Parameters) (model.Handle, error) {
			h, err := command(p)
			if err != nil {
				return nil, err
			}
			if m, ok := h.(*model.Model); ok {
				m.OnRestart(metrics.ModelRestarts.Inc)
			}
			return h, nil
		}
	}

	nodeGas := func() chain.GasStrategy {
		return chain.NewNodeGas(client.Eth(), cfg.GasMultiplier)
	}

	k := keeper.New(cfg, strat, factory, submitter,
		nodeGas, balanceReader(cfg, client, our), client.BlockNumber)

	// Optional extras: persistence, Telegram, metrics.
	if cfg.DatabaseDSN != "" {
		db, err := storage.New(cfg.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		k.SetStore(db)
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram disabled")
		} else {
			k.SetNotifier(tg)
			tg.NotifyStartup(cfg.AuctionType, cfg.HouseAddress.Hex(), cfg.DryRun)
		}
	}
	metrics.Serve(cfg.MetricsAddr)

	// Block source: websocket feed when configured, head polling otherwise.
	var blocks <-chan uint64
	var feed *chain.BlockFeed
	if cfg.RPCWSURL != "" {
		feed = chain.NewBlockFeed(cfg.RPCWSURL)
		feed.Start()
		blocks = feed.Blocks()
		log.Info().Str("url", cfg.RPCWSURL).Msg("⛓️ Block feed connected")
	}

	k.Start(blocks)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	k.Stop()
	if feed != nil {
		feed.Stop()
	}
	log.Info().Msg("Goodbye")
}

// balanceReader reads the keeper's bidding currency balance: the internal
// ledger for flip/flop/clip rounds, the governance token for flap rounds.
// Keyless dry runs get a synthetic balance so bidding paths still run.
func balanceReader(cfg *config.Config, client *chain.Client, our common.Address) keeper.BalanceReader {
	if our == (common.Address{}) {
		return func(context.Context) (decimal.Decimal, error) {
			return decimal.NewFromInt(1_000_000), nil
		}
	}
	if cfg.AuctionType == "flap" {
		return func(ctx context.Context) (decimal.Decimal, error) {
			bal, err := client.TokenBalance(ctx, cfg.GovToken, our)
			if err != nil {
				return decimal.Zero, err
			}
			return units.FromWad(bal), nil
		}
	}
	return func(ctx context.Context) (decimal.Decimal, error) {
		bal, err := client.VatDai(ctx, cfg.VatAddress, our)
		if err != nil {
			return decimal.Zero, err
		}
		return units.FromRad(bal), nil
	}
}
