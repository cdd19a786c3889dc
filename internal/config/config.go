// Package config loads keeper configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all configuration for the keeper. Missing required values
// are startup errors; nothing here is re-validated at runtime.
type Config struct {
	// Auction selection
	AuctionType  string // flip, flap, flop, clip
	HouseAddress common.Address
	VatAddress   common.Address // internal ledger, reservoir seed for flip/flop/clip
	GovToken     common.Address // bidding currency for flap auctions

	// Node connection
	RPCURL     string
	RPCWSURL   string // optional websocket endpoint for the block feed
	ChainID    int64
	PrivateKey string

	// Bidding
	ModelCommand   string
	ModelArgs      []string
	BidOnAuctions  bool
	CreateAuctions bool
	SettleFor      []common.Address
	SettleAll      bool
	BidDelay       time.Duration
	GasMultiplier  float64

	// Polling
	MinAuctionID       uint64
	MaxAuctionID       uint64 // 0 = no upper bound
	ShardID            uint64
	ShardCount         uint64
	BidCheckInterval   time.Duration
	BlockCheckInterval time.Duration
	DeadAfterBlocks    uint64

	// Mode
	DryRun bool
	Debug  bool

	// Persistence / observability
	DatabaseDSN    string
	TelegramToken  string
	TelegramChatID int64
	MetricsAddr    string
}

// Load reads configuration from the environment. The only fatal errors in
// the whole keeper originate here.
func Load() (*Config, error) {
	cfg := &Config{
		AuctionType: strings.ToLower(os.Getenv("AUCTION_TYPE")),

		RPCURL:     getEnv("RPC_URL", ""),
		RPCWSURL:   getEnv("RPC_WS_URL", ""),
		ChainID:    int64(getEnvInt("CHAIN_ID", 1)),
		PrivateKey: os.Getenv("PRIVATE_KEY"),

		ModelCommand:   os.Getenv("MODEL_COMMAND"),
		BidOnAuctions:  getEnvBool("BID_ON_AUCTIONS", true),
		CreateAuctions: getEnvBool("CREATE_AUCTIONS", false),
		BidDelay:       getEnvDuration("BID_DELAY", 0),
		GasMultiplier:  getEnvFloat("GAS_MULTIPLIER", 1.1),

		MinAuctionID:       uint64(getEnvInt("MIN_AUCTION_ID", 1)),
		MaxAuctionID:       uint64(getEnvInt("MAX_AUCTION_ID", 0)),
		ShardID:            uint64(getEnvInt("SHARD_ID", 0)),
		ShardCount:         uint64(getEnvInt("SHARD_COUNT", 1)),
		BidCheckInterval:   getEnvDuration("BID_CHECK_INTERVAL", 4*time.Second),
		BlockCheckInterval: getEnvDuration("BLOCK_CHECK_INTERVAL", 15*time.Second),
		DeadAfterBlocks:    uint64(getEnvInt("DEAD_AFTER_BLOCKS", 10)),

		DryRun: getEnvBool("DRY_RUN", false),
		Debug:  getEnvBool("DEBUG", false),

		DatabaseDSN:   getEnv("DATABASE_DSN", ""),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
	}

	if fields := strings.Fields(os.Getenv("MODEL_ARGS")); len(fields) > 0 {
		cfg.ModelArgs = fields
	}

	switch cfg.AuctionType {
	case "flip", "flap", "flop", "clip":
	case "":
		return nil, fmt.Errorf("AUCTION_TYPE is required (flip, flap, flop, or clip)")
	default:
		return nil, fmt.Errorf("unknown AUCTION_TYPE %q", cfg.AuctionType)
	}

	houseEnv := strings.ToUpper(cfg.AuctionType) + "_ADDRESS"
	house := os.Getenv(houseEnv)
	if house == "" {
		return nil, fmt.Errorf("%s is required for %s auctions", houseEnv, cfg.AuctionType)
	}
	if !common.IsHexAddress(house) {
		return nil, fmt.Errorf("invalid %s: %q", houseEnv, house)
	}
	cfg.HouseAddress = common.HexToAddress(house)

	if vat := os.Getenv("VAT_ADDRESS"); vat != "" {
		if !common.IsHexAddress(vat) {
			return nil, fmt.Errorf("invalid VAT_ADDRESS: %q", vat)
		}
		cfg.VatAddress = common.HexToAddress(vat)
	} else if cfg.AuctionType != "flap" {
		return nil, fmt.Errorf("VAT_ADDRESS is required for %s auctions", cfg.AuctionType)
	}

	if gov := os.Getenv("GOV_TOKEN_ADDRESS"); gov != "" {
		if !common.IsHexAddress(gov) {
			return nil, fmt.Errorf("invalid GOV_TOKEN_ADDRESS: %q", gov)
		}
		cfg.GovToken = common.HexToAddress(gov)
	} else if cfg.AuctionType == "flap" {
		return nil, fmt.Errorf("GOV_TOKEN_ADDRESS is required for flap auctions")
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC_URL is required")
	}
	if cfg.BidOnAuctions && cfg.ModelCommand == "" {
		return nil, fmt.Errorf("MODEL_COMMAND is required when bidding is enabled")
	}
	if cfg.PrivateKey == "" && !cfg.DryRun {
		return nil, fmt.Errorf("PRIVATE_KEY is required unless DRY_RUN=true")
	}
	if cfg.ShardCount == 0 {
		return nil, fmt.Errorf("SHARD_COUNT must be at least 1")
	}
	if cfg.ShardID >= cfg.ShardCount {
		return nil, fmt.Errorf("SHARD_ID %d out of range for SHARD_COUNT %d", cfg.ShardID, cfg.ShardCount)
	}

	switch settle := strings.TrimSpace(os.Getenv("SETTLE_FOR")); settle {
	case "", "none":
	case "all":
		cfg.SettleAll = true
	default:
		for _, part := range strings.Split(settle, ",") {
			part = strings.TrimSpace(part)
			if !common.IsHexAddress(part) {
				return nil, fmt.Errorf("invalid SETTLE_FOR address %q", part)
			}
			cfg.SettleFor = append(cfg.SettleFor, common.HexToAddress(part))
		}
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
