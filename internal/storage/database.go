// Package storage persists keeper activity for later inspection.
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// Models

type BidRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"index"` // flip, flap, flop, clip
	AuctionID uint64 `gorm:"index"`
	Price     decimal.Decimal `gorm:"type:decimal(40,18)"`
	Cost      decimal.Decimal `gorm:"type:decimal(40,18)"`
	Action    string // "submit" or "replace"
	CreatedAt time.Time
}

type SettlementRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"index"`
	AuctionID uint64 `gorm:"index"`
	Winner    string
	CreatedAt time.Time
}

func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&BidRecord{}, &SettlementRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// LogBid records one submitted or replaced bid. Persistence failures are
// logged, never surfaced; history is best-effort.
func (d *Database) LogBid(kind string, id uint64, price, cost decimal.Decimal, action string) {
	rec := BidRecord{Kind: kind, AuctionID: id, Price: price, Cost: cost, Action: action}
	if err := d.db.Create(&rec).Error; err != nil {
		log.Warn().Err(err).Uint64("auction", id).Msg("Failed to persist bid record")
	}
}

// LogSettlement records one settled auction.
func (d *Database) LogSettlement(kind string, id uint64, guy string) {
	rec := SettlementRecord{Kind: kind, AuctionID: id, Winner: guy}
	if err := d.db.Create(&rec).Error; err != nil {
		log.Warn().Err(err).Uint64("auction", id).Msg("Failed to persist settlement record")
	}
}

// RecentBids returns the newest bid records first.
func (d *Database) RecentBids(limit int) ([]BidRecord, error) {
	var recs []BidRecord
	err := d.db.Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// BidsForAuction returns every recorded bid for one auction, newest first.
func (d *Database) BidsForAuction(kind string, id uint64) ([]BidRecord, error) {
	var recs []BidRecord
	err := d.db.Where("kind = ? AND auction_id = ?", kind, id).
		Order("created_at DESC").Find(&recs).Error
	return recs, err
}
