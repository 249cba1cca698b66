package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TriggerReason string

const (
	TriggerAuto   TriggerReason = "auto"
	TriggerManual TriggerReason = "manual"
)

type BatchStatus string

const (
	BatchStatusRunning BatchStatus = "running"
)

// BatchAuction bundles low-value frozen leads into one sellable lot.
type BatchAuction struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	TotalLeads    int             `gorm:"not null"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	MinimumBid    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Status        BatchStatus     `gorm:"type:text;not null"`
	TriggerReason TriggerReason   `gorm:"type:text;not null"`
	CreatedByID   *snowflake.ID
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BatchAuction) TableName() string { return "batch_auctions" }

// BatchAuctionLead records a harvested lead and its pre-batch status so an
// expired batch can restore it. A lead restored from an expired batch may be
// harvested into a later one, so uniqueness holds per batch, not globally.
type BatchAuctionLead struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	BatchID     snowflake.ID `gorm:"not null;uniqueIndex:idx_batch_auction_leads_batch_lead"`
	LeadID      snowflake.ID `gorm:"not null;uniqueIndex:idx_batch_auction_leads_batch_lead;index"`
	PriorStatus string       `gorm:"type:text;not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BatchAuctionLead) TableName() string { return "batch_auction_leads" }

// BatchSettings is the single configuration row for batch formation.
type BatchSettings struct {
	ID          int64           `gorm:"primaryKey"`
	Threshold   int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	AutoTrigger bool            `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BatchSettings) TableName() string { return "batch_settings" }

const (
	DefaultThreshold = 20
	// DefaultBatchExpiry is the short window a freshly formed batch auction
	// stays open for bids.
	DefaultBatchExpiry = 24 * time.Hour
)

var DefaultUnitPrice = decimal.RequireFromString("5")

var (
	ErrInvalidThreshold = errors.New("invalid_threshold")
	ErrInvalidUnitPrice = errors.New("invalid_unit_price")
	ErrInvalidBatchSize = errors.New("invalid_batch_size")
)
