package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen          Status = "open"
	StatusClosedWon     Status = "closed_won"
	StatusClosedExpired Status = "closed_expired"
)

type Type string

const (
	TypeSingle Type = "single"
	TypeBatch  Type = "batch"
)

// Auction is the aggregate bids are placed against. Status moves away from
// open exactly once, through the conditional update in the settlement path.
type Auction struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	LeadID       *snowflake.ID   `gorm:"index"`
	BatchID      *snowflake.ID   `gorm:"index"`
	Type         Type            `gorm:"type:text;not null;default:single"`
	Status       Status          `gorm:"type:text;not null;index"`
	MinimumBid   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	WinningBidID *snowflake.ID
	ExpiresAt    time.Time `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Auction) TableName() string { return "auctions" }

// Bid is immutable once created.
type Bid struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	AuctionID snowflake.ID    `gorm:"not null;index"`
	UserID    snowflake.ID    `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Bid) TableName() string { return "bids" }

// BidRequest records a processed idempotency key.
type BidRequest struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Key       string       `gorm:"column:request_key;type:text;not null;uniqueIndex"`
	AuctionID snowflake.ID `gorm:"not null;index"`
	UserID    snowflake.ID `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BidRequest) TableName() string { return "bid_requests" }

// TopBid returns the current leader: highest amount, and among equal amounts
// the most recent bid. Returns nil when no bids exist.
func TopBid(bids []Bid) *Bid {
	var top *Bid
	for i := range bids {
		if top == nil || bidRanksHigher(&bids[i], top) {
			top = &bids[i]
		}
	}
	return top
}

func bidRanksHigher(a, b *Bid) bool {
	switch a.Amount.Cmp(b.Amount) {
	case 1:
		return true
	case -1:
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// IsOpen reports whether bids can still be accepted at now.
func (a *Auction) IsOpen(now time.Time) bool {
	return a.Status == StatusOpen && now.Before(a.ExpiresAt)
}
