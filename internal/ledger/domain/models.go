package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type HoldStatus string

const (
	// HoldStatusActive reserves credits against an open auction.
	HoldStatusActive HoldStatus = "active"
	// HoldStatusReleased frees the credits again (outbid or auction lost).
	HoldStatusReleased HoldStatus = "released"
	// HoldStatusConsumed means the hold was settled and the balance debited.
	HoldStatusConsumed HoldStatus = "consumed"
)

// CreditHold reserves part of a user's balance against an open auction.
// At most one active hold exists per (user, auction); re-bidding updates the
// amount in place.
type CreditHold struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	UserID    snowflake.ID    `gorm:"not null;index:idx_credit_holds_user_auction"`
	AuctionID snowflake.ID    `gorm:"not null;index:idx_credit_holds_user_auction;index"`
	BidID     *snowflake.ID   `gorm:"index"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Status    HoldStatus      `gorm:"type:text;not null;index"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditHold) TableName() string { return "credit_holds" }

type EntryDirection string

const (
	EntryDirectionDebit  EntryDirection = "debit"
	EntryDirectionCredit EntryDirection = "credit"
)

type SourceType string

const (
	// SourceTypeSettlement tags the debit written when a winning hold is consumed.
	SourceTypeSettlement SourceType = "auction_settlement"
	// SourceTypeTopUp tags balance increases confirmed by the payment provider.
	SourceTypeTopUp SourceType = "payment_topup"
	// SourceTypeAdjustment tags manual balance corrections.
	SourceTypeAdjustment SourceType = "adjustment"
)

type AccountType string

const (
	AccountCreditBalance AccountType = "credit_balance"
)

// LedgerEntry is the append-only audit row for every balance delta.
// Never updated or deleted.
type LedgerEntry struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	TxID       string          `gorm:"type:text;not null;index"`
	UserID     snowflake.ID    `gorm:"not null;index"`
	Account    AccountType     `gorm:"type:text;not null"`
	Direction  EntryDirection  `gorm:"type:text;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	SourceType SourceType      `gorm:"type:text;not null;index"`
	SourceID   snowflake.ID    `gorm:"not null;index"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// CreditSummary reports a user's balance split into held and spendable parts.
type CreditSummary struct {
	Balance   decimal.Decimal
	Held      decimal.Decimal
	Available decimal.Decimal
}
