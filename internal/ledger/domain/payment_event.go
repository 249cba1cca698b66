package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PaymentEvent deduplicates provider webhook deliveries. The unique event key
// makes redelivered confirmations credit a balance at most once.
type PaymentEvent struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	Provider  string          `gorm:"type:text;not null"`
	EventKey  string          `gorm:"type:text;not null;uniqueIndex"`
	UserID    snowflake.ID    `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentEvent) TableName() string { return "payment_events" }
