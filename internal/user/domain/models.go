package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleBuyer Role = "buyer"
	RoleAdmin Role = "admin"
)

// User carries the credit balance bid protocols draw against. The balance is
// mutated only by the ledger service, inside the caller's transaction.
type User struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	Email     string          `gorm:"type:text;not null;uniqueIndex"`
	Role      Role            `gorm:"type:text;not null;default:buyer"`
	APIToken  string          `gorm:"type:text;uniqueIndex"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
