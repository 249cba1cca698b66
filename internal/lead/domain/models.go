package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Temperature string

const (
	TemperatureHot  Temperature = "hot"
	TemperatureCold Temperature = "cold"
)

type Status string

const (
	// StatusAvailable means the lead can be put up for auction.
	StatusAvailable Status = "available"
	// StatusAuctioned means an open auction references the lead.
	StatusAuctioned Status = "auctioned"
	// StatusSold means settlement transferred ownership to a buyer.
	StatusSold Status = "sold"
	// StatusHighFrozen marks a hot lead whose auction expired without bids.
	StatusHighFrozen Status = "high_frozen"
	// StatusLowFrozen marks a low-value lead eligible for batching.
	StatusLowFrozen Status = "low_frozen"
	// StatusBatched means the lead was harvested into a batch auction.
	StatusBatched Status = "batched"
)

type Lead struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	Title       string        `gorm:"type:text;not null"`
	Temperature Temperature   `gorm:"type:text;not null;default:cold"`
	Status      Status        `gorm:"type:text;not null;index"`
	OwnerID     *snowflake.ID `gorm:"index"`
	BatchID     *snowflake.ID `gorm:"index"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Lead) TableName() string { return "leads" }

// FrozenStatus maps a lead temperature to the frozen status applied when its
// auction expires with no bids.
func FrozenStatus(t Temperature) Status {
	if t == TemperatureHot {
		return StatusHighFrozen
	}
	return StatusLowFrozen
}
