package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type SettlementOutcome string

const (
	OutcomeWon           SettlementOutcome = "won"
	OutcomeExpiredNoBids SettlementOutcome = "expired_no_bids"
	OutcomeAlreadyClosed SettlementOutcome = "already_closed"
)

type PlaceBidRequest struct {
	AuctionID      snowflake.ID
	UserID         snowflake.ID
	Amount         decimal.Decimal
	BuyNow         bool
	IdempotencyKey string
}

type PlaceBidResult struct {
	Bid             *Bid
	AvailableCredit decimal.Decimal
	// ExpiresAt carries the refreshed expiry for standard bids so clients can
	// resync their countdown; nil on the buy-now path.
	ExpiresAt *time.Time
	// Settlement is set when a buy-now bid closed the auction inline.
	Settlement *SettlementResult
}

type SettlementResult struct {
	Outcome    SettlementOutcome
	Auction    *Auction
	WinningBid *Bid
}

type Service interface {
	// CreateForLead opens a single-lead auction and marks the lead auctioned.
	CreateForLead(ctx context.Context, leadID snowflake.ID, minimum decimal.Decimal, ttl time.Duration) (*Auction, error)

	// GetByID returns the auction with its bid history.
	GetByID(ctx context.Context, id snowflake.ID) (*Auction, []Bid, error)

	// PlaceBid runs the bid acceptance protocol: per-auction serialization,
	// idempotency, state and solvency checks, hold upkeep, anti-snipe, and
	// inline settlement for buy-now.
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*PlaceBidResult, error)

	// Close settles the auction exactly once; concurrent or repeated calls
	// observe OutcomeAlreadyClosed.
	Close(ctx context.Context, auctionID snowflake.ID) (*SettlementResult, error)
}
