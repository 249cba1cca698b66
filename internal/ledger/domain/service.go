package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes the ledger primitives. Every method runs inside the
// caller's transaction; this layer never opens or commits one of its own.
type Service interface {
	// AvailableCredit reports balance, held and free credit for a user.
	AvailableCredit(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (CreditSummary, error)

	// Reserve creates or updates the user's active hold for the auction to
	// amount, after verifying the free balance (excluding this auction's own
	// hold) covers it. Returns InsufficientCreditsError on shortfall.
	Reserve(ctx context.Context, tx *gorm.DB, userID, auctionID, bidID snowflake.ID, amount decimal.Decimal) (*CreditHold, error)

	// ActiveHold returns the user's active hold for the auction, or nil.
	ActiveHold(ctx context.Context, tx *gorm.DB, userID, auctionID snowflake.ID) (*CreditHold, error)

	// ActiveHoldsForAuction lists every active hold on the auction.
	ActiveHoldsForAuction(ctx context.Context, tx *gorm.DB, auctionID snowflake.ID) ([]CreditHold, error)

	// Release marks a hold released. Releasing a non-active hold is a no-op
	// so settlement retries stay idempotent.
	Release(ctx context.Context, tx *gorm.DB, holdID snowflake.ID) error

	// Consume marks the hold consumed, debits the user's balance by the hold
	// amount and writes one ledger entry. Fails if the hold is not active.
	Consume(ctx context.Context, tx *gorm.DB, hold *CreditHold, sourceID snowflake.ID) error

	// Credit increases the user's balance and writes one ledger entry. Used
	// by the payment-confirmation collaborator path.
	Credit(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount decimal.Decimal, sourceType SourceType, sourceID snowflake.ID) error
}
