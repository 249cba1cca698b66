package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAuctionNotFound  = errors.New("auction_not_found")
	ErrAuctionClosed    = errors.New("auction_closed")
	ErrDuplicateRequest = errors.New("duplicate_request")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrLockTimeout      = errors.New("lock_timeout")
	ErrLeadNotFound     = errors.New("lead_not_found")
	ErrLeadNotAvailable = errors.New("lead_not_available")
)

// BidTooLowError rejects a bid under the required minimum, carrying the
// minimum so clients can render it.
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid_too_low: minimum is %s", e.Minimum)
}

// AsBidTooLow unwraps err into a BidTooLowError, or nil.
func AsBidTooLow(err error) *BidTooLowError {
	var btl *BidTooLowError
	if errors.As(err, &btl) {
		return btl
	}
	return nil
}
