package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrHoldNotFound  = errors.New("hold_not_found")
	ErrHoldNotActive = errors.New("hold_not_active")
	ErrUserNotFound  = errors.New("user_not_found")
)

// InsufficientCreditsError rejects a reservation that exceeds the user's free
// balance. Shortfall is how many credits are missing, so clients can prompt
// an exact top-up.
type InsufficientCreditsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient_credits: need %s, have %s", e.Required, e.Available)
}

// AsInsufficientCredits unwraps err into an InsufficientCreditsError, or nil.
func AsInsufficientCredits(err error) *InsufficientCreditsError {
	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		return ice
	}
	return nil
}
