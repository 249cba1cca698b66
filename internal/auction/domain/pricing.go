package domain

import (
	"time"

	leaddomain "github.com/leadex/leadex/internal/lead/domain"
	"github.com/shopspring/decimal"
)

// AntiSnipeWindow: a bid landing inside this window pushes the expiry out to
// a full window from now.
const AntiSnipeWindow = 60 * time.Second

var (
	// raiseFactor lifts the next required minimum 10% above the accepted bid.
	raiseFactor = decimal.RequireFromString("1.10")

	buyNowHotFactor  = decimal.RequireFromString("1.2")
	buyNowColdFactor = decimal.RequireFromString("1.5")
)

// RequiredMinimum computes the lowest acceptable bid: the auction minimum, or
// ceil(top bid x 1.10) when that is higher.
func RequiredMinimum(auctionMinimum decimal.Decimal, top *Bid) decimal.Decimal {
	if top == nil {
		return auctionMinimum
	}
	raised := top.Amount.Mul(raiseFactor).Ceil()
	if raised.Cmp(auctionMinimum) > 0 {
		return raised
	}
	return auctionMinimum
}

// NextMinimum is the auction minimum after accepting a bid of amount.
func NextMinimum(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(raiseFactor).Ceil()
}

// BuyNowPrice prices immediate settlement: hot leads clear at 1.2x the
// required minimum, everything else at 1.5x.
func BuyNowPrice(requiredMinimum decimal.Decimal, temperature leaddomain.Temperature) decimal.Decimal {
	factor := buyNowColdFactor
	if temperature == leaddomain.TemperatureHot {
		factor = buyNowHotFactor
	}
	return requiredMinimum.Mul(factor).Ceil()
}
