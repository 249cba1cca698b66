package domain

import (
	"testing"
	"time"

	leaddomain "github.com/leadex/leadex/internal/lead/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRequiredMinimum(t *testing.T) {
	tests := []struct {
		name    string
		minimum string
		top     string
		want    string
	}{
		{name: "no bids uses auction minimum", minimum: "100", top: "", want: "100"},
		{name: "raise beats minimum", minimum: "100", top: "100", want: "110"},
		{name: "raise rounds up", minimum: "100", top: "101", want: "112"},
		{name: "minimum still higher than raise", minimum: "500", top: "100", want: "500"},
		{name: "fractional top bid", minimum: "1", top: "10.50", want: "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var top *Bid
			if tt.top != "" {
				top = &Bid{Amount: dec(tt.top)}
			}
			got := RequiredMinimum(dec(tt.minimum), top)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestNextMinimum(t *testing.T) {
	assert.True(t, NextMinimum(dec("100")).Equal(dec("110")))
	assert.True(t, NextMinimum(dec("101")).Equal(dec("112")))
	assert.True(t, NextMinimum(dec("1")).Equal(dec("2")))
}

func TestBuyNowPrice(t *testing.T) {
	tests := []struct {
		name        string
		required    string
		temperature leaddomain.Temperature
		want        string
	}{
		{name: "hot clears at 1.2x", required: "100", temperature: leaddomain.TemperatureHot, want: "120"},
		{name: "cold clears at 1.5x", required: "100", temperature: leaddomain.TemperatureCold, want: "150"},
		{name: "hot rounds up", required: "105", temperature: leaddomain.TemperatureHot, want: "126"},
		{name: "cold rounds up", required: "101", temperature: leaddomain.TemperatureCold, want: "152"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuyNowPrice(dec(tt.required), tt.temperature)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestTopBidOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no bids", func(t *testing.T) {
		assert.Nil(t, TopBid(nil))
	})

	t.Run("highest amount wins", func(t *testing.T) {
		bids := []Bid{
			{ID: 1, Amount: dec("100"), CreatedAt: base},
			{ID: 2, Amount: dec("120"), CreatedAt: base.Add(time.Second)},
			{ID: 3, Amount: dec("110"), CreatedAt: base.Add(2 * time.Second)},
		}
		assert.Equal(t, bids[1].ID, TopBid(bids).ID)
	})

	t.Run("newest wins among equal amounts", func(t *testing.T) {
		bids := []Bid{
			{ID: 1, Amount: dec("100"), CreatedAt: base},
			{ID: 2, Amount: dec("100"), CreatedAt: base.Add(time.Second)},
		}
		assert.Equal(t, bids[1].ID, TopBid(bids).ID)
	})

	t.Run("higher id breaks exact ties", func(t *testing.T) {
		bids := []Bid{
			{ID: 2, Amount: dec("100"), CreatedAt: base},
			{ID: 1, Amount: dec("100"), CreatedAt: base},
		}
		assert.Equal(t, bids[0].ID, TopBid(bids).ID)
	})
}

func TestAuctionIsOpen(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	auction := &Auction{Status: StatusOpen, ExpiresAt: now.Add(time.Hour)}

	assert.True(t, auction.IsOpen(now))
	assert.False(t, auction.IsOpen(now.Add(time.Hour)))

	auction.Status = StatusClosedWon
	assert.False(t, auction.IsOpen(now))
}
