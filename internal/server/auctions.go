package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type auctionView struct {
	ID           string    `json:"id"`
	LeadID       *string   `json:"lead_id,omitempty"`
	BatchID      *string   `json:"batch_id,omitempty"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	MinimumBid   string    `json:"minimum_bid"`
	WinningBidID *string   `json:"winning_bid_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type bidView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func newAuctionView(a *auctiondomain.Auction) auctionView {
	view := auctionView{
		ID:         a.ID.String(),
		Type:       string(a.Type),
		Status:     string(a.Status),
		MinimumBid: a.MinimumBid.String(),
		ExpiresAt:  a.ExpiresAt,
		CreatedAt:  a.CreatedAt,
	}
	if a.LeadID != nil {
		id := a.LeadID.String()
		view.LeadID = &id
	}
	if a.BatchID != nil {
		id := a.BatchID.String()
		view.BatchID = &id
	}
	if a.WinningBidID != nil {
		id := a.WinningBidID.String()
		view.WinningBidID = &id
	}
	return view
}

func newBidView(b *auctiondomain.Bid) bidView {
	return bidView{
		ID:        b.ID.String(),
		UserID:    b.UserID.String(),
		Amount:    b.Amount.String(),
		CreatedAt: b.CreatedAt,
	}
}

func (s *Server) GetAuction(c *gin.Context) {
	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, auctiondomain.ErrAuctionNotFound)
		return
	}

	auction, bids, err := s.auctionSvc.GetByID(c.Request.Context(), auctionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	bidViews := make([]bidView, 0, len(bids))
	for i := range bids {
		bidViews = append(bidViews, newBidView(&bids[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"auction": newAuctionView(auction),
		"bids":    bidViews,
	})
}

type placeBidRequest struct {
	Amount string `json:"amount"`
	BuyNow bool   `json:"buy_now"`
}

func (s *Server) PlaceBid(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, auctiondomain.ErrAuctionNotFound)
		return
	}

	if s.bidLimiter.Enabled() {
		allowed, err := s.bidLimiter.AllowBid(c.Request.Context(), user.ID)
		if err != nil {
			s.log.Warn("bid rate limiter unavailable", zap.Error(err))
		} else if !allowed.Allowed {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}

	var body placeBidRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amount := decimal.Zero
	if !body.BuyNow {
		amount, err = decimal.NewFromString(strings.TrimSpace(body.Amount))
		if err != nil {
			AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be a decimal number"))
			return
		}
	}

	result, err := s.auctionSvc.PlaceBid(c.Request.Context(), auctiondomain.PlaceBidRequest{
		AuctionID:      auctionID,
		UserID:         user.ID,
		Amount:         amount,
		BuyNow:         body.BuyNow,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	response := gin.H{
		"bid":              newBidView(result.Bid),
		"available_credit": result.AvailableCredit.String(),
	}
	if result.ExpiresAt != nil {
		response["expires_at"] = *result.ExpiresAt
	}
	if result.Settlement != nil {
		response["settlement"] = settlementView(result.Settlement)
	}
	c.JSON(http.StatusCreated, response)
}

func (s *Server) CloseAuction(c *gin.Context) {
	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, auctiondomain.ErrAuctionNotFound)
		return
	}

	settlement, err := s.auctionSvc.Close(c.Request.Context(), auctionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, settlementView(settlement))
}

func settlementView(settlement *auctiondomain.SettlementResult) gin.H {
	view := gin.H{"outcome": string(settlement.Outcome)}
	if settlement.Auction != nil {
		view["auction"] = newAuctionView(settlement.Auction)
	}
	if settlement.WinningBid != nil {
		view["winning_bid"] = newBidView(settlement.WinningBid)
	}
	return view
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
