package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	leaddomain "github.com/leadex/leadex/internal/lead/domain"
	"github.com/shopspring/decimal"
)

type createLeadRequest struct {
	Title       string `json:"title"`
	Temperature string `json:"temperature"`
}

func (s *Server) CreateLead(c *gin.Context) {
	var body createLeadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	title := strings.TrimSpace(body.Title)
	if title == "" {
		AbortWithError(c, newValidationError("title", "invalid_title", "title is required"))
		return
	}
	temperature := leaddomain.Temperature(strings.ToLower(strings.TrimSpace(body.Temperature)))
	if temperature != leaddomain.TemperatureHot && temperature != leaddomain.TemperatureCold {
		AbortWithError(c, newValidationError("temperature", "invalid_temperature", "temperature must be hot or cold"))
		return
	}

	now := s.clock.Now()
	lead := leaddomain.Lead{
		ID:          s.genID.Generate(),
		Title:       title,
		Temperature: temperature,
		Status:      leaddomain.StatusAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(c.Request.Context()).Exec(
		`INSERT INTO leads (id, title, temperature, status, owner_id, batch_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, NULL, ?, ?)`,
		lead.ID,
		lead.Title,
		lead.Temperature,
		lead.Status,
		now,
		now,
	).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          lead.ID.String(),
		"title":       lead.Title,
		"temperature": string(lead.Temperature),
		"status":      string(lead.Status),
	})
}

type openLeadAuctionRequest struct {
	MinimumBid string `json:"minimum_bid"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (s *Server) OpenLeadAuction(c *gin.Context) {
	leadID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, auctiondomain.ErrLeadNotFound)
		return
	}

	var body openLeadAuctionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	minimum, err := decimal.NewFromString(strings.TrimSpace(body.MinimumBid))
	if err != nil {
		AbortWithError(c, newValidationError("minimum_bid", "invalid_minimum_bid", "minimum bid must be a decimal number"))
		return
	}

	ttl := 24 * time.Hour
	if body.TTLSeconds > 0 {
		ttl = time.Duration(body.TTLSeconds) * time.Second
	}

	auction, err := s.auctionSvc.CreateForLead(c.Request.Context(), leadID, minimum, ttl)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"auction": newAuctionView(auction)})
}
