package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	batchdomain "github.com/leadex/leadex/internal/batch/domain"
	"github.com/shopspring/decimal"
)

type runBatchRequest struct {
	Mode         string `json:"mode"`
	BatchSize    int    `json:"batch_size"`
	MaxBatches   int    `json:"max_batches"`
	AllowPartial bool   `json:"allow_partial"`
}

func (s *Server) RunBatch(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body runBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	trigger := batchdomain.TriggerManual
	switch strings.TrimSpace(body.Mode) {
	case "", string(batchdomain.TriggerManual):
	case string(batchdomain.TriggerAuto):
		trigger = batchdomain.TriggerAuto
	default:
		AbortWithError(c, newValidationError("mode", "invalid_mode", "mode must be manual or auto"))
		return
	}
	if body.MaxBatches < 0 {
		AbortWithError(c, newValidationError("max_batches", "invalid_max_batches", "max batches must not be negative"))
		return
	}
	maxBatches := body.MaxBatches
	if maxBatches == 0 {
		maxBatches = 1
	}

	// One trigger can drain a backlog holding several thresholds' worth of
	// leads; the loop stops at the first run that forms nothing.
	outcome := batchdomain.OutcomeEmpty
	eligible := 0
	batches := make([]gin.H, 0, 1)
	for i := 0; i < maxBatches; i++ {
		result, err := s.batchSvc.Run(c.Request.Context(), batchdomain.RunRequest{
			Trigger:      trigger,
			BatchSize:    body.BatchSize,
			AllowPartial: body.AllowPartial,
			ActorID:      user.ID,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		outcome = result.Outcome
		if result.Outcome != batchdomain.OutcomeCreated {
			eligible = result.Eligible
			break
		}
		batches = append(batches, gin.H{
			"batch_id":    result.Batch.ID.String(),
			"auction_id":  result.AuctionID.String(),
			"total_leads": result.Batch.TotalLeads,
			"minimum_bid": result.Batch.MinimumBid.String(),
		})
	}

	if len(batches) > 0 {
		outcome = batchdomain.OutcomeCreated
	}
	response := gin.H{
		"outcome": string(outcome),
		"batches": batches,
	}
	if outcome == batchdomain.OutcomeNotEnough {
		response["eligible"] = eligible
	}
	c.JSON(http.StatusOK, response)
}

type settingsView struct {
	Threshold   int    `json:"threshold"`
	UnitPrice   string `json:"unit_price"`
	AutoTrigger bool   `json:"auto_trigger"`
}

func (s *Server) GetBatchSettings(c *gin.Context) {
	settings, err := s.batchSvc.GetSettings(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsView{
		Threshold:   settings.Threshold,
		UnitPrice:   settings.UnitPrice.String(),
		AutoTrigger: settings.AutoTrigger,
	})
}

type updateSettingsRequest struct {
	Threshold   *int    `json:"threshold"`
	UnitPrice   *string `json:"unit_price"`
	AutoTrigger *bool   `json:"auto_trigger"`
}

func (s *Server) UpdateBatchSettings(c *gin.Context) {
	var body updateSettingsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := batchdomain.UpdateSettingsRequest{
		Threshold:   body.Threshold,
		AutoTrigger: body.AutoTrigger,
	}
	if body.UnitPrice != nil {
		price, err := decimal.NewFromString(strings.TrimSpace(*body.UnitPrice))
		if err != nil {
			AbortWithError(c, newValidationError("unit_price", "invalid_unit_price", "unit price must be a decimal number"))
			return
		}
		req.UnitPrice = &price
	}

	settings, err := s.batchSvc.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsView{
		Threshold:   settings.Threshold,
		UnitPrice:   settings.UnitPrice.String(),
		AutoTrigger: settings.AutoTrigger,
	})
}
