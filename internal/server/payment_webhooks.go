package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/leadex/leadex/internal/ledger/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentWebhookRequest struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Amount  string `json:"amount"`
}

// HandlePaymentWebhook credits a buyer's balance after the provider confirms
// a top-up. Redeliveries of the same event id are acknowledged without a
// second credit.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	if s.cfg.WebhookSecret == "" {
		AbortWithError(c, ErrForbidden)
		return
	}
	secret := strings.TrimSpace(c.GetHeader("X-Webhook-Secret"))
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.WebhookSecret)) != 1 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	provider := strings.TrimSpace(c.Param("provider"))

	var body paymentWebhookRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(body.EventID) == "" {
		AbortWithError(c, newValidationError("event_id", "invalid_event_id", "event id is required"))
		return
	}
	userID, err := parseID(body.UserID)
	if err != nil || userID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "user id is required"))
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(body.Amount))
	if err != nil || amount.Sign() <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be a positive decimal"))
		return
	}

	ctx := c.Request.Context()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := &ledgerdomain.PaymentEvent{
			ID:        s.genID.Generate(),
			Provider:  provider,
			EventKey:  strings.TrimSpace(body.EventID),
			UserID:    userID,
			Amount:    amount,
			CreatedAt: s.clock.Now(),
		}
		// The driver renders the conflict clause for its dialect.
		result := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}},
			DoNothing: true,
		}).Create(event)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Already processed.
			return nil
		}

		return s.ledgerSvc.Credit(ctx, tx, userID, amount, ledgerdomain.SourceTypeTopUp, event.ID)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
