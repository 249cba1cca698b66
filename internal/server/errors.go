package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	batchdomain "github.com/leadex/leadex/internal/batch/domain"
	ledgerdomain "github.com/leadex/leadex/internal/ledger/domain"
	"github.com/leadex/leadex/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
			c.Header("Retry-After", "1")
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Business rejections carry structured metadata so clients can react
	// without parsing messages.
	if btl := auctiondomain.AsBidTooLow(err); btl != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "bid_too_low",
			Message: "bid below required minimum",
			Metadata: map[string]any{
				"minimum_amount": btl.Minimum.String(),
			},
		}
	}
	if ice := ledgerdomain.AsInsufficientCredits(err); ice != nil {
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: "available credit does not cover the bid",
			Metadata: map[string]any{
				"required":  ice.Required.String(),
				"available": ice.Available.String(),
				"shortfall": ice.Shortfall.String(),
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "", Code: err.Error(), Message: "invalid value"},
			},
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    err.Error(),
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isRetryableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "contention",
			Message: "try again shortly",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, auctiondomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, batchdomain.ErrInvalidThreshold),
		errors.Is(err, batchdomain.ErrInvalidUnitPrice),
		errors.Is(err, batchdomain.ErrInvalidBatchSize):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, auctiondomain.ErrAuctionClosed),
		errors.Is(err, auctiondomain.ErrDuplicateRequest),
		errors.Is(err, auctiondomain.ErrLeadNotAvailable),
		errors.Is(err, ledgerdomain.ErrHoldNotActive):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, auctiondomain.ErrAuctionNotFound),
		errors.Is(err, auctiondomain.ErrLeadNotFound),
		errors.Is(err, ledgerdomain.ErrHoldNotFound),
		errors.Is(err, ledgerdomain.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isRetryableError(err error) bool {
	return errors.Is(err, auctiondomain.ErrLockTimeout) || db.IsSerializationErr(err)
}
