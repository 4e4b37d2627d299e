package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/pricing"
	"storefront/internal/service/checkout"
	"storefront/internal/validation"
)

type errorResponse struct {
	Error          string                  `json:"error"`
	Fields         []validation.FieldError `json:"fields,omitempty"`
	Retryable      bool                    `json:"retryable,omitempty"`
	IdempotencyKey string                  `json:"idempotencyKey,omitempty"`
	OrderID        string                  `json:"orderId,omitempty"`
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// writeError maps service errors onto status codes.
func (h *handlers) writeError(c *gin.Context, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: verr.Fields})
		return
	}
	if ierr, ok := checkout.AsIntegrity(err); ok {
		h.logger.Error("order not recorded after charge",
			zap.String("idempotency_key", ierr.IdempotencyKey),
			zap.String("order_id", ierr.OrderID),
			zap.Error(ierr.Err))
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:          "payment succeeded but the order could not be saved; retry with the same idempotency key",
			Retryable:      true,
			IdempotencyKey: ierr.IdempotencyKey,
			OrderID:        ierr.OrderID,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotConfirmed),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, pricing.ErrUnknownShipping):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrCapacity):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrPaymentFailed):
		c.JSON(http.StatusPaymentRequired, errorResponse{Error: err.Error(), Retryable: true})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
