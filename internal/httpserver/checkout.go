package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/service/analytics"
	"storefront/internal/service/checkout"
	"storefront/internal/validation"
)

type quoteRequest struct {
	ShippingMethod string `json:"shippingMethod"`
	PromoCode      string `json:"promoCode"`
}

type promoRequest struct {
	Code string `json:"code"`
}

// validateRequest carries either a whole form or a single field.
type validateRequest struct {
	Form  *validation.Form `json:"form"`
	Field validation.Field `json:"field"`
	Value string           `json:"value"`
}

func (h *handlers) quote(c *gin.Context) {
	var req quoteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	q, err := h.checkout.Quote(c.Request.Context(), sessionFrom(c), req.ShippingMethod, req.PromoCode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.track(c, analytics.EventBeginCheckout, map[string]interface{}{
		"value":    q.Totals.GrandTotal,
		"shipping": string(q.Shipping.Method),
	})
	c.JSON(http.StatusOK, q)
}

func (h *handlers) applyPromo(c *gin.Context) {
	var req promoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	out, err := h.checkout.ApplyPromo(c.Request.Context(), sessionFrom(c), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) validateForm(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	now := h.now()
	if req.Form != nil {
		res := validation.ValidateForm(*req.Form, now)
		first, _ := res.FirstInvalid()
		c.JSON(http.StatusOK, gin.H{"valid": res.Valid(), "errors": res.Errors, "firstInvalid": first})
		return
	}
	if req.Field == "" {
		badRequest(c, "form or field is required")
		return
	}
	msg, ok := validation.ValidateField(req.Field, req.Value, now)
	c.JSON(http.StatusOK, gin.H{"valid": ok, "field": req.Field, "message": msg})
}

func (h *handlers) placeOrder(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	req.Session = sessionFrom(c)
	if key := c.GetHeader(idempotencyHeader); key != "" {
		req.IdempotencyKey = key
	}

	placement, err := h.checkout.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusCreated
	if placement.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, placement)
}
