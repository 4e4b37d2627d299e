package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service/analytics"
	"storefront/internal/service/cart"
)

type cartResponse struct {
	Session   string                `json:"session"`
	Items     []domain.CartLineItem `json:"items"`
	Total     int64                 `json:"total"`
	ItemCount int                   `json:"itemCount"`
	Warning   string                `json:"warning,omitempty"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func snapshot(c *cart.Cart) cartResponse {
	items := c.Items()
	if items == nil {
		items = []domain.CartLineItem{}
	}
	resp := cartResponse{
		Session:   c.Session(),
		Items:     items,
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
	}
	if err := c.LastPersistError(); err != nil {
		resp.Warning = "cart could not be saved; changes may be lost on reload"
	}
	return resp
}

func (h *handlers) cartFor(c *gin.Context) *cart.Cart {
	return h.carts.Get(c.Request.Context(), sessionFrom(c))
}

func (h *handlers) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, snapshot(h.cartFor(c)))
}

func (h *handlers) clearCart(c *gin.Context) {
	sc := h.cartFor(c)
	sc.Clear(c.Request.Context())
	c.JSON(http.StatusOK, snapshot(sc))
}

func (h *handlers) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProductID == "" {
		badRequest(c, "productId is required")
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	ctx := c.Request.Context()
	product, err := h.products.Get(ctx, req.ProductID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	sc := h.cartFor(c)
	if !sc.Add(ctx, product.LineItem(req.Quantity)) {
		h.writeError(c, fmt.Errorf("add %s: %w", product.ID, domain.ErrCapacity))
		return
	}
	h.track(c, analytics.EventAddToCart, map[string]interface{}{
		"id":       product.ID,
		"quantity": req.Quantity,
		"price":    product.PriceCents,
	})
	c.JSON(http.StatusOK, snapshot(sc))
}

func (h *handlers) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		badRequest(c, "quantity is required")
		return
	}
	sc := h.cartFor(c)
	id := c.Param("id")
	if !contains(sc.Items(), id) {
		h.writeError(c, fmt.Errorf("cart item %s: %w", id, domain.ErrNotFound))
		return
	}
	sc.UpdateQuantity(c.Request.Context(), id, *req.Quantity)
	if *req.Quantity <= 0 {
		h.track(c, analytics.EventRemoveFromCart, map[string]interface{}{"id": id})
	}
	c.JSON(http.StatusOK, snapshot(sc))
}

func (h *handlers) removeCartItem(c *gin.Context) {
	sc := h.cartFor(c)
	id := c.Param("id")
	if !contains(sc.Items(), id) {
		h.writeError(c, fmt.Errorf("cart item %s: %w", id, domain.ErrNotFound))
		return
	}
	sc.Remove(c.Request.Context(), id)
	h.track(c, analytics.EventRemoveFromCart, map[string]interface{}{"id": id})
	c.JSON(http.StatusOK, snapshot(sc))
}

func contains(items []domain.CartLineItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
