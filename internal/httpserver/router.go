package httpserver

import (
	"context"
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/service/cart"
	"storefront/internal/service/checkout"
)

type ProductService interface {
	List(ctx context.Context, category string) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
}

type Tracker interface {
	Track(ctx context.Context, session, event string, params map[string]interface{})
}

// Deps are the services behind the routes. Tracker and Ready are optional.
type Deps struct {
	Products    ProductService
	Carts       *cart.Sessions
	Checkout    *checkout.Service
	Tracker     Tracker
	Ready       []ReadinessCheck
	CORSOrigins []string
}

type handlers struct {
	products ProductService
	carts    *cart.Sessions
	checkout *checkout.Service
	tracker  Tracker
	logger   *zap.Logger
	now      func() time.Time
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, deps Deps) (*gin.Engine, error) {
	if deps.Products == nil || deps.Carts == nil || deps.Checkout == nil {
		return nil, errors.New("httpserver: products, carts and checkout are required")
	}

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery(), cors.New(corsConfig(deps.CORSOrigins)))

	h := &handlers{
		products: deps.Products,
		carts:    deps.Carts,
		checkout: deps.Checkout,
		tracker:  deps.Tracker,
		logger:   logger,
		now:      time.Now,
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Ready))

	router.GET("/products", h.listProducts)
	router.GET("/products/:id", h.getProduct)
	router.GET("/categories", h.listCategories)
	router.POST("/sessions", h.newSession)

	session := router.Group("/", sessionMiddleware())
	session.GET("/cart", h.getCart)
	session.DELETE("/cart", h.clearCart)
	session.POST("/cart/items", h.addCartItem)
	session.PATCH("/cart/items/:id", h.updateCartItem)
	session.DELETE("/cart/items/:id", h.removeCartItem)
	session.GET("/cart/events", h.cartEvents)

	session.POST("/checkout/quote", h.quote)
	session.POST("/checkout/promo", h.applyPromo)
	session.POST("/checkout/validate", h.validateForm)
	session.POST("/checkout/orders", h.placeOrder)

	session.GET("/orders", h.listOrders)
	session.GET("/orders/last", h.lastOrder)
	session.GET("/orders/:id", h.getOrder)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, sessionHeader, idempotencyHeader)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (h *handlers) track(c *gin.Context, event string, params map[string]interface{}) {
	if h.tracker == nil {
		return
	}
	h.tracker.Track(c.Request.Context(), sessionFrom(c), event, params)
}
