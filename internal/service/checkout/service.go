// Package checkout turns a session's cart into a recorded order.
//
// Orders are written in two phases: after a successful charge the record
// is first stored under pending_orders, then appended to orders. A request
// that repeats an idempotency key returns the committed order, or finishes
// committing a pending one without charging again.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository/kv"
	"storefront/internal/service/analytics"
	"storefront/internal/service/cart"
	"storefront/internal/validation"
)

// Tracker records analytics events.
type Tracker interface {
	Track(ctx context.Context, session, event string, params map[string]interface{})
}

type Service struct {
	carts   *cart.Sessions
	store   kv.Store
	gateway payment.Gateway
	policy  pricing.Policy
	tracker Tracker
	locks   *keyedMutex
	now     func() time.Time
	logger  *zap.Logger
}

func New(carts *cart.Sessions, store kv.Store, gateway payment.Gateway, policy pricing.Policy, tracker Tracker, logger *zap.Logger) *Service {
	return &Service{
		carts:   carts,
		store:   store,
		gateway: gateway,
		policy:  policy,
		tracker: tracker,
		locks:   newKeyedMutex(),
		now:     time.Now,
		logger:  logging.OrNop(logger).Named("checkout"),
	}
}

// Request is a submitted checkout.
type Request struct {
	Session        string          `json:"-"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Confirmed      bool            `json:"confirmed"`
	Form           validation.Form `json:"form"`
	PromoCode      string          `json:"promoCode,omitempty"`
}

// Placement is the outcome of PlaceOrder. Replayed is true when the order
// had already been recorded under the same idempotency key.
type Placement struct {
	Order    domain.OrderRecord `json:"order"`
	Replayed bool               `json:"replayed"`
}

// PlaceOrder charges the cart of req.Session and records the order.
//
// Errors: domain.ErrNotConfirmed, domain.ErrEmptyCart, *validation.Error,
// pricing.ErrUnknownShipping, domain.ErrPaymentFailed (nothing changed,
// safe to retry) and *IntegrityError (charged but not recorded; retry with
// the same idempotency key).
func (s *Service) PlaceOrder(ctx context.Context, req Request) (Placement, error) {
	if !req.Confirmed {
		return Placement{}, domain.ErrNotConfirmed
	}
	unlock := s.locks.Lock(req.Session)
	defer unlock()

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	log := s.logger.With(zap.String("session", req.Session), zap.String("idempotency_key", key))

	if existing, ok, err := s.committedByKey(ctx, req.Session, key); err != nil {
		return Placement{}, err
	} else if ok {
		log.Info("order already recorded", zap.String("order_id", existing.ID))
		return Placement{Order: existing, Replayed: true}, nil
	}

	c := s.carts.Get(ctx, req.Session)

	if pending, ok, err := s.pendingByKey(ctx, req.Session, key); err != nil {
		return Placement{}, err
	} else if ok {
		log.Warn("finishing pending order without charging again", zap.String("order_id", pending.ID))
		order, err := s.commit(ctx, c, pending, log)
		if err != nil {
			return Placement{}, err
		}
		return Placement{Order: order, Replayed: true}, nil
	}

	items := c.Items()
	if len(items) == 0 {
		return Placement{}, domain.ErrEmptyCart
	}

	now := s.now()
	if err := validation.ValidateForm(req.Form, now).Err(); err != nil {
		return Placement{}, err
	}
	method, err := pricing.ParseShippingMethod(req.Form.ShippingMethod)
	if err != nil {
		return Placement{}, err
	}
	quote, err := s.policy.Calculate(pricing.Input{Items: items, Shipping: method, PromoCode: req.PromoCode})
	if err != nil {
		return Placement{}, err
	}
	payOpt, _ := pricing.LookupPayment(req.Form.PaymentMethod)

	charge, err := s.gateway.Process(ctx, payment.Charge{
		IdempotencyKey: key,
		Amount:         quote.Totals.GrandTotal,
		Method:         string(payOpt.Method),
	})
	if err != nil {
		log.Warn("payment failed", zap.Error(err))
		return Placement{}, fmt.Errorf("%w: %w", domain.ErrPaymentFailed, err)
	}

	record := domain.OrderRecord{
		ID:             newOrderID(now),
		IdempotencyKey: key,
		Timestamp:      now.UTC(),
		Items:          items,
		Customer:       req.Form.Customer,
		Shipping: domain.ShippingInfo{
			Method:            string(quote.Shipping.Method),
			MethodName:        quote.Shipping.DisplayName,
			Cost:              quote.Shipping.Cost,
			EstimatedDelivery: pricing.EstimatedDelivery(quote.Shipping, now),
		},
		Payment: domain.PaymentInfo{
			Method:        string(payOpt.Method),
			MethodName:    payOpt.DisplayName,
			Fee:           payOpt.Fee,
			TransactionID: charge.TransactionID,
		},
		PromoCode: quote.PromoCode,
		Totals:    quote.Totals,
		Status:    domain.OrderStatusPending,
	}
	if payOpt.Method == pricing.PaymentCreditCard {
		record.Payment.CardLastFour = validation.LastFour(req.Form.CardNumber)
	}
	log = log.With(zap.String("order_id", record.ID), zap.String("transaction_id", charge.TransactionID))

	if err := kv.Append(ctx, s.store, req.Session, kv.KeyPendingOrders, record, 0); err != nil {
		log.Error("charged order could not be staged", zap.Error(err), zap.Int64("grand_total", record.Totals.GrandTotal))
		return Placement{}, &IntegrityError{IdempotencyKey: key, OrderID: record.ID, Err: err}
	}

	order, err := s.commit(ctx, c, record, log)
	if err != nil {
		return Placement{}, err
	}
	return Placement{Order: order}, nil
}

// commit appends record to the order log, updates last_order, drops the
// pending entry and only then removes the ordered lines from the cart.
func (s *Service) commit(ctx context.Context, c *cart.Cart, record domain.OrderRecord, log *zap.Logger) (domain.OrderRecord, error) {
	record.Status = domain.OrderStatusCompleted
	if err := s.appendOrder(ctx, c.Session(), record); err != nil {
		log.Error("charged order could not be recorded", zap.Error(err), zap.Int64("grand_total", record.Totals.GrandTotal))
		return domain.OrderRecord{}, &IntegrityError{IdempotencyKey: record.IdempotencyKey, OrderID: record.ID, Err: err}
	}

	if err := s.store.Set(ctx, c.Session(), kv.KeyLastOrder, record.Summary()); err != nil {
		log.Warn("last order summary not saved", zap.Error(err))
	}
	if err := s.dropPending(ctx, c.Session(), record.IdempotencyKey); err != nil {
		log.Warn("pending order not cleaned up", zap.Error(err))
	}

	c.Deduct(ctx, record.Items)
	if err := c.LastPersistError(); err != nil {
		log.Warn("ordered items removed in memory only", zap.Error(err))
	}

	if s.tracker != nil {
		s.tracker.Track(ctx, c.Session(), analytics.EventPurchase, map[string]interface{}{
			"orderId":    record.ID,
			"value":      record.Totals.GrandTotal,
			"itemCount":  record.Summary().ItemCount,
			"promoCode":  record.PromoCode,
			"shipping":   record.Shipping.Method,
			"paymentVia": record.Payment.Method,
		})
	}
	log.Info("order recorded", zap.Int64("grand_total", record.Totals.GrandTotal))
	return record, nil
}

// IntegrityError means the customer was charged but the order is not in
// the order log. Retrying PlaceOrder with IdempotencyKey finishes it.
type IntegrityError struct {
	IdempotencyKey string
	OrderID        string
	Err            error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("order %s (idempotency key %s) not recorded after payment: %v", e.OrderID, e.IdempotencyKey, e.Err)
}

func (e *IntegrityError) Unwrap() []error {
	return []error{domain.ErrIntegrity, e.Err}
}

// AsIntegrity extracts an *IntegrityError from err.
func AsIntegrity(err error) (*IntegrityError, bool) {
	var ie *IntegrityError
	ok := errors.As(err, &ie)
	return ie, ok
}

func newOrderID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}
