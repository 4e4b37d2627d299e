// Package analytics queues storefront events per session and ships them to
// Kafka in batches. Delivery is best-effort.
package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/repository/kv"
)

// DefaultQueueLimit caps the per-session queue; the oldest events are dropped.
const DefaultQueueLimit = 100

// Event names.
const (
	EventAddToCart      = "add_to_cart"
	EventRemoveFromCart = "remove_from_cart"
	EventBeginCheckout  = "begin_checkout"
	EventApplyPromo     = "apply_promo"
	EventPurchase       = "purchase"
)

type Tracker struct {
	store  kv.Store
	limit  int
	now    func() time.Time
	logger *zap.Logger
}

func NewTracker(store kv.Store, limit int, logger *zap.Logger) *Tracker {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Tracker{
		store:  store,
		limit:  limit,
		now:    time.Now,
		logger: logging.OrNop(logger).Named("analytics"),
	}
}

// Track appends an event to the session queue. Failures are only logged.
func (t *Tracker) Track(ctx context.Context, session, event string, params map[string]interface{}) {
	ev := domain.AnalyticsEvent{Event: event, Params: params, Timestamp: t.now().UnixMilli()}
	if err := kv.Append(ctx, t.store, session, kv.KeyAnalyticsQueue, ev, t.limit); err != nil {
		t.logger.Debug("dropping analytics event", zap.String("session", session), zap.String("event", event), zap.Error(err))
	}
}

// Pending returns the queued events of session, oldest first.
func (t *Tracker) Pending(ctx context.Context, session string) ([]domain.AnalyticsEvent, error) {
	var events []domain.AnalyticsEvent
	if _, err := t.store.Get(ctx, session, kv.KeyAnalyticsQueue, &events); err != nil {
		return nil, err
	}
	return events, nil
}
