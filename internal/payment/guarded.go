package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"storefront/internal/logging"
)

const (
	breakerName         = "payment"
	breakerTripFailures = 5
	breakerOpenTimeout  = 30 * time.Second
)

// Guarded bounds every charge by a timeout and stops calling the gateway
// after repeated outages. It never retries: a retried charge could be
// captured twice.
type Guarded struct {
	next    Gateway
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[Result]
	logger  *zap.Logger
}

func NewGuarded(next Gateway, timeout time.Duration, logger *zap.Logger) *Guarded {
	logger = logging.OrNop(logger).Named("payment")
	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDeclined)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Guarded{next: next, timeout: timeout, cb: cb, logger: logger}
}

func (g *Guarded) Process(ctx context.Context, c Charge) (Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := g.cb.Execute(func() (Result, error) {
		return g.next.Process(ctx, c)
	})
	switch {
	case err == nil:
		g.logger.Info("charge captured",
			zap.String("idempotency_key", c.IdempotencyKey),
			zap.Int64("amount", c.Amount),
			zap.String("transaction_id", res.TransactionID),
			zap.Duration("took", time.Since(start)))
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.Warn("charge timed out", zap.String("idempotency_key", c.IdempotencyKey), zap.Duration("timeout", g.timeout))
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		g.logger.Info("charge failed", zap.String("idempotency_key", c.IdempotencyKey), zap.Error(err))
		return Result{}, err
	}
}

// State reports the breaker state, for readiness checks.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}
