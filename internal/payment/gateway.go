// Package payment simulates the external payment gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDeclined is a gateway refusal. The charge did not happen.
	ErrDeclined = errors.New("payment declined")
	// ErrUnavailable means the gateway could not be reached in time or the
	// circuit is open.
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// Charge is one payment attempt. IdempotencyKey lets a real gateway detect
// a resubmitted charge.
type Charge struct {
	IdempotencyKey string
	Amount         int64
	Method         string
}

type Result struct {
	TransactionID string    `json:"transactionId"`
	ProcessedAt   time.Time `json:"processedAt"`
}

type Gateway interface {
	Process(ctx context.Context, c Charge) (Result, error)
}

var declineReasons = []string{
	"insufficient funds",
	"card expired",
	"issuer unavailable",
	"suspected fraud",
	"unknown reason",
}

// Simulated waits for a fixed delay and then fails with probability
// failureRate.
type Simulated struct {
	delay       time.Duration
	failureRate float64
	roll        func() float64
	now         func() time.Time
}

func NewSimulated(delay time.Duration, failureRate float64) *Simulated {
	return &Simulated{
		delay:       delay,
		failureRate: failureRate,
		roll:        rand.Float64,
		now:         time.Now,
	}
}

func (s *Simulated) Process(ctx context.Context, c Charge) (Result, error) {
	if c.Amount < 0 {
		return Result{}, fmt.Errorf("%w: negative amount", ErrDeclined)
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	if r := s.roll(); r < s.failureRate {
		reason := declineReasons[int(r*1000)%len(declineReasons)]
		return Result{}, fmt.Errorf("%w: %s", ErrDeclined, reason)
	}
	return Result{
		TransactionID: "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		ProcessedAt:   s.now().UTC(),
	}, nil
}
