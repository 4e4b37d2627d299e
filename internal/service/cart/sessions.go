package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront/internal/broadcast"
	"storefront/internal/logging"
	"storefront/internal/repository/kv"
)

// Sessions hands out one Cart per session, created on first use. Carts not
// used for Options.IdleTimeout are dropped by Run.
type Sessions struct {
	store  kv.Store
	bus    broadcast.Bus
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	carts map[string]*sessionEntry
}

type sessionEntry struct {
	cart     *Cart
	lastUsed time.Time
}

func NewSessions(store kv.Store, bus broadcast.Bus, opts Options, logger *zap.Logger) *Sessions {
	return &Sessions{
		store:  store,
		bus:    bus,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		carts:  make(map[string]*sessionEntry),
	}
}

func (s *Sessions) Get(ctx context.Context, session string) *Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.carts[session]; ok {
		e.lastUsed = now
		return e.cart
	}
	c := New(ctx, session, s.store, s.bus, s.opts, s.logger)
	s.carts[session] = &sessionEntry{cart: c, lastUsed: now}
	return c
}

// Len returns the number of live carts.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

// Evict closes and drops carts idle since before cutoff. Carts with local
// listeners, such as an open event stream, are kept.
func (s *Sessions) Evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, e := range s.carts {
		if !e.lastUsed.Before(cutoff) || e.cart.hasListeners() {
			continue
		}
		e.cart.Close()
		delete(s.carts, id)
		evicted++
	}
	return evicted
}

// Run evicts idle carts until ctx is done. A zero IdleTimeout keeps every
// cart.
func (s *Sessions) Run(ctx context.Context) error {
	idle := s.opts.IdleTimeout
	if idle <= 0 {
		<-ctx.Done()
		return nil
	}
	logger := logging.OrNop(s.logger).Named("cart.sessions")
	ticker := time.NewTicker(sweepInterval(idle))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Evict(s.now().Add(-idle)); n > 0 {
				logger.Info("evicted idle carts", zap.Int("count", n), zap.Int("live", s.Len()))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func sweepInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < time.Second {
		return time.Second
	}
	if interval > 5*time.Minute {
		return 5 * time.Minute
	}
	return interval
}

// Close detaches every cart from the bus.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.carts {
		e.cart.Close()
		delete(s.carts, id)
	}
}
