// Package cart owns the per-session shopping cart. The in-memory state is
// authoritative; every mutation is written through to the store and
// announced on the broadcast bus so other instances can reload.
package cart

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/broadcast"
	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/repository/kv"
)

const syncTimeout = 5 * time.Second

// Options are the cart caps. IdleTimeout only applies to Sessions.
type Options struct {
	MaxItems           int
	MaxQuantityPerItem int
	IdleTimeout        time.Duration
}

func DefaultOptions() Options {
	return Options{MaxItems: 50, MaxQuantityPerItem: 99, IdleTimeout: time.Hour}
}

// Event is delivered to local listeners after the cart changed.
type Event struct {
	Type  domain.CartEvent      `json:"type"`
	Items []domain.CartLineItem `json:"items"`
	Err   error                 `json:"-"`
}

type Cart struct {
	session string
	origin  string
	store   kv.Store
	bus     broadcast.Bus
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	items   []domain.CartLineItem
	version uint64
	seen    map[string]uint64
	lastErr error

	listenersMu sync.RWMutex
	nextID      int
	listeners   map[int]func(Event)

	unsubscribe func()
}

// New loads the session's cart from store and subscribes it to bus. A load
// failure is logged and the cart starts empty.
func New(ctx context.Context, session string, store kv.Store, bus broadcast.Bus, opts Options, logger *zap.Logger) *Cart {
	if opts.MaxItems <= 0 || opts.MaxQuantityPerItem <= 0 {
		opts = DefaultOptions()
	}
	c := &Cart{
		session:   session,
		origin:    uuid.NewString(),
		store:     store,
		bus:       bus,
		opts:      opts,
		logger:    logging.OrNop(logger).Named("cart").With(zap.String("session", session)),
		seen:      make(map[string]uint64),
		listeners: make(map[int]func(Event)),
	}
	if err := c.load(ctx); err != nil {
		c.logger.Warn("could not load cart, starting empty", zap.Error(err))
	}
	if bus != nil {
		c.unsubscribe = bus.Subscribe(c.handle)
	}
	return c
}

// Session returns the session the cart belongs to.
func (c *Cart) Session() string {
	return c.session
}

// Add merges item into the cart. A repeated id adds to the existing
// quantity. It returns false without changing anything when item is
// malformed or a new line would exceed the distinct-item cap.
func (c *Cart) Add(ctx context.Context, item domain.CartLineItem) bool {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" || item.Price < 0 {
		c.logger.Warn("refusing malformed item", zap.String("item", item.ID), zap.Int64("price", item.Price))
		return false
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	return c.mutate(ctx, func(items []domain.CartLineItem) ([]domain.CartLineItem, bool) {
		if i := indexOf(items, item.ID); i >= 0 {
			items[i].Quantity = c.merge(items[i].Quantity, item.Quantity)
			return items, true
		}
		if len(items) >= c.opts.MaxItems {
			c.logger.Warn("cart capacity reached", zap.Int("max_items", c.opts.MaxItems), zap.String("item", item.ID))
			return items, false
		}
		item.Quantity = c.clamp(item.Quantity)
		return append(items, item), true
	})
}

// Remove deletes the line with id. Unknown ids are a no-op.
func (c *Cart) Remove(ctx context.Context, id string) {
	c.mutate(ctx, func(items []domain.CartLineItem) ([]domain.CartLineItem, bool) {
		i := indexOf(items, id)
		if i < 0 {
			return items, false
		}
		return append(items[:i], items[i+1:]...), true
	})
}

// UpdateQuantity sets the quantity of id, clamped to the per-item cap.
// qty <= 0 removes the line.
func (c *Cart) UpdateQuantity(ctx context.Context, id string, qty int) {
	if qty <= 0 {
		c.Remove(ctx, id)
		return
	}
	c.mutate(ctx, func(items []domain.CartLineItem) ([]domain.CartLineItem, bool) {
		i := indexOf(items, id)
		if i < 0 {
			return items, false
		}
		items[i].Quantity = c.clamp(qty)
		return items, true
	})
}

// Clear empties the cart.
func (c *Cart) Clear(ctx context.Context) {
	c.mutate(ctx, func([]domain.CartLineItem) ([]domain.CartLineItem, bool) {
		return nil, true
	})
}

// Deduct removes the quantities of ordered from the cart. Lines added or
// increased after ordered was taken stay in the cart.
func (c *Cart) Deduct(ctx context.Context, ordered []domain.CartLineItem) {
	c.mutate(ctx, func(items []domain.CartLineItem) ([]domain.CartLineItem, bool) {
		changed := false
		for _, o := range ordered {
			i := indexOf(items, o.ID)
			if i < 0 || o.Quantity <= 0 {
				continue
			}
			changed = true
			if items[i].Quantity <= o.Quantity {
				items = append(items[:i], items[i+1:]...)
				continue
			}
			items[i].Quantity -= o.Quantity
		}
		return items, changed
	})
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []domain.CartLineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.items)
}

func (c *Cart) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, it := range c.items {
		total += it.LineTotal()
	}
	return total
}

func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, it := range c.items {
		count += it.Quantity
	}
	return count
}

// LastPersistError returns the error of the most recent write, or nil when
// it succeeded.
func (c *Cart) LastPersistError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers fn for cart events. The returned function removes it.
func (c *Cart) Subscribe(fn func(Event)) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()
	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// Reload replaces the in-memory state with what the store holds.
func (c *Cart) Reload(ctx context.Context) error {
	return c.load(ctx)
}

// Close detaches the cart from the broadcast bus.
func (c *Cart) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Cart) mutate(ctx context.Context, fn func([]domain.CartLineItem) ([]domain.CartLineItem, bool)) bool {
	c.mu.Lock()
	next, changed := fn(cloneItems(c.items))
	if !changed {
		c.mu.Unlock()
		return false
	}
	c.items = next
	c.version++
	version := c.version
	snapshot := cloneItems(next)
	err := c.store.Set(ctx, c.session, kv.KeyCart, snapshot)
	c.lastErr = err
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("cart changes may not survive a reload", zap.Error(err))
		c.emit(Event{Type: domain.EventStorageError, Items: snapshot, Err: err})
	}
	c.emit(Event{Type: domain.EventCartUpdated, Items: snapshot})

	if err == nil && c.bus != nil {
		n := broadcast.Notification{Session: c.session, Key: kv.KeyCart, Origin: c.origin, Version: version}
		if perr := c.bus.Publish(ctx, n); perr != nil {
			c.logger.Warn("publish cart change", zap.Error(perr))
		}
	}
	return true
}

func (c *Cart) handle(n broadcast.Notification) {
	if n.Session != c.session || n.Key != kv.KeyCart || n.Origin == c.origin {
		return
	}
	c.mu.Lock()
	if n.Version <= c.seen[n.Origin] {
		c.mu.Unlock()
		c.logger.Debug("ignoring stale notification", zap.String("origin", n.Origin), zap.Uint64("version", n.Version))
		return
	}
	c.seen[n.Origin] = n.Version
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if err := c.load(ctx); err != nil {
		c.logger.Warn("sync from store failed", zap.Error(err))
		return
	}
	c.emit(Event{Type: domain.EventCartSynced, Items: c.Items()})
}

func (c *Cart) load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stored []domain.CartLineItem
	found, err := c.store.Get(ctx, c.session, kv.KeyCart, &stored)
	if err != nil {
		return err
	}
	if !found {
		stored = nil
	}
	c.items = c.sanitize(stored)
	return nil
}

// sanitize enforces the cart invariants on data read from the store, which
// another writer may have left in any shape.
func (c *Cart) sanitize(in []domain.CartLineItem) []domain.CartLineItem {
	var out []domain.CartLineItem
	for _, it := range in {
		if it.ID == "" || it.Quantity <= 0 || it.Price < 0 {
			continue
		}
		if i := indexOf(out, it.ID); i >= 0 {
			out[i].Quantity = c.merge(out[i].Quantity, it.Quantity)
			continue
		}
		if len(out) >= c.opts.MaxItems {
			continue
		}
		it.Quantity = c.clamp(it.Quantity)
		out = append(out, it)
	}
	return out
}

func (c *Cart) emit(ev Event) {
	c.listenersMu.RLock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Cart) clamp(qty int) int {
	if qty > c.opts.MaxQuantityPerItem {
		return c.opts.MaxQuantityPerItem
	}
	return qty
}

// merge adds two positive quantities, saturating at the per-item cap.
func (c *Cart) merge(have, add int) int {
	if add >= c.opts.MaxQuantityPerItem-have {
		return c.opts.MaxQuantityPerItem
	}
	return c.clamp(have + add)
}

func indexOf(items []domain.CartLineItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func cloneItems(items []domain.CartLineItem) []domain.CartLineItem {
	if len(items) == 0 {
		return []domain.CartLineItem{}
	}
	out := make([]domain.CartLineItem, len(items))
	copy(out, items)
	return out
}
