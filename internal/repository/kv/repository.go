// Package kv is a session-scoped key-value store with JSON values. It plays
// the role of per-profile browser storage for the cart and order recorder.
package kv

import (
	"context"
	"errors"
)

// Keys used by the storefront.
const (
	KeyCart           = "cart"
	KeyOrders         = "orders"
	KeyLastOrder      = "last_order"
	KeyAnalyticsQueue = "analytics_queue"
	KeyPendingOrders  = "pending_orders"
)

// ErrQuotaExceeded is returned when an encoded value is larger than the
// configured per-value quota. It is always wrapped in domain.ErrPersistence.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store reads and writes JSON values per session.
type Store interface {
	// Get decodes the value into dst. found is false when the key is absent
	// or holds a value that is not valid JSON for dst.
	Get(ctx context.Context, session, key string, dst any) (found bool, err error)
	Set(ctx context.Context, session, key string, value any) error
	Delete(ctx context.Context, session, key string) error
	// Update runs fn as a single read-modify-write. raw is nil when the key is
	// absent; returning a nil slice deletes the key.
	Update(ctx context.Context, session, key string, fn func(raw []byte) ([]byte, error)) error
	// Sessions lists the sessions that currently hold key.
	Sessions(ctx context.Context, key string) ([]string, error)
}

// Backend stores raw encoded values. Load returns domain.ErrNotFound for
// absent keys.
type Backend interface {
	Load(ctx context.Context, session, key string) ([]byte, error)
	Save(ctx context.Context, session, key string, raw []byte) error
	Remove(ctx context.Context, session, key string) error
	Modify(ctx context.Context, session, key string, fn func(raw []byte) ([]byte, error)) error
	Sessions(ctx context.Context, key string) ([]string, error)
}
