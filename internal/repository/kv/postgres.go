package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logging"
)

// Postgres stores values in the storage_entries table.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logging.OrNop(logger).Named("kv.postgres")}
}

func (r *Postgres) Load(ctx context.Context, session, key string) ([]byte, error) {
	const q = `
SELECT value::text
FROM storage_entries
WHERE session_id = $1 AND key = $2
`
	var value string
	err := r.pool.QueryRow(ctx, q, session, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("load", zap.String("session", session), zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return []byte(value), nil
}

func (r *Postgres) Save(ctx context.Context, session, key string, raw []byte) error {
	if err := upsert(ctx, r.pool, session, key, raw); err != nil {
		r.logger.Error("save", zap.String("session", session), zap.String("key", key), zap.Error(err))
		return err
	}
	r.logger.Debug("saved", zap.String("session", session), zap.String("key", key), zap.Int("bytes", len(raw)))
	return nil
}

func (r *Postgres) Remove(ctx context.Context, session, key string) error {
	const q = `DELETE FROM storage_entries WHERE session_id = $1 AND key = $2`
	if _, err := r.pool.Exec(ctx, q, session, key); err != nil {
		r.logger.Error("remove", zap.String("session", session), zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Modify serializes concurrent writers of one entry with a transaction-scoped
// advisory lock. The lock is taken even when the row does not exist yet.
func (r *Postgres) Modify(ctx context.Context, session, key string, fn func(raw []byte) ([]byte, error)) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, session, key); err != nil {
		return fmt.Errorf("lock entry: %w", err)
	}

	const sel = `
SELECT value::text
FROM storage_entries
WHERE session_id = $1 AND key = $2
FOR UPDATE
`
	var current []byte
	var value string
	switch err := tx.QueryRow(ctx, sel, session, key).Scan(&value); {
	case err == nil:
		current = []byte(value)
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return fmt.Errorf("select entry: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM storage_entries WHERE session_id = $1 AND key = $2`, session, key); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
	} else if err := upsert(ctx, tx, session, key, next); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("modify commit", zap.String("session", session), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Postgres) Sessions(ctx context.Context, key string) ([]string, error) {
	const q = `
SELECT session_id
FROM storage_entries
WHERE key = $1
ORDER BY session_id
`
	rows, err := r.pool.Query(ctx, q, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsert(ctx context.Context, db execer, session, key string, raw []byte) error {
	const q = `
INSERT INTO storage_entries (session_id, key, value, updated_at)
VALUES ($1, $2, $3::jsonb, now())
ON CONFLICT (session_id, key) DO UPDATE SET
    value = EXCLUDED.value,
    updated_at = EXCLUDED.updated_at
`
	_, err := db.Exec(ctx, q, session, key, string(raw))
	return err
}
