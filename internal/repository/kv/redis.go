package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logging"
)

const (
	redisPrefix     = "storefront"
	redisMaxRetries = 10
)

// Redis stores each entry under storefront:<session>:<key>.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logging.OrNop(logger).Named("kv.redis")}
}

func (r *Redis) Load(ctx context.Context, session, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, entryKey(session, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *Redis) Save(ctx context.Context, session, key string, raw []byte) error {
	if err := r.client.Set(ctx, entryKey(session, key), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, session, key string) error {
	if err := r.client.Del(ctx, entryKey(session, key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Modify uses optimistic locking: the entry is WATCHed and the write is
// retried when another client changed it in between.
func (r *Redis) Modify(ctx context.Context, session, key string, fn func(raw []byte) ([]byte, error)) error {
	k := entryKey(session, key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("redis get failed: %w", err)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, k)
				return nil
			}
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := r.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("optimistic lock lost, retrying", zap.String("key", k), zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return fmt.Errorf("redis update %s: too many concurrent writers", k)
}

func (r *Redis) Sessions(ctx context.Context, key string) ([]string, error) {
	suffix := ":" + key
	prefix := redisPrefix + ":"
	var out []string
	iter := r.client.Scan(ctx, 0, prefix+"*"+suffix, 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if !strings.HasPrefix(k, prefix) || !strings.HasSuffix(k, suffix) {
			continue
		}
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(k, prefix), suffix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func entryKey(session, key string) string {
	return fmt.Sprintf("%s:%s:%s", redisPrefix, session, key)
}
