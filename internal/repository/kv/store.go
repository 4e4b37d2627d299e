package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logging"
)

// JSONStore encodes values as JSON on top of a Backend and enforces the
// per-value quota.
type JSONStore struct {
	backend       Backend
	maxValueBytes int
	logger        *zap.Logger
}

// New wraps backend. maxValueBytes <= 0 disables the quota.
func New(backend Backend, maxValueBytes int, logger *zap.Logger) *JSONStore {
	return &JSONStore{
		backend:       backend,
		maxValueBytes: maxValueBytes,
		logger:        logging.OrNop(logger).Named("kv"),
	}
}

func (s *JSONStore) Get(ctx context.Context, session, key string, dst any) (bool, error) {
	raw, err := s.backend.Load(ctx, session, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		s.logger.Warn("load failed", zap.String("session", session), zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("kv get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("discarding corrupt value", zap.String("session", session), zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *JSONStore) Set(ctx context.Context, session, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %s: encode: %w", key, err)
	}
	if err := s.checkQuota(raw); err != nil {
		s.logger.Warn("quota exceeded", zap.String("session", session), zap.String("key", key), zap.Int("bytes", len(raw)))
		return fmt.Errorf("kv set %s: %w: %w", key, domain.ErrPersistence, err)
	}
	if err := s.backend.Save(ctx, session, key, raw); err != nil {
		s.logger.Warn("save failed", zap.String("session", session), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("kv set %s: %w: %w", key, domain.ErrPersistence, err)
	}
	return nil
}

func (s *JSONStore) Delete(ctx context.Context, session, key string) error {
	if err := s.backend.Remove(ctx, session, key); err != nil {
		return fmt.Errorf("kv delete %s: %w: %w", key, domain.ErrPersistence, err)
	}
	return nil
}

func (s *JSONStore) Update(ctx context.Context, session, key string, fn func(raw []byte) ([]byte, error)) error {
	var fnErr error
	err := s.backend.Modify(ctx, session, key, func(raw []byte) ([]byte, error) {
		next, err := fn(raw)
		if err != nil {
			fnErr = err
			return nil, err
		}
		fnErr = nil
		if err := s.checkQuota(next); err != nil {
			return nil, err
		}
		return next, nil
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil && errors.Is(err, fnErr):
		return err
	default:
		s.logger.Warn("update failed", zap.String("session", session), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("kv update %s: %w: %w", key, domain.ErrPersistence, err)
	}
}

func (s *JSONStore) Sessions(ctx context.Context, key string) ([]string, error) {
	sessions, err := s.backend.Sessions(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("kv sessions %s: %w", key, err)
	}
	return sessions, nil
}

func (s *JSONStore) checkQuota(raw []byte) error {
	if s.maxValueBytes > 0 && len(raw) > s.maxValueBytes {
		return ErrQuotaExceeded
	}
	return nil
}

// Append adds item to the JSON array under key, keeping at most limit
// entries (oldest dropped). limit <= 0 keeps everything. A value that is not
// an array is replaced.
func Append(ctx context.Context, s Store, session, key string, item any, limit int) error {
	encoded, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("kv append %s: encode: %w", key, err)
	}
	return s.Update(ctx, session, key, func(raw []byte) ([]byte, error) {
		var list []json.RawMessage
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &list); err != nil {
				list = nil
			}
		}
		list = append(list, encoded)
		if limit > 0 && len(list) > limit {
			list = list[len(list)-limit:]
		}
		return json.Marshal(list)
	})
}
