package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository/kv"
)

var errCorruptLog = errors.New("order log is not a JSON array")

// Orders returns the session's order log, oldest first.
func (s *Service) Orders(ctx context.Context, session string) ([]domain.OrderRecord, error) {
	var orders []domain.OrderRecord
	if _, err := s.store.Get(ctx, session, kv.KeyOrders, &orders); err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.OrderRecord{}
	}
	return orders, nil
}

func (s *Service) Order(ctx context.Context, session, id string) (domain.OrderRecord, error) {
	orders, err := s.Orders(ctx, session)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	for _, o := range orders {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.OrderRecord{}, domain.ErrNotFound
}

// LastOrder returns the summary shown on the confirmation page.
func (s *Service) LastOrder(ctx context.Context, session string) (domain.OrderSummary, error) {
	var summary domain.OrderSummary
	found, err := s.store.Get(ctx, session, kv.KeyLastOrder, &summary)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	if !found {
		return domain.OrderSummary{}, domain.ErrNotFound
	}
	return summary, nil
}

func (s *Service) committedByKey(ctx context.Context, session, key string) (domain.OrderRecord, bool, error) {
	return findByKey(ctx, s.store, session, kv.KeyOrders, key)
}

func (s *Service) pendingByKey(ctx context.Context, session, key string) (domain.OrderRecord, bool, error) {
	return findByKey(ctx, s.store, session, kv.KeyPendingOrders, key)
}

func findByKey(ctx context.Context, store kv.Store, session, storeKey, idempotencyKey string) (domain.OrderRecord, bool, error) {
	var orders []domain.OrderRecord
	if _, err := store.Get(ctx, session, storeKey, &orders); err != nil {
		return domain.OrderRecord{}, false, err
	}
	for _, o := range orders {
		if o.IdempotencyKey == idempotencyKey {
			return o, true, nil
		}
	}
	return domain.OrderRecord{}, false, nil
}

// appendOrder adds record to the log unless an order with the same
// idempotency key is already there. A log that cannot be decoded is left
// untouched.
func (s *Service) appendOrder(ctx context.Context, session string, record domain.OrderRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	return s.store.Update(ctx, session, kv.KeyOrders, func(raw []byte) ([]byte, error) {
		var log []json.RawMessage
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &log); err != nil {
				return nil, errCorruptLog
			}
		}
		for _, entry := range log {
			var probe struct {
				IdempotencyKey string `json:"idempotencyKey"`
			}
			if json.Unmarshal(entry, &probe) == nil && probe.IdempotencyKey == record.IdempotencyKey {
				return raw, nil
			}
		}
		return json.Marshal(append(log, encoded))
	})
}

func (s *Service) dropPending(ctx context.Context, session, key string) error {
	return s.store.Update(ctx, session, kv.KeyPendingOrders, func(raw []byte) ([]byte, error) {
		var pending []domain.OrderRecord
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &pending); err != nil {
				return nil, nil
			}
		}
		kept := pending[:0]
		for _, o := range pending {
			if o.IdempotencyKey != key {
				kept = append(kept, o)
			}
		}
		if len(kept) == 0 {
			return nil, nil
		}
		return json.Marshal(kept)
	})
}
