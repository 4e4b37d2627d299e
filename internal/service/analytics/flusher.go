package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/repository/kv"
)

// MessageWriter is the part of *kafka.Writer the flusher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// Flusher periodically drains every session queue into Kafka.
type Flusher struct {
	store    kv.Store
	writer   MessageWriter
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

// NewFlusher drains queues every interval. limit is the tracker's queue cap,
// applied again when failed batches are put back.
func NewFlusher(store kv.Store, writer MessageWriter, interval time.Duration, limit int, logger *zap.Logger) *Flusher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Flusher{
		store:    store,
		writer:   writer,
		interval: interval,
		limit:    limit,
		logger:   logging.OrNop(logger).Named("analytics.flusher"),
	}
}

// Run flushes on every tick until ctx is done.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := f.Flush(ctx); err != nil {
				f.logger.Warn("flush failed", zap.Error(err))
			} else if n > 0 {
				f.logger.Info("flushed analytics events", zap.Int("count", n))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Flush ships all queued events and returns how many were written. A
// session whose batch could not be written gets its events back.
func (f *Flusher) Flush(ctx context.Context) (int, error) {
	sessions, err := f.store.Sessions(ctx, kv.KeyAnalyticsQueue)
	if err != nil {
		return 0, err
	}
	written := 0
	var firstErr error
	for _, session := range sessions {
		events, err := f.take(ctx, session)
		if err != nil {
			f.logger.Warn("take queue", zap.String("session", session), zap.Error(err))
			continue
		}
		if len(events) == 0 {
			continue
		}
		msgs, err := toMessages(session, events)
		if err != nil {
			f.logger.Warn("dropping undecodable events", zap.String("session", session), zap.Error(err))
			continue
		}
		if err := f.writer.WriteMessages(ctx, msgs...); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("write session %s: %w", session, err)
			}
			f.restore(ctx, session, events)
			continue
		}
		written += len(msgs)
	}
	return written, firstErr
}

func (f *Flusher) take(ctx context.Context, session string) ([]domain.AnalyticsEvent, error) {
	var events []domain.AnalyticsEvent
	err := f.store.Update(ctx, session, kv.KeyAnalyticsQueue, func(raw []byte) ([]byte, error) {
		events = nil
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &events); err != nil {
				f.logger.Warn("discarding corrupt analytics queue", zap.String("session", session), zap.Error(err))
				events = nil
			}
		}
		return nil, nil
	})
	return events, err
}

// restore puts events back in front of anything queued since take.
func (f *Flusher) restore(ctx context.Context, session string, events []domain.AnalyticsEvent) {
	err := f.store.Update(ctx, session, kv.KeyAnalyticsQueue, func(raw []byte) ([]byte, error) {
		var queued []domain.AnalyticsEvent
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &queued)
		}
		merged := append(append([]domain.AnalyticsEvent{}, events...), queued...)
		if len(merged) > f.limit {
			merged = merged[len(merged)-f.limit:]
		}
		return json.Marshal(merged)
	})
	if err != nil {
		f.logger.Warn("analytics events lost", zap.String("session", session), zap.Int("count", len(events)), zap.Error(err))
	}
}

func toMessages(session string, events []domain.AnalyticsEvent) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(session),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Event)},
			},
		})
	}
	return msgs, nil
}
