package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/infrastructure"
)

// messageNamespace scopes the deterministic message ids derived from outbox ids.
var messageNamespace = uuid.MustParse("6f1c2a4e-3b7d-4c55-9a0e-2d8f5b71c9a3")

// DispatcherConfig tunes the outbox dispatcher.
type DispatcherConfig struct {
	BatchSize  int
	MaxRetries int
	LeaseTTL   time.Duration
	// PublishTimeout bounds one publish. A batch stops publishing once the
	// remaining lease cannot cover another publish.
	PublishTimeout time.Duration
	// Owner identifies this dispatcher instance in lease columns.
	Owner string
}

// DispatchStats summarizes one dispatcher pass.
type DispatchStats struct {
	Claimed      int
	Delivered    int
	Failed       int
	DeadLettered int
	Released     int
}

// Dispatcher publishes pending outbox events to the broker.
type Dispatcher struct {
	store     *infrastructure.Store
	publisher Publisher
	cfg       DispatcherConfig
	clock     Clock
	logger    *zap.Logger
}

func NewDispatcher(store *infrastructure.Store, publisher Publisher, cfg DispatcherConfig, clock Clock, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.LeaseTTL < 2*cfg.PublishTimeout {
		cfg.LeaseTTL = max(30*time.Second, 2*cfg.PublishTimeout)
	}
	if cfg.Owner == "" {
		host, _ := os.Hostname()
		cfg.Owner = host + "-" + strconv.Itoa(os.Getpid())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, publisher: publisher, cfg: cfg, clock: clock, logger: logger}
}

// Tick claims one batch and delivers each event independently, so a failing
// event never blocks the others. Failed events are retried on later ticks until
// MaxRetries is reached.
func (d *Dispatcher) Tick(ctx context.Context) (DispatchStats, error) {
	ctx, span := tracer.Start(ctx, "dispatcher.tick")
	defer span.End()

	var stats DispatchStats
	claimedAt := d.clock.now()
	leaseDeadline := claimedAt.Add(d.cfg.LeaseTTL)
	events, err := d.store.ClaimOutbox(ctx, d.cfg.Owner, d.cfg.BatchSize, d.cfg.LeaseTTL, claimedAt)
	if err != nil {
		span.RecordError(err)
		return stats, err
	}
	stats.Claimed = len(events)
	span.SetAttributes(attribute.Int("outbox.claimed", stats.Claimed))

	var saveErrs []error
	for i := range events {
		if d.clock.now().Add(d.cfg.PublishTimeout).After(leaseDeadline) {
			released, err := d.release(ctx, events[i:])
			if err != nil {
				saveErrs = append(saveErrs, err)
			}
			stats.Released = released
			break
		}

		evt := &events[i]
		routingKey := domain.RoutingKey(evt.EventType)

		pubErr := d.publish(ctx, routingKey, evt)
		now := d.clock.now()
		if pubErr == nil {
			evt.MarkDelivered(now)
			stats.Delivered++
		} else {
			failure := &domain.DeliveryFailure{EventID: evt.ID, RoutingKey: routingKey, Err: pubErr}
			stats.Failed++
			if evt.RecordFailure(failure, d.cfg.MaxRetries, now) {
				stats.DeadLettered++
				d.logger.Error("outbox event dead-lettered",
					zap.Uint("event_id", evt.ID),
					zap.String("event_type", string(evt.EventType)),
					zap.String("aggregate_id", evt.AggregateID),
					zap.Int("retry_count", evt.RetryCount),
					zap.Error(pubErr),
				)
			} else {
				d.logger.Warn("outbox delivery failed",
					zap.Uint("event_id", evt.ID),
					zap.String("routing_key", routingKey),
					zap.Int("retry_count", evt.RetryCount),
					zap.Error(pubErr),
				)
			}
		}

		if err := d.store.SaveOutboxResult(ctx, evt); err != nil {
			saveErrs = append(saveErrs, err)
		}
	}

	if stats.Claimed > 0 {
		d.logger.Info("outbox dispatch finished",
			zap.Int("claimed", stats.Claimed),
			zap.Int("delivered", stats.Delivered),
			zap.Int("failed", stats.Failed),
			zap.Int("dead_lettered", stats.DeadLettered),
			zap.Int("released", stats.Released),
		)
	}
	if err := errors.Join(saveErrs...); err != nil {
		span.RecordError(err)
		return stats, fmt.Errorf("record outbox results: %w", err)
	}
	return stats, nil
}

func (d *Dispatcher) publish(ctx context.Context, routingKey string, evt *domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()
	return d.publisher.Publish(ctx, routingKey, messageFor(evt))
}

// release hands unpublished events back before their lease runs out, so another
// pass can claim them at once instead of waiting for expiry.
func (d *Dispatcher) release(ctx context.Context, events []domain.OutboxEvent) (int, error) {
	ids := make([]uint, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	d.logger.Warn("outbox lease running out, releasing rest of batch", zap.Int("released", len(ids)))
	return d.store.ReleaseOutbox(ctx, d.cfg.Owner, ids)
}

// Run is a Job that drains the outbox once per call.
func (d *Dispatcher) Run(ctx context.Context) error {
	_, err := d.Tick(ctx)
	return err
}

// DeadLettered lists events that exhausted their retries.
func (d *Dispatcher) DeadLettered(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return d.store.DeadLettered(ctx, d.cfg.MaxRetries, limit)
}

// messageFor builds the broker message. The id is derived from the outbox id so
// a redelivery after a lost confirm carries the same id.
func messageFor(evt *domain.OutboxEvent) infrastructure.Message {
	return infrastructure.Message{
		ID:            uuid.NewSHA1(messageNamespace, []byte(strconv.FormatUint(uint64(evt.ID), 10))).String(),
		EventType:     string(evt.EventType),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		Body:          []byte(evt.Payload),
		CreatedAt:     evt.CreationTime,
	}
}
