package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"recruitment/domain"
)

// ErrDropMessage tells the consumer to discard a message instead of requeueing it.
var ErrDropMessage = errors.New("drop message")

// Message is one serialized domain event handed to the broker.
type Message struct {
	ID            string
	EventType     string
	AggregateType string
	AggregateID   string
	Body          []byte
	CreatedAt     time.Time
}

// RabbitMQ publishes domain events to a topic exchange and consumes evaluation jobs.
type RabbitMQ struct {
	conn     *amqp.Connection
	pubMu    sync.Mutex
	pubCh    *amqp.Channel
	exchange string
	queue    string
	prefetch int
	logger   *zap.Logger
}

// NewRabbitMQ connects, declares the durable topic exchange and the evaluation
// queue bound to evaluation.requested, and puts the publish channel in confirm mode.
func NewRabbitMQ(cfg BrokerConfig, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // args
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(
		cfg.EvaluationQueue, // queue name
		true,                // durable
		false,               // delete when unused
		false,               // exclusive
		false,               // no-wait
		nil,                 // args
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.EvaluationQueue, err)
	}

	if err := ch.QueueBind(q.Name, domain.RoutingEvaluationRequest, cfg.Exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind queue %s: %w", q.Name, err)
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	logger = orNop(logger)
	logger.Info("connected to rabbitmq", zap.String("exchange", cfg.Exchange), zap.String("queue", q.Name))

	return &RabbitMQ{
		conn:     conn,
		pubCh:    ch,
		exchange: cfg.Exchange,
		queue:    q.Name,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

// Publish sends msg with routingKey and waits for the broker confirm.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	confirm, err := r.pubCh.PublishWithDeferredConfirmWithContext(
		ctx,
		r.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         msg.EventType,
			Timestamp:    msg.CreatedAt,
			Headers: amqp.Table{
				"aggregate_type": msg.AggregateType,
				"aggregate_id":   msg.AggregateID,
			},
			Body: msg.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s", routingKey)
	}
	return nil
}

// ConsumeEvaluations delivers evaluation requests to handler until ctx is cancelled.
// Messages are acked after handler returns nil, rejected without requeue on
// ErrDropMessage or malformed bodies, and requeued on any other error.
func (r *RabbitMQ) ConsumeEvaluations(ctx context.Context, handler func(context.Context, domain.EvaluationRequestedPayload) error) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(
		ctx,
		r.queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("evaluation delivery channel closed")
			}
			r.handleDelivery(ctx, d, handler)
		}
	}
}

func (r *RabbitMQ) handleDelivery(ctx context.Context, d amqp.Delivery, handler func(context.Context, domain.EvaluationRequestedPayload) error) {
	log := r.logger.With(zap.String("message_id", d.MessageId))

	var payload domain.EvaluationRequestedPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		log.Warn("invalid evaluation message", zap.Error(err))
		if err := d.Reject(false); err != nil {
			log.Error("reject message", zap.Error(err))
		}
		return
	}

	err := handler(ctx, payload)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			log.Error("ack message", zap.Error(err))
		}
	case errors.Is(err, ErrDropMessage):
		if err := d.Reject(false); err != nil {
			log.Error("reject message", zap.Error(err))
		}
	default:
		log.Warn("evaluation failed, requeueing", zap.Error(err))
		if err := d.Nack(false, true); err != nil {
			log.Error("nack message", zap.Error(err))
		}
	}
}

// Close closes the publish channel and connection.
func (r *RabbitMQ) Close() error {
	var errs []error
	if r.pubCh != nil {
		errs = append(errs, r.pubCh.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}
