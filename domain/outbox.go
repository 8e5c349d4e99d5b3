package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Broker routing keys.
const (
	RoutingApplicationCreated = "application.created"
	RoutingStatusChanged      = "application.status.changed"
	RoutingInterviewRequested = "interview.requested"
	RoutingEvaluationRequest  = "evaluation.requested"
	RoutingCatchAll           = "recruitment.events"
)

var routingKeys = map[EventType]string{
	EventApplicationCreated:       RoutingApplicationCreated,
	EventApplicationStatusChanged: RoutingStatusChanged,
	EventInterviewRequested:       RoutingInterviewRequested,
	EventEvaluationRequested:      RoutingEvaluationRequest,
}

// RoutingKey maps an event type to its broker routing key. Unknown types go to
// the catch-all key.
func RoutingKey(t EventType) string {
	if key, ok := routingKeys[t]; ok {
		return key
	}
	return RoutingCatchAll
}

// OutboxEvent is a durable delivery record written in the same transaction as the
// state change it describes.
type OutboxEvent struct {
	ID            uint      `gorm:"primaryKey"`
	AggregateType string    `gorm:"size:64;not null"`
	AggregateID   string    `gorm:"size:64;not null;index"`
	EventType     EventType `gorm:"size:64;not null"`
	Payload       string    `gorm:"type:text;not null"`
	Processed     bool      `gorm:"not null;default:false;index:idx_outbox_pending,priority:1"`
	RetryCount    int       `gorm:"not null;default:0"`
	CreationTime  time.Time `gorm:"not null;index:idx_outbox_pending,priority:2"`
	ProcessedAt   *time.Time
	ErrorMessage  *string `gorm:"type:text"`
	LeaseOwner    *string `gorm:"size:64"`
	LeaseUntil    *time.Time
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// NewOutboxEvent serializes a domain event into an unprocessed outbox row.
func NewOutboxEvent(evt DomainEvent, now time.Time) (OutboxEvent, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("marshal %s payload: %w", evt.Type, err)
	}
	return OutboxEvent{
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.Type,
		Payload:       string(payload),
		CreationTime:  now,
	}, nil
}

// RecordFailure counts a failed delivery attempt. Once maxRetries is reached the
// event is marked processed so it is not retried again; the error stays on the row.
// It reports whether the event was dead-lettered.
func (e *OutboxEvent) RecordFailure(err error, maxRetries int, now time.Time) bool {
	msg := err.Error()
	e.RetryCount++
	e.ErrorMessage = &msg
	e.LeaseOwner = nil
	e.LeaseUntil = nil
	if e.RetryCount >= maxRetries {
		e.Processed = true
		e.ProcessedAt = &now
		return true
	}
	return false
}

// MarkDelivered flags the event as processed.
func (e *OutboxEvent) MarkDelivered(now time.Time) {
	e.Processed = true
	e.ProcessedAt = &now
	e.LeaseOwner = nil
	e.LeaseUntil = nil
}
