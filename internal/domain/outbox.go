package domain

import (
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSent    OutboxStatus = "SENT"
	OutboxFailed  OutboxStatus = "FAILED"
)

const (
	AggregateProperty = "property"

	EventCalendarBooked      = "calendar.booked"
	EventCalendarCancelled   = "calendar.cancelled"
	EventCalendarBlocked     = "calendar.blocked"
	EventCalendarUnblocked   = "calendar.unblocked"
	EventCalendarPriceUpdate = "calendar.price_updated"
	EventCalendarResync      = "calendar.resync_requested"
)

type OutboxEvent struct {
	ID             uuid.UUID    `json:"id"`
	OrganizationID int64        `json:"organization_id"`
	AggregateType  string       `json:"aggregate_type"`
	AggregateID    string       `json:"aggregate_id"`
	EventType      string       `json:"event_type"`
	Topic          string       `json:"topic"`
	PartitionKey   string       `json:"partition_key"`
	Payload        []byte       `json:"payload"`
	Version        int64        `json:"version"`
	Status         OutboxStatus `json:"status"`
	RetryCount     int          `json:"retry_count"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	NextAttemptAt  time.Time    `json:"next_attempt_at"`
	CreatedAt      time.Time    `json:"created_at"`
	SentAt         *time.Time   `json:"sent_at,omitempty"`
}
