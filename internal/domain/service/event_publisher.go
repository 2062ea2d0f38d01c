package service

import (
	"context"
	"time"
)

// GroupFinalizedMember is one member of a finalized group as seen by order processing.
type GroupFinalizedMember struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
}

// GroupFinalizedEvent is the value copy of a confirmed group handed to order processing.
type GroupFinalizedEvent struct {
	RequestID   string                 `json:"request_id,omitempty"` // For distributed tracing
	EventID     string                 `json:"event_id"`
	GroupID     string                 `json:"group_id"`
	Members     []GroupFinalizedMember `json:"members"`
	Restaurant  string                 `json:"restaurant"`
	Location    string                 `json:"location"`
	WindowStart time.Time              `json:"window_start"`
	WindowEnd   time.Time              `json:"window_end"`
	FormedAt    time.Time              `json:"formed_at"`
}

// EventPublisher defines the interface for publishing events to a message queue
type EventPublisher interface {
	// PublishGroupFinalized publishes a finalized group for asynchronous order processing
	PublishGroupFinalized(ctx context.Context, event *GroupFinalizedEvent) error

	// Close releases any resources held by the publisher
	Close() error
}
