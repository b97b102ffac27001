package drip

import (
	"context"
	"time"
)

// EventType names a drip lifecycle event
type EventType string

const (
	EventEnrolled        EventType = "enrolled"
	EventStageSent       EventType = "stage_sent"
	EventDeliveryFailed  EventType = "delivery_failed"
	EventLinkClicked     EventType = "link_clicked"
	EventReviewSubmitted EventType = "review_submitted"
	EventUnsubscribed    EventType = "unsubscribed"
)

// Event is published after a transition has been persisted
type Event struct {
	Type       EventType `json:"type"`
	RequestID  uint      `json:"request_id"`
	CompanyID  uint      `json:"company_id"`
	Stage      string    `json:"stage,omitempty"`
	Channels   []string  `json:"channels,omitempty"`
	Rating     int       `json:"rating,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventSink receives drip events. Publish errors never roll back a transition.
type EventSink interface {
	Publish(ctx context.Context, e Event) error
}
