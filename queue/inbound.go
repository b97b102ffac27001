package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rankitpro/drip"
	"rankitpro/models"
)

// Inbound message types
const (
	InboundLinkClicked     = "link_clicked"
	InboundReviewSubmitted = "review_submitted"
	InboundUnsubscribe     = "unsubscribe"
)

var ErrMalformed = errors.New("malformed inbound message")

// EventIngester applies customer events to drips
type EventIngester interface {
	LinkClicked(ctx context.Context, requestID uint, at time.Time) (*models.ReviewDrip, error)
	ReviewSubmitted(ctx context.Context, requestID uint, rating int, at time.Time) (*models.ReviewDrip, error)
	Unsubscribe(ctx context.Context, requestID uint, at time.Time) (*models.ReviewDrip, error)
}

// InboundMessage is the JSON body of a review_drip_inbound message
type InboundMessage struct {
	Type       string     `json:"type"`
	RequestID  uint       `json:"request_id"`
	Rating     int        `json:"rating,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// HandleInbound decodes one message and applies it. Messages without a
// timestamp are applied at now.
func HandleInbound(ctx context.Context, ingester EventIngester, body []byte, now time.Time) error {
	var msg InboundMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.RequestID == 0 {
		return fmt.Errorf("%w: request_id is required", ErrMalformed)
	}

	at := now
	if msg.OccurredAt != nil && !msg.OccurredAt.IsZero() {
		at = *msg.OccurredAt
	}

	var err error
	switch msg.Type {
	case InboundLinkClicked:
		_, err = ingester.LinkClicked(ctx, msg.RequestID, at)
	case InboundReviewSubmitted:
		_, err = ingester.ReviewSubmitted(ctx, msg.RequestID, msg.Rating, at)
	case InboundUnsubscribe:
		_, err = ingester.Unsubscribe(ctx, msg.RequestID, at)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Type)
	}
	return err
}

// IsPermanent reports errors that retrying cannot fix
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, drip.ErrNotFound) ||
		errors.Is(err, drip.ErrUnsubscribed) ||
		errors.Is(err, drip.ErrInvalidRating) ||
		errors.Is(err, drip.ErrIntegrity)
}
