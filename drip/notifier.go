package drip

import (
	"context"

	"rankitpro/models"
)

// Message is one rendered stage message for a single channel
type Message = models.Notification

// Notifier delivers a message and returns the provider's message id once the
// provider accepted it
type Notifier interface {
	Send(ctx context.Context, msg Message) (string, error)
}
