package utils

import (
	"context"
	"fmt"

	"rankitpro/models"
)

// ChannelSender delivers a notification on one channel
type ChannelSender interface {
	Send(ctx context.Context, n models.Notification) (string, error)
}

// ChannelNotifier routes each notification to the sender registered for
// its channel
type ChannelNotifier struct {
	senders map[string]ChannelSender
}

func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{senders: make(map[string]ChannelSender)}
}

// Register sets the sender of a channel. Call it during startup only.
func (c *ChannelNotifier) Register(channel string, sender ChannelSender) {
	c.senders[channel] = sender
}

// Channels lists the registered channels
func (c *ChannelNotifier) Channels() []string {
	out := make([]string, 0, len(c.senders))
	for ch := range c.senders {
		out = append(out, ch)
	}
	return out
}

func (c *ChannelNotifier) Send(ctx context.Context, n models.Notification) (string, error) {
	sender, ok := c.senders[n.Channel]
	if !ok {
		return "", fmt.Errorf("no sender registered for channel %q", n.Channel)
	}
	return sender.Send(ctx, n)
}
