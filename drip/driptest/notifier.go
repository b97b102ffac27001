package driptest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rankitpro/drip"
	"rankitpro/models"
)

var ErrSendFailed = errors.New("provider rejected message")

// Notifier records messages instead of delivering them
type Notifier struct {
	mu   sync.Mutex
	sent []models.Notification
	fail map[string]error

	// Delay holds every send for this long, to widen race windows in tests
	Delay time.Duration
	// OnSend runs before a message is accepted
	OnSend func(msg models.Notification)
}

var _ drip.Notifier = (*Notifier)(nil)

func NewNotifier() *Notifier {
	return &Notifier{fail: make(map[string]error)}
}

// FailChannel makes every send on channel return err. A nil err heals it.
func (n *Notifier) FailChannel(channel string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.fail, channel)
		return
	}
	n.fail[channel] = err
}

func (n *Notifier) Send(ctx context.Context, msg models.Notification) (string, error) {
	if n.Delay > 0 {
		select {
		case <-time.After(n.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if n.OnSend != nil {
		n.OnSend(msg)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[msg.Channel]; err != nil {
		return "", err
	}
	n.sent = append(n.sent, msg)
	return fmt.Sprintf("%s-%d", msg.Channel, len(n.sent)), nil
}

// Sent returns a copy of the accepted messages
func (n *Notifier) Sent() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

// Count returns how many messages were accepted for a request and stage
func (n *Notifier) Count(requestID uint, stage string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.RequestID == requestID && m.Stage == stage {
			c++
		}
	}
	return c
}
