package driptest

import (
	"context"
	"fmt"
	"sync"

	"rankitpro/drip"
)

// Sink records published events
type Sink struct {
	mu     sync.Mutex
	events []drip.Event
}

func (s *Sink) Publish(_ context.Context, e drip.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *Sink) Events() []drip.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]drip.Event(nil), s.events...)
}

// Types lists the types of recorded events in order
func (s *Sink) Types() []drip.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]drip.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// Links builds predictable public links
type Links struct {
	BaseURL string
}

func (l Links) ReviewLink(requestID uint) string {
	return fmt.Sprintf("%s/r/%d", l.BaseURL, requestID)
}

func (l Links) UnsubscribeLink(requestID uint) string {
	return fmt.Sprintf("%s/u/%d", l.BaseURL, requestID)
}
