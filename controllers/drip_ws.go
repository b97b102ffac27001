package controller

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"rankitpro/drip"
	"rankitpro/utils"
)

const (
	feedBuffer   = 32
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

type feedClient struct {
	companyID uint
	send      chan drip.Event
}

// FeedHub fans drip events out to the dashboards of the owning company.
// It is registered as an engine event sink.
type FeedHub struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	logger  *logrus.Entry
}

func NewFeedHub() *FeedHub {
	return &FeedHub{
		clients: make(map[*feedClient]struct{}),
		logger:  utils.Logger("drip_feed"),
	}
}

// Publish never blocks. A client whose buffer is full misses the event.
func (h *FeedHub) Publish(_ context.Context, e drip.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.companyID != e.CompanyID {
			continue
		}
		select {
		case c.send <- e:
		default:
			h.logger.WithField("company_id", c.companyID).Warn("Feed client is slow, dropping event")
		}
	}
	return nil
}

func (h *FeedHub) subscribe(companyID uint) *feedClient {
	c := &feedClient{companyID: companyID, send: make(chan drip.Event, feedBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *FeedHub) unsubscribe(c *feedClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Clients returns the number of connected dashboards
func (h *FeedHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RequireUpgrade rejects plain HTTP requests on the feed route
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler streams the caller's drip events as JSON until the socket closes.
// It expects Protected to have set companyID.
func (h *FeedHub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		companyID, _ := conn.Locals("companyID").(uint)
		if companyID == 0 {
			return
		}
		client := h.subscribe(companyID)
		defer h.unsubscribe(client)
		h.logger.WithField("company_id", companyID).Debug("Feed client connected")

		// The reader only notices the close frame, clients send nothing
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case e := <-client.send:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(e); err != nil {
					h.logger.WithError(err).WithField("company_id", companyID).Debug("Feed write failed")
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
