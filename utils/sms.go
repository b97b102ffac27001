package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"rankitpro/models"
)

// SMSConfig points at an HTTP SMS gateway
type SMSConfig struct {
	GatewayURL string
	APIToken   string
	From       string
	Timeout    time.Duration
}

// SMSSender posts review messages to the SMS gateway as JSON. Any 2xx reply
// means the gateway accepted the message.
type SMSSender struct {
	cfg    SMSConfig
	client *fasthttp.Client
}

type smsPayload struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Body      string `json:"body"`
	Reference string `json:"reference"`
}

type smsReply struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
}

// NewSMSSender creates a sender. A nil client gets a default fasthttp client.
func NewSMSSender(cfg SMSConfig, client *fasthttp.Client) *SMSSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &fasthttp.Client{
			Name:                "rankitpro-drip",
			MaxConnsPerHost:     32,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		}
	}
	return &SMSSender{cfg: cfg, client: client}
}

func (s *SMSSender) Send(ctx context.Context, n models.Notification) (string, error) {
	if n.To == "" {
		return "", errors.New("sms recipient is empty")
	}
	payload, err := json.Marshal(smsPayload{
		To:        n.To,
		From:      s.cfg.From,
		Body:      n.Body,
		Reference: fmt.Sprintf("rr-%d-%s", n.RequestID, n.Stage),
	})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.cfg.GatewayURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if s.cfg.APIToken != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+s.cfg.APIToken)
	}
	req.SetBody(payload)

	timeout := s.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return "", context.DeadlineExceeded
	}

	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		return "", fmt.Errorf("sms gateway request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		body := resp.Body()
		if len(body) > 200 {
			body = body[:200]
		}
		return "", fmt.Errorf("sms gateway returned %d: %s", status, body)
	}

	var reply smsReply
	if err := json.Unmarshal(resp.Body(), &reply); err == nil {
		if reply.ID != "" {
			return reply.ID, nil
		}
		if reply.MessageID != "" {
			return reply.MessageID, nil
		}
	}
	return uuid.NewString(), nil
}
