package controller

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankitpro/drip"
	"rankitpro/drip/driptest"
	"rankitpro/models"
	"rankitpro/utils"
)

func TestTrackClickRedirects(t *testing.T) {
	f := newAPIFixture(t)
	cfg := f.saveConfig(t, 1)
	f.store.PutDrip(driptest.Drip(10, 1, testNow))

	path := "/r/" + f.signer.Token(utils.LinkPurposeReview, 10)
	resp, _ := f.do(t, "GET", path, "")
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, cfg.ReviewURL, resp.Header.Get("Location"))

	d, err := f.store.GetDrip(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, d.LinkClicked)
	require.NotNil(t, d.LinkClickedAt)
	assert.True(t, d.LinkClickedAt.Equal(testNow))
}

func TestTrackClickRejectsBadTokens(t *testing.T) {
	f := newAPIFixture(t)
	f.saveConfig(t, 1)
	f.store.PutDrip(driptest.Drip(10, 1, testNow))

	tests := []struct {
		name string
		path string
	}{
		{"garbage", "/r/not-a-token"},
		{"unsubscribe token", "/r/" + f.signer.Token(utils.LinkPurposeUnsubscribe, 10)},
		{"unknown request", "/r/" + f.signer.Token(utils.LinkPurposeReview, 404)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, "GET", tt.path, "")
			assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		})
	}
}

func TestUnsubscribeLink(t *testing.T) {
	f := newAPIFixture(t)
	f.saveConfig(t, 1)
	f.store.PutDrip(driptest.Drip(10, 1, testNow))

	path := "/u/" + f.signer.Token(utils.LinkPurposeUnsubscribe, 10)
	resp, _ := f.do(t, "GET", path, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	d, err := f.store.GetDrip(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.DripStatusUnsubscribed, d.Status)

	// Nothing goes out afterwards
	results, err := f.engine.RunDue(context.Background(), testNow.Add(time.Hour))
	require.NoError(t, err)
	for _, r := range results {
		assert.False(t, r.Sent)
	}
	assert.Empty(t, f.notifier.Sent())

	resp, _ = f.do(t, "GET", path, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "unsubscribing twice is harmless")
}

func TestReviewWebhook(t *testing.T) {
	const secretHeader = "X-Webhook-Secret"

	f := newAPIFixture(t)
	f.saveConfig(t, 1)
	f.store.PutDrip(driptest.Drip(10, 1, testNow))
	gone := driptest.Drip(11, 1, testNow)
	gone.Status = models.DripStatusUnsubscribed
	gone.UnsubscribedAt = utils.Pointer(testNow)
	f.store.PutDrip(gone)

	tests := []struct {
		name   string
		secret string
		body   string
		want   int
	}{
		{"wrong secret", "nope", `{"request_id": 10, "rating": 5}`, fiber.StatusUnauthorized},
		{"missing secret", "", `{"request_id": 10, "rating": 5}`, fiber.StatusUnauthorized},
		{"rating out of range", "hook-secret", `{"request_id": 10, "rating": 6}`, fiber.StatusBadRequest},
		{"unknown request", "hook-secret", `{"request_id": 404, "rating": 5}`, fiber.StatusNotFound},
		{"unsubscribed", "hook-secret", `{"request_id": 11, "rating": 4}`, fiber.StatusConflict},
		{"accepted", "hook-secret", `{"request_id": 10, "rating": 5, "submitted_at": "2026-03-10T12:00:00Z"}`, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.secret != "" {
				headers = []string{secretHeader, tt.secret}
			}
			resp, _ := f.do(t, "POST", "/webhooks/reviews", tt.body, headers...)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	d, err := f.store.GetDrip(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.DripStatusCompleted, d.Status)
	assert.Equal(t, 5, d.ReviewRating)
	require.NotNil(t, d.ReviewSubmittedAt)
	assert.True(t, d.ReviewSubmittedAt.Equal(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))
}

func TestReviewWebhookDisabledWithoutSecret(t *testing.T) {
	f := newAPIFixture(t)
	tc := NewTrackingController(f.engine, f.signer, "")
	f.app.Post("/webhooks/disabled", tc.ReviewWebhook)

	resp, _ := f.do(t, "POST", "/webhooks/disabled", `{"request_id": 10, "rating": 5}`, "X-Webhook-Secret", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestFeedHubRoutesByCompany(t *testing.T) {
	hub := NewFeedHub()
	mine := hub.subscribe(1)
	other := hub.subscribe(2)
	assert.Equal(t, 2, hub.Clients())

	require.NoError(t, hub.Publish(context.Background(), drip.Event{Type: drip.EventStageSent, CompanyID: 1, RequestID: 10}))

	select {
	case e := <-mine.send:
		assert.Equal(t, uint(10), e.RequestID)
	default:
		t.Fatal("expected an event for company 1")
	}
	assert.Empty(t, other.send)

	hub.unsubscribe(mine)
	hub.unsubscribe(other)
	assert.Equal(t, 0, hub.Clients())
}

func TestFeedHubDropsWhenClientIsSlow(t *testing.T) {
	hub := NewFeedHub()
	c := hub.subscribe(1)
	defer hub.unsubscribe(c)

	for i := 0; i < feedBuffer+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), drip.Event{CompanyID: 1, RequestID: uint(i)}))
	}
	assert.Len(t, c.send, feedBuffer)
}

func TestFeedHubReceivesEngineEvents(t *testing.T) {
	f := newAPIFixture(t)
	f.saveConfig(t, 1)
	f.store.PutDrip(driptest.Drip(10, 1, testNow.Add(-time.Hour)))
	c := f.hub.subscribe(1)
	defer f.hub.unsubscribe(c)

	_, err := f.engine.RunDue(context.Background(), testNow)
	require.NoError(t, err)

	select {
	case e := <-c.send:
		assert.Equal(t, drip.EventStageSent, e.Type)
		assert.Equal(t, "initial", e.Stage)
	default:
		t.Fatal("expected a stage_sent event")
	}
}
