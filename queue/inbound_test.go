package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankitpro/drip"
	"rankitpro/drip/driptest"
	"rankitpro/models"
)

var anchor = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*drip.Engine, *driptest.MemoryStore) {
	t.Helper()
	store := driptest.NewMemoryStore()
	require.NoError(t, store.SaveConfig(context.Background(), driptest.Config(1)))
	store.PutDrip(driptest.Drip(5, 1, anchor))
	return drip.NewEngine(store, driptest.NewNotifier(), driptest.Links{}, drip.Options{}), store
}

func TestHandleInboundAppliesEvents(t *testing.T) {
	engine, store := newEngine(t)
	now := anchor.Add(48 * time.Hour)

	require.NoError(t, HandleInbound(context.Background(), engine,
		[]byte(`{"type":"link_clicked","request_id":5,"occurred_at":"2026-03-03T09:00:00Z"}`), now))
	require.NoError(t, HandleInbound(context.Background(), engine,
		[]byte(`{"type":"review_submitted","request_id":5,"rating":4}`), now))

	d, err := store.GetDrip(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), *d.LinkClickedAt)
	assert.Equal(t, models.DripStatusCompleted, d.Status)
	assert.Equal(t, 4, d.ReviewRating)
	assert.Equal(t, now, *d.CompletedAt)
}

func TestHandleInboundErrors(t *testing.T) {
	engine, _ := newEngine(t)
	now := anchor

	tests := []struct {
		name      string
		body      string
		permanent bool
	}{
		{"not json", `{"type":`, true},
		{"missing request id", `{"type":"unsubscribe"}`, true},
		{"unknown type", `{"type":"opened","request_id":5}`, true},
		{"unknown request", `{"type":"unsubscribe","request_id":77}`, true},
		{"bad rating", `{"type":"review_submitted","request_id":5,"rating":9}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := HandleInbound(context.Background(), engine, []byte(tt.body), now)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, IsPermanent(err))
		})
	}

	assert.False(t, IsPermanent(errors.New("connection reset")))
}

func TestHandleInboundUnsubscribeThenReview(t *testing.T) {
	engine, _ := newEngine(t)
	require.NoError(t, HandleInbound(context.Background(), engine, []byte(`{"type":"unsubscribe","request_id":5}`), anchor))

	err := HandleInbound(context.Background(), engine, []byte(`{"type":"review_submitted","request_id":5,"rating":5}`), anchor)
	assert.ErrorIs(t, err, drip.ErrUnsubscribed)
	assert.True(t, IsPermanent(err))
}
