package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankitpro/models"
)

type stubSender struct{ got []models.Notification }

func (s *stubSender) Send(_ context.Context, n models.Notification) (string, error) {
	s.got = append(s.got, n)
	return "stub-1", nil
}

func TestChannelNotifierRoutesByChannel(t *testing.T) {
	email := &stubSender{}
	n := NewChannelNotifier()
	n.Register(models.ChannelEmail, email)

	id, err := n.Send(context.Background(), models.Notification{Channel: models.ChannelEmail, To: "a@b.test"})
	require.NoError(t, err)
	assert.Equal(t, "stub-1", id)
	assert.Len(t, email.got, 1)

	_, err = n.Send(context.Background(), models.Notification{Channel: models.ChannelSMS, To: "+12015550123"})
	assert.ErrorContains(t, err, `no sender registered for channel "sms"`)
	assert.Equal(t, []string{models.ChannelEmail}, n.Channels())
}
