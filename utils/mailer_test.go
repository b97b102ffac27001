package utils

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"rankitpro/models"
)

func TestEmailSenderBuildsMessage(t *testing.T) {
	var captured *gomail.Message
	s := NewEmailSender(SMTPConfig{FromEmail: "reviews@acme.test", FromName: "Acme Plumbing"}).
		WithSendFunc(func(m *gomail.Message) error {
			captured = m
			return nil
		})

	id, err := s.Send(context.Background(), models.Notification{
		Channel:   models.ChannelEmail,
		To:        "jane@example.com",
		Subject:   "How did we do?",
		Body:      "Hi Jane\n\nLeave a review: https://rankit.test/r/1.abc",
		RequestID: 1,
		Stage:     "initial",
	})
	require.NoError(t, err)
	assert.Contains(t, id, "@acme.test>")
	require.NotNil(t, captured)

	assert.Equal(t, []string{"jane@example.com"}, captured.GetHeader("To"))
	assert.Equal(t, []string{"How did we do?"}, captured.GetHeader("Subject"))
	assert.Equal(t, []string{id}, captured.GetHeader("Message-ID"))
	assert.Equal(t, []string{"initial"}, captured.GetHeader("X-Review-Stage"))

	var raw bytes.Buffer
	_, err = captured.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "<p>Hi Jane</p>")
	assert.Contains(t, raw.String(), "text/plain")
}

func TestEmailSenderErrors(t *testing.T) {
	s := NewEmailSender(SMTPConfig{FromEmail: "reviews@acme.test"}).
		WithSendFunc(func(m *gomail.Message) error { return errors.New("550 mailbox unavailable") })

	_, err := s.Send(context.Background(), models.Notification{To: "jane@example.com", Body: "hi"})
	assert.ErrorContains(t, err, "550 mailbox unavailable")

	_, err = s.Send(context.Background(), models.Notification{Body: "hi"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Send(ctx, models.Notification{To: "jane@example.com", Body: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
