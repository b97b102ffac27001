package drip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankitpro/models"
)

func TestLinkClickKeepsFirstTimestamp(t *testing.T) {
	d := testDrip()
	require.True(t, applyLinkClick(d, at(3)))
	assert.False(t, applyLinkClick(d, at(4)))

	require.NotNil(t, d.LinkClickedAt)
	assert.Equal(t, at(3), *d.LinkClickedAt)
	assert.Equal(t, models.DripStatusPending, d.Status, "clicks leave status alone")
}

func TestReviewSubmitted(t *testing.T) {
	t.Run("completes the drip", func(t *testing.T) {
		d := testDrip()
		require.True(t, applyStageSent(d, StageInitial, at(2)))
		changed, err := applyReviewSubmitted(d, 5, at(2).Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.DripStatusCompleted, d.Status)
		assert.Equal(t, 5, d.ReviewRating)
		assert.Equal(t, at(2).Add(time.Hour), *d.CompletedAt)

		changed, err = applyReviewSubmitted(d, 3, at(9))
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, 5, d.ReviewRating)
	})

	t.Run("rejected after unsubscribe", func(t *testing.T) {
		d := testDrip()
		require.True(t, applyUnsubscribe(d, at(1)))
		_, err := applyReviewSubmitted(d, 4, at(2))
		assert.ErrorIs(t, err, ErrUnsubscribed)
		assert.False(t, d.ReviewSubmitted)
	})

	t.Run("rating range", func(t *testing.T) {
		for _, r := range []int{0, 6, -1} {
			_, err := applyReviewSubmitted(testDrip(), r, at(1))
			assert.ErrorIs(t, err, ErrInvalidRating)
		}
	})
}

func TestUnsubscribe(t *testing.T) {
	d := testDrip()
	require.True(t, applyUnsubscribe(d, at(3)))
	assert.False(t, applyUnsubscribe(d, at(4)))
	assert.Equal(t, at(3), *d.UnsubscribedAt)

	completed := testDrip()
	_, err := applyReviewSubmitted(completed, 5, at(1))
	require.NoError(t, err)
	assert.False(t, applyUnsubscribe(completed, at(2)), "completion takes precedence")
	assert.Equal(t, models.DripStatusCompleted, completed.Status)
	assert.Nil(t, completed.UnsubscribedAt)
}

func TestStageSentRefusedOnTerminal(t *testing.T) {
	d := testDrip()
	require.True(t, applyUnsubscribe(d, at(1)))
	assert.False(t, applyStageSent(d, StageInitial, at(2)))
	assert.False(t, d.InitialRequestSent)
}

func TestClaimStage(t *testing.T) {
	d := testDrip()
	now := at(2)
	require.True(t, claimStage(d, StageInitial, now, 10*time.Minute))
	until := *d.DispatchLeaseUntil
	assert.True(t, holdsClaim(d, StageInitial, until))

	assert.False(t, claimStage(d, StageInitial, now.Add(time.Minute), 10*time.Minute), "lease is live")
	assert.True(t, claimStage(d, StageInitial, now.Add(11*time.Minute), 10*time.Minute), "lease expired")
	assert.False(t, holdsClaim(d, StageInitial, until))

	applyDeliveryFailure(d, "smtp down", now)
	assert.Nil(t, d.DispatchLeaseUntil)
	assert.Equal(t, 1, d.FailedAttempts)
	assert.Equal(t, "smtp down", d.LastError)
}

func TestBackoffElapsed(t *testing.T) {
	d := testDrip()
	last := at(2)
	d.LastAttemptAt = &last
	base, max := time.Minute, 10*time.Minute

	assert.True(t, backoffElapsed(d, last, base, max), "no failures yet")

	d.FailedAttempts = 1
	assert.False(t, backoffElapsed(d, last.Add(59*time.Second), base, max))
	assert.True(t, backoffElapsed(d, last.Add(time.Minute), base, max))

	d.FailedAttempts = 3
	assert.False(t, backoffElapsed(d, last.Add(3*time.Minute), base, max))
	assert.True(t, backoffElapsed(d, last.Add(4*time.Minute), base, max))

	d.FailedAttempts = 20
	assert.True(t, backoffElapsed(d, last.Add(max), base, max), "capped")

	assert.True(t, backoffElapsed(d, last, 0, max), "zero base disables backoff")
}
