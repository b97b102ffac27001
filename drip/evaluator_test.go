package drip

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankitpro/models"
)

var day0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday

func strPtr(s string) *string { return &s }

func testConfig() *models.ReviewDripConfig {
	return &models.ReviewDripConfig{
		IsActive:             true,
		EnableInitialRequest: true,
		InitialDelayDays:     2,
		InitialMessage:       "Hi {{customer_name}}",
		FirstFollowUp: models.FollowUpStage{
			Enabled:   true,
			DelayDays: 3,
			Message:   strPtr("Reminder"),
		},
		EnableEmailRequests: true,
		SendWeekends:        true,
		Timezone:            "UTC",
	}
}

func testDrip() *models.ReviewDrip {
	return &models.ReviewDrip{
		ReviewRequestID: 1,
		CompanyID:       1,
		CustomerEmail:   "jane@example.com",
		Status:          models.DripStatusPending,
		AnchorAt:        day0,
	}
}

func at(d int) time.Time { return day0.Add(days(d)) }

func TestEvaluateSequentialDelays(t *testing.T) {
	cfg := testConfig()
	d := testDrip()

	stage, err := Evaluate(d, cfg, at(1))
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage, "day 1")

	stage, err = Evaluate(d, cfg, at(2))
	require.NoError(t, err)
	assert.Equal(t, StageInitial, stage, "day 2")

	require.True(t, applyStageSent(d, StageInitial, at(2)))
	assert.Equal(t, models.DripStatusInProgress, d.Status)

	stage, err = Evaluate(d, cfg, at(4))
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage, "day 4 is only two days after the initial request")

	stage, err = Evaluate(d, cfg, at(5))
	require.NoError(t, err)
	assert.Equal(t, StageFirstFollowUp, stage, "day 5")

	require.True(t, applyStageSent(d, StageFirstFollowUp, at(5)))
	stage, err = Evaluate(d, cfg, at(60))
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage, "no more enabled stages")
}

func TestEvaluateDelayMeasuredFromActualSend(t *testing.T) {
	cfg := testConfig()
	d := testDrip()
	// initial went out late, on day 6
	require.True(t, applyStageSent(d, StageInitial, at(6)))

	stage, err := Evaluate(d, cfg, at(8))
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage)

	stage, err = Evaluate(d, cfg, at(9))
	require.NoError(t, err)
	assert.Equal(t, StageFirstFollowUp, stage)
}

func TestEvaluateTerminalNeverDue(t *testing.T) {
	cfg := testConfig()
	for _, status := range []string{models.DripStatusCompleted, models.DripStatusUnsubscribed} {
		t.Run(status, func(t *testing.T) {
			d := testDrip()
			d.Status = status
			if status == models.DripStatusCompleted {
				d.ReviewSubmitted = true
			}
			for _, n := range []int{0, 2, 5, 30, 365} {
				stage, err := Evaluate(d, cfg, at(n))
				require.NoError(t, err)
				assert.Equal(t, StageNone, stage, "day %d", n)
			}
		})
	}
}

func TestEvaluateInactiveOrMissingConfig(t *testing.T) {
	d := testDrip()

	stage, err := Evaluate(d, nil, at(10))
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage)

	cfg := testConfig()
	cfg.IsActive = false
	stage, err = Evaluate(d, cfg, at(10))
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage)
}

func TestEvaluateSkipsDisabledStages(t *testing.T) {
	cfg := testConfig()
	cfg.FirstFollowUp.Enabled = false
	cfg.SecondFollowUp = models.FollowUpStage{Enabled: true, DelayDays: 4, Message: strPtr("Second")}
	d := testDrip()
	require.True(t, applyStageSent(d, StageInitial, at(2)))

	stage, err := Evaluate(d, cfg, at(5))
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage, "second follow-up waits four days after the initial request")

	stage, err = Evaluate(d, cfg, at(6))
	require.NoError(t, err)
	assert.Equal(t, StageSecondFollowUp, stage)
}

func TestEvaluateInitialDisabledUsesAnchor(t *testing.T) {
	cfg := testConfig()
	cfg.EnableInitialRequest = false
	d := testDrip()

	stage, err := Evaluate(d, cfg, at(2))
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage)

	stage, err = Evaluate(d, cfg, at(3))
	require.NoError(t, err)
	assert.Equal(t, StageFirstFollowUp, stage)
}

func TestEvaluateWeekendGating(t *testing.T) {
	cfg := testConfig()
	cfg.SendWeekends = false
	cfg.InitialDelayDays = 5 // due Saturday 2026-03-07
	d := testDrip()

	saturday := at(5)
	require.Equal(t, time.Saturday, saturday.Weekday())

	tests := []struct {
		name string
		now  time.Time
		want Stage
	}{
		{"friday before due", at(4), StageNone},
		{"saturday", saturday, StageNone},
		{"saturday evening", saturday.Add(12 * time.Hour), StageNone},
		{"sunday", at(6), StageNone},
		{"monday", at(7), StageInitial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, err := Evaluate(d, cfg, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stage)
		})
	}

	cfg.SendWeekends = true
	stage, err := Evaluate(d, cfg, saturday)
	require.NoError(t, err)
	assert.Equal(t, StageInitial, stage)
}

func TestEvaluateWeekendUsesCompanyTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.SendWeekends = false
	cfg.InitialDelayDays = 0
	cfg.Timezone = "America/Los_Angeles"
	d := testDrip()

	// Saturday 03:00 UTC is still Friday evening in Los Angeles
	now := time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC)
	stage, err := Evaluate(d, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, StageInitial, stage)

	// Monday 05:00 UTC is Sunday night there
	now = time.Date(2026, 3, 9, 5, 0, 0, 0, time.UTC)
	stage, err = Evaluate(d, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage)
}

func TestEvaluatePreferredSendTime(t *testing.T) {
	cfg := testConfig()
	cfg.PreferredSendTime = "14:30"
	d := testDrip()

	before := time.Date(2026, 3, 4, 14, 29, 0, 0, time.UTC)
	stage, err := Evaluate(d, cfg, before)
	require.NoError(t, err)
	assert.Equal(t, StageNone, stage)

	atTime := time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)
	stage, err = Evaluate(d, cfg, atTime)
	require.NoError(t, err)
	assert.Equal(t, StageInitial, stage)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cfg := testConfig()
	d := testDrip()
	first, err := Evaluate(d, cfg, at(2))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Evaluate(d, cfg, at(2))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCheckIntegrity(t *testing.T) {
	cfg := testConfig()
	t2, t5 := at(2), at(5)

	tests := []struct {
		name   string
		mutate func(d *models.ReviewDrip)
	}{
		{"sent without timestamp", func(d *models.ReviewDrip) {
			d.InitialRequestSent = true
		}},
		{"follow-up sent before initial", func(d *models.ReviewDrip) {
			d.FirstFollowUpSent, d.FirstFollowUpSentAt = true, &t5
		}},
		{"timestamps out of order", func(d *models.ReviewDrip) {
			d.InitialRequestSent, d.InitialRequestSentAt = true, &t5
			d.FirstFollowUpSent, d.FirstFollowUpSentAt = true, &t2
		}},
		{"submitted but not completed", func(d *models.ReviewDrip) {
			d.ReviewSubmitted = true
			d.Status = models.DripStatusInProgress
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDrip()
			tt.mutate(d)
			_, err := Evaluate(d, cfg, at(30))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIntegrity))
		})
	}

	t.Run("skipped disabled stage is fine", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableInitialRequest = false
		d := testDrip()
		d.FirstFollowUpSent, d.FirstFollowUpSentAt = true, &t5
		assert.NoError(t, CheckIntegrity(d, cfg))
	})
}

func TestDueAt(t *testing.T) {
	cfg := testConfig()
	d := testDrip()

	stage, due, ok := DueAt(d, cfg)
	require.True(t, ok)
	assert.Equal(t, StageInitial, stage)
	assert.Equal(t, at(2), due)

	require.True(t, applyUnsubscribe(d, at(1)))
	_, _, ok = DueAt(d, cfg)
	assert.False(t, ok)
}

func TestParseStage(t *testing.T) {
	for _, s := range []Stage{StageNone, StageInitial, StageFirstFollowUp, StageSecondFollowUp, StageFinalFollowUp} {
		got, err := ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStage("third_follow_up")
	assert.Error(t, err)
}
