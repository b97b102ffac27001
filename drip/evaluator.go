package drip

import (
	"fmt"
	"time"

	jnow "github.com/jinzhu/now"

	"rankitpro/models"
)

// Evaluate decides which single stage of a drip is due at now, if any.
// It is a pure function of its inputs so it can be re-run on every scheduler
// tick. Stages fire strictly in order: a later stage is never considered while
// an earlier enabled one is unsent.
func Evaluate(d *models.ReviewDrip, cfg *models.ReviewDripConfig, now time.Time) (Stage, error) {
	if cfg == nil || !cfg.IsActive {
		return StageNone, nil
	}
	if err := CheckIntegrity(d, cfg); err != nil {
		return StageNone, err
	}
	if d.IsTerminal() {
		return StageNone, nil
	}

	stage, base, delay := nextCandidate(d, cfg)
	if stage == StageNone {
		return StageNone, nil
	}
	if now.Before(base.Add(days(delay))) {
		return StageNone, nil
	}

	local := now.In(Location(cfg))
	if !cfg.SendWeekends && isWeekend(local) {
		return StageNone, nil
	}
	if !sendTimeReached(cfg.PreferredSendTime, local) {
		return StageNone, nil
	}
	return stage, nil
}

// DueAt returns the earliest time the next stage may fire, ignoring weekend
// and time-of-day gating. ok is false when nothing is left to send.
func DueAt(d *models.ReviewDrip, cfg *models.ReviewDripConfig) (stage Stage, at time.Time, ok bool) {
	if cfg == nil || !cfg.IsActive || d.IsTerminal() {
		return StageNone, time.Time{}, false
	}
	stage, base, delay := nextCandidate(d, cfg)
	if stage == StageNone {
		return StageNone, time.Time{}, false
	}
	return stage, base.Add(days(delay)), true
}

// nextCandidate walks the stages and returns the first unsent enabled one,
// the time its delay is measured from and the delay itself
func nextCandidate(d *models.ReviewDrip, cfg *models.ReviewDripConfig) (Stage, time.Time, int) {
	base := d.AnchorAt
	for _, s := range stageOrder {
		if sent, at := stageSent(d, s); sent {
			if at != nil {
				base = *at
			}
			continue
		}
		st := settingsFor(cfg, s)
		if !st.enabled {
			continue
		}
		return s, base, st.delayDays
	}
	return StageNone, time.Time{}, 0
}

// CheckIntegrity reports rows that break the drip invariants. Such rows are
// never repaired here.
func CheckIntegrity(d *models.ReviewDrip, cfg *models.ReviewDripConfig) error {
	if d.ReviewSubmitted && d.Status != models.DripStatusCompleted {
		return fmt.Errorf("%w: review submitted but status is %q", ErrIntegrity, d.Status)
	}

	var (
		prevAt    *time.Time
		prevStage Stage
		gap       = StageNone
	)
	for _, s := range stageOrder {
		sent, at := stageSent(d, s)
		if !sent {
			if cfg != nil && gap == StageNone && settingsFor(cfg, s).enabled {
				gap = s
			}
			continue
		}
		if at == nil {
			return fmt.Errorf("%w: stage %s marked sent without a timestamp", ErrIntegrity, s)
		}
		if gap != StageNone {
			return fmt.Errorf("%w: stage %s sent while earlier stage %s is not", ErrIntegrity, s, gap)
		}
		if prevAt != nil && at.Before(*prevAt) {
			return fmt.Errorf("%w: stage %s sent at %s, before stage %s at %s",
				ErrIntegrity, s, at.Format(time.RFC3339), prevStage, prevAt.Format(time.RFC3339))
		}
		prevAt, prevStage = at, s
	}
	return nil
}

// Location returns the company's time zone, UTC when unset or unknown
func Location(cfg *models.ReviewDripConfig) *time.Location {
	if cfg == nil || cfg.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// sendTimeReached reports whether local is at or past the HH:MM send time of
// its own day. An empty or unparsable value never gates.
func sendTimeReached(sendTime string, local time.Time) bool {
	if sendTime == "" {
		return true
	}
	clock, err := time.Parse("15:04", sendTime)
	if err != nil {
		return true
	}
	start := jnow.With(local).BeginningOfDay().
		Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
	return !local.Before(start)
}
