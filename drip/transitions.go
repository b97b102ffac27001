package drip

import (
	"time"

	"rankitpro/models"
)

// applyLinkClick records the first click only
func applyLinkClick(d *models.ReviewDrip, at time.Time) bool {
	if d.LinkClicked {
		return false
	}
	d.LinkClicked = true
	d.LinkClickedAt = &at
	return true
}

// applyReviewSubmitted completes the drip. It is rejected after an
// unsubscribe and a no-op when the review was already recorded.
func applyReviewSubmitted(d *models.ReviewDrip, rating int, at time.Time) (bool, error) {
	if rating < 1 || rating > 5 {
		return false, ErrInvalidRating
	}
	if d.Status == models.DripStatusUnsubscribed {
		return false, ErrUnsubscribed
	}
	if d.ReviewSubmitted {
		return false, nil
	}
	d.ReviewSubmitted = true
	d.ReviewSubmittedAt = &at
	d.ReviewRating = rating
	d.Status = models.DripStatusCompleted
	d.CompletedAt = &at
	d.DispatchStage = nil
	d.DispatchLeaseUntil = nil
	return true, nil
}

// applyUnsubscribe stops the drip unless it already reached a terminal status
func applyUnsubscribe(d *models.ReviewDrip, at time.Time) bool {
	if d.IsTerminal() {
		return false
	}
	d.Status = models.DripStatusUnsubscribed
	d.UnsubscribedAt = &at
	d.DispatchStage = nil
	d.DispatchLeaseUntil = nil
	return true
}

// applyStageSent marks a delivered stage and moves pending drips to in_progress
func applyStageSent(d *models.ReviewDrip, s Stage, at time.Time) bool {
	if d.IsTerminal() {
		return false
	}
	if sent, _ := stageSent(d, s); sent {
		return false
	}
	setStageSent(d, s, at)
	if d.Status == models.DripStatusPending || d.Status == "" {
		d.Status = models.DripStatusInProgress
	}
	d.FailedAttempts = 0
	d.LastError = ""
	releaseClaim(d)
	return true
}

// applyDeliveryFailure records a failed attempt, leaving stage flags untouched
func applyDeliveryFailure(d *models.ReviewDrip, reason string, at time.Time) {
	d.FailedAttempts++
	d.LastAttemptAt = &at
	d.LastError = reason
	releaseClaim(d)
}

// claimStage takes the dispatch lease for a stage. It fails while another
// run holds a live lease.
func claimStage(d *models.ReviewDrip, s Stage, now time.Time, ttl time.Duration) bool {
	if d.DispatchLeaseUntil != nil && now.Before(*d.DispatchLeaseUntil) {
		return false
	}
	stage := int(s)
	until := now.Add(ttl)
	d.DispatchStage = &stage
	d.DispatchLeaseUntil = &until
	return true
}

func releaseClaim(d *models.ReviewDrip) {
	d.DispatchStage = nil
	d.DispatchLeaseUntil = nil
}

// holdsClaim reports whether the row still carries the lease taken for s
func holdsClaim(d *models.ReviewDrip, s Stage, until time.Time) bool {
	return d.DispatchStage != nil && *d.DispatchStage == int(s) &&
		d.DispatchLeaseUntil != nil && d.DispatchLeaseUntil.Equal(until)
}

// backoffElapsed reports whether a failed drip may be retried at now
func backoffElapsed(d *models.ReviewDrip, now time.Time, base, max time.Duration) bool {
	if base <= 0 || d.FailedAttempts == 0 || d.LastAttemptAt == nil {
		return true
	}
	wait := base
	for i := 1; i < d.FailedAttempts && i < 32 && (max <= 0 || wait < max); i++ {
		wait *= 2
	}
	if max > 0 && wait > max {
		wait = max
	}
	return !now.Before(d.LastAttemptAt.Add(wait))
}
