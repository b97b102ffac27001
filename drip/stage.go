package drip

import (
	"fmt"
	"time"

	"rankitpro/models"
)

// Stage identifies one of the four message slots of a drip
type Stage int

const (
	StageNone Stage = iota
	StageInitial
	StageFirstFollowUp
	StageSecondFollowUp
	StageFinalFollowUp
)

// stageOrder is the fixed firing order
var stageOrder = []Stage{StageInitial, StageFirstFollowUp, StageSecondFollowUp, StageFinalFollowUp}

func (s Stage) String() string {
	switch s {
	case StageInitial:
		return "initial"
	case StageFirstFollowUp:
		return "first_follow_up"
	case StageSecondFollowUp:
		return "second_follow_up"
	case StageFinalFollowUp:
		return "final_follow_up"
	default:
		return "none"
	}
}

// ParseStage is the inverse of Stage.String
func ParseStage(s string) (Stage, error) {
	for _, st := range append([]Stage{StageNone}, stageOrder...) {
		if st.String() == s {
			return st, nil
		}
	}
	return StageNone, fmt.Errorf("unknown stage %q", s)
}

// stageSettings is the config of one stage, flattened
type stageSettings struct {
	enabled   bool
	delayDays int
	subject   string
	message   string
}

func settingsFor(cfg *models.ReviewDripConfig, s Stage) stageSettings {
	switch s {
	case StageInitial:
		return stageSettings{
			enabled:   cfg.EnableInitialRequest,
			delayDays: cfg.InitialDelayDays,
			subject:   cfg.InitialSubject,
			message:   cfg.InitialMessage,
		}
	case StageFirstFollowUp:
		return followUpSettings(cfg.FirstFollowUp)
	case StageSecondFollowUp:
		return followUpSettings(cfg.SecondFollowUp)
	case StageFinalFollowUp:
		return followUpSettings(cfg.FinalFollowUp)
	}
	return stageSettings{}
}

func followUpSettings(f models.FollowUpStage) stageSettings {
	st := stageSettings{enabled: f.Enabled, delayDays: f.DelayDays}
	if !f.Enabled {
		return st
	}
	if f.Subject != nil {
		st.subject = *f.Subject
	}
	if f.Message != nil {
		st.message = *f.Message
	}
	return st
}

// stageSent returns the sent flag and timestamp of a stage
func stageSent(d *models.ReviewDrip, s Stage) (bool, *time.Time) {
	switch s {
	case StageInitial:
		return d.InitialRequestSent, d.InitialRequestSentAt
	case StageFirstFollowUp:
		return d.FirstFollowUpSent, d.FirstFollowUpSentAt
	case StageSecondFollowUp:
		return d.SecondFollowUpSent, d.SecondFollowUpSentAt
	case StageFinalFollowUp:
		return d.FinalFollowUpSent, d.FinalFollowUpSentAt
	}
	return false, nil
}

func setStageSent(d *models.ReviewDrip, s Stage, at time.Time) {
	switch s {
	case StageInitial:
		d.InitialRequestSent, d.InitialRequestSentAt = true, &at
	case StageFirstFollowUp:
		d.FirstFollowUpSent, d.FirstFollowUpSentAt = true, &at
	case StageSecondFollowUp:
		d.SecondFollowUpSent, d.SecondFollowUpSentAt = true, &at
	case StageFinalFollowUp:
		d.FinalFollowUpSent, d.FinalFollowUpSentAt = true, &at
	}
}

// StagesSent lists the stages already marked sent, in firing order
func StagesSent(d *models.ReviewDrip) []Stage {
	var sent []Stage
	for _, s := range stageOrder {
		if ok, _ := stageSent(d, s); ok {
			sent = append(sent, s)
		}
	}
	return sent
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
