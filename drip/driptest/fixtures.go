package driptest

import (
	"time"

	"rankitpro/models"
	"rankitpro/utils"
)

// Config returns an active email-only config with all four stages enabled:
// initial after 0 days, follow-ups after 3, 7 and 14 days
func Config(companyID uint) *models.ReviewDripConfig {
	cfg := &models.ReviewDripConfig{
		CompanyID:            companyID,
		IsActive:             true,
		EnableInitialRequest: true,
		InitialSubject:       "How did we do, {{first_name}}?",
		InitialMessage:       "Hi {{customer_name}}, thanks for choosing {{company_name}}. Leave a review: {{review_link}}",
		FirstFollowUp:        followUp(3, "Quick reminder from {{company_name}}"),
		SecondFollowUp:       followUp(7, "Still time to share your experience"),
		FinalFollowUp:        followUp(14, "Last chance to review {{company_name}}"),
		EnableEmailRequests:  true,
		Timezone:             "UTC",
		SendWeekends:         true,
		ReviewURL:            "https://g.page/r/example/review",
		CompanyName:          "Acme Plumbing",
	}
	cfg.ID = companyID
	return cfg
}

func followUp(delay int, msg string) models.FollowUpStage {
	return models.FollowUpStage{
		Enabled:   true,
		DelayDays: delay,
		Subject:   utils.Pointer(msg),
		Message:   utils.Pointer(msg + " {{review_link}}"),
	}
}

// Drip returns a pending drip anchored at anchor
func Drip(requestID, companyID uint, anchor time.Time) models.ReviewDrip {
	return models.ReviewDrip{
		ReviewRequestID: requestID,
		CompanyID:       companyID,
		TechnicianID:    7,
		CustomerName:    "Jane Doe",
		CustomerEmail:   "jane@example.com",
		CustomerPhone:   "+15551234567",
		Status:          models.DripStatusPending,
		AnchorAt:        anchor,
	}
}
