package models

import (
	"gorm.io/gorm"
)

// FollowUpStage holds the settings of one optional follow-up message.
// DelayDays is counted from the previous stage that was actually sent.
type FollowUpStage struct {
	Enabled   bool    `gorm:"default:false" json:"enabled"`
	DelayDays int     `gorm:"default:0" json:"delay_days" validate:"min=0"`
	Subject   *string `gorm:"type:text" json:"subject,omitempty"`
	Message   *string `gorm:"type:text" json:"message,omitempty"`
}

// ReviewDripConfig is the company-wide policy for review request drips
type ReviewDripConfig struct {
	gorm.Model
	CompanyID uint `gorm:"not null;uniqueIndex" json:"company_id"`
	IsActive  bool `json:"is_active"`

	// Initial request
	EnableInitialRequest bool   `json:"enable_initial_request"`
	InitialDelayDays     int    `gorm:"default:0" json:"initial_delay_days" validate:"min=0"`
	InitialSubject       string `json:"initial_subject"`
	InitialMessage       string `gorm:"type:text" json:"initial_message"`

	// Follow-ups
	FirstFollowUp  FollowUpStage `gorm:"embedded;embeddedPrefix:first_follow_up_" json:"first_follow_up"`
	SecondFollowUp FollowUpStage `gorm:"embedded;embeddedPrefix:second_follow_up_" json:"second_follow_up"`
	FinalFollowUp  FollowUpStage `gorm:"embedded;embeddedPrefix:final_follow_up_" json:"final_follow_up"`

	// Channels
	EnableEmailRequests bool `json:"enable_email_requests"`
	EnableSmsRequests   bool `json:"enable_sms_requests"`

	// Timing
	PreferredSendTime string `json:"preferred_send_time" validate:"omitempty,datetime=15:04"` // HH:MM, local to Timezone
	Timezone          string `gorm:"default:'UTC'" json:"timezone" validate:"omitempty,timezone"`
	SendWeekends      bool   `json:"send_weekends"`

	// Targeting
	MinInvoiceAmount        float64  `gorm:"default:0" json:"min_invoice_amount" validate:"min=0"`
	EligibleServiceTypes    []string `gorm:"type:jsonb;serializer:json" json:"eligible_service_types"`
	PositiveExperiencesOnly bool     `gorm:"default:false" json:"positive_experiences_only"`

	// Where the tracked review link finally points (Google, Yelp, ...)
	ReviewURL   string `json:"review_url" validate:"omitempty,url"`
	CompanyName string `json:"company_name"`
}

// NewReviewDripConfig returns the settings a company starts with: an active
// email drip with only the initial request enabled. Boolean defaults live
// here rather than in column defaults so a saved false stays false.
func NewReviewDripConfig(companyID uint) *ReviewDripConfig {
	return &ReviewDripConfig{
		CompanyID:            companyID,
		IsActive:             true,
		EnableInitialRequest: true,
		InitialDelayDays:     1,
		InitialSubject:       "How did we do, {{first_name}}?",
		InitialMessage:       "Hi {{first_name}}, thank you for choosing {{company_name}}. Would you take a moment to leave us a review? {{review_link}}",
		FirstFollowUp:        FollowUpStage{DelayDays: 3},
		SecondFollowUp:       FollowUpStage{DelayDays: 7},
		FinalFollowUp:        FollowUpStage{DelayDays: 14},
		EnableEmailRequests:  true,
		Timezone:             "UTC",
		SendWeekends:         true,
	}
}
