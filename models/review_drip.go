package models

import "time"

// Drip statuses
const (
	DripStatusPending      = "pending"
	DripStatusInProgress   = "in_progress"
	DripStatusCompleted    = "completed"
	DripStatusUnsubscribed = "unsubscribed"
)

// ReviewDrip tracks one customer's progress through a review request drip.
// Rows are kept forever for analytics, there is no soft delete column.
type ReviewDrip struct {
	ID              uint  `gorm:"primaryKey" json:"id"`
	ReviewRequestID uint  `gorm:"not null;uniqueIndex" json:"review_request_id"`
	ServiceVisitID  *uint `json:"service_visit_id,omitempty"`
	CompanyID       uint  `gorm:"not null;index" json:"company_id"`
	TechnicianID    uint  `gorm:"not null;index" json:"technician_id"`

	// Customer
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`

	// Stage progress
	InitialRequestSent   bool       `gorm:"default:false" json:"initial_request_sent"`
	InitialRequestSentAt *time.Time `json:"initial_request_sent_at"`
	FirstFollowUpSent    bool       `gorm:"default:false" json:"first_follow_up_sent"`
	FirstFollowUpSentAt  *time.Time `json:"first_follow_up_sent_at"`
	SecondFollowUpSent   bool       `gorm:"default:false" json:"second_follow_up_sent"`
	SecondFollowUpSentAt *time.Time `json:"second_follow_up_sent_at"`
	FinalFollowUpSent    bool       `gorm:"default:false" json:"final_follow_up_sent"`
	FinalFollowUpSentAt  *time.Time `json:"final_follow_up_sent_at"`

	// Customer events
	LinkClicked       bool       `gorm:"default:false" json:"link_clicked"`
	LinkClickedAt     *time.Time `json:"link_clicked_at"`
	ReviewSubmitted   bool       `gorm:"default:false" json:"review_submitted"`
	ReviewSubmittedAt *time.Time `json:"review_submitted_at"`
	ReviewRating      int        `gorm:"default:0" json:"review_rating"`

	Status         string     `gorm:"default:'pending';index" json:"status"` // pending, in_progress, completed, unsubscribed
	UnsubscribedAt *time.Time `json:"unsubscribed_at"`
	CompletedAt    *time.Time `json:"completed_at"`

	// Stage 0 delays are measured from here
	AnchorAt time.Time `gorm:"not null" json:"anchor_at"`

	// Dispatch claim and retry bookkeeping
	DispatchStage      *int       `json:"-"`
	DispatchLeaseUntil *time.Time `json:"-"`
	FailedAttempts     int        `gorm:"default:0" json:"failed_attempts"`
	LastAttemptAt      *time.Time `json:"last_attempt_at"`
	LastError          string     `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the drip can no longer send anything
func (d *ReviewDrip) IsTerminal() bool {
	return d.Status == DripStatusCompleted || d.Status == DripStatusUnsubscribed
}

// DeliveryAttempt records a single channel delivery attempt for a drip stage
type DeliveryAttempt struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ReviewDripID uint      `gorm:"not null;index" json:"review_drip_id"`
	Stage        string    `gorm:"type:varchar(32);not null" json:"stage"`
	Channel      string    `gorm:"type:varchar(10);not null" json:"channel"` // email, sms
	Recipient    string    `json:"recipient"`
	MessageID    string    `json:"message_id"`
	Success      bool      `gorm:"default:false" json:"success"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	AttemptedAt  time.Time `gorm:"not null;index" json:"attempted_at"`
}

func (DeliveryAttempt) TableName() string { return "review_drip_delivery_attempts" }
