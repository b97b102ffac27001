package models

import "time"

// Sentiment values recorded for a service visit
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentUnknown  = "unknown"
)

// ReviewRequest is issued for a completed service visit and starts exactly one drip
type ReviewRequest struct {
	ID             uint  `gorm:"primaryKey" json:"id"`
	CompanyID      uint  `gorm:"not null;index" json:"company_id"`
	TechnicianID   uint  `gorm:"not null;index" json:"technician_id"`
	ServiceVisitID *uint `gorm:"index" json:"service_visit_id,omitempty"`

	CustomerName  string `gorm:"not null" json:"customer_name"`
	CustomerEmail string `gorm:"index" json:"customer_email"`
	CustomerPhone string `json:"customer_phone"` // E.164

	ServiceType        string     `json:"service_type"`
	InvoiceAmount      float64    `gorm:"default:0" json:"invoice_amount"`
	Sentiment          string     `gorm:"default:'unknown'" json:"sentiment"`
	ServiceCompletedAt *time.Time `json:"service_completed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
