package models

// Delivery channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification is one outbound message on a single channel
type Notification struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`

	// Reference data for headers and logging
	RequestID uint   `json:"request_id"`
	Stage     string `json:"stage"`
}
