package drip

import "errors"

var (
	ErrNotFound          = errors.New("review drip not found")
	ErrUnsubscribed      = errors.New("customer has unsubscribed from this review request")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrNotEligible       = errors.New("review request does not match the company's targeting filters")
	ErrConfigUnavailable = errors.New("review drip config missing or inactive")
	ErrInvalidConfig     = errors.New("invalid review drip config")
	ErrInvalidContact    = errors.New("invalid customer contact")
	ErrIntegrity         = errors.New("review drip data integrity violation")
	ErrDeliveryFailed    = errors.New("all delivery channels failed")
)
