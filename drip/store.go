package drip

import (
	"context"

	"rankitpro/models"
)

// ListFilter narrows a company's drip listing
type ListFilter struct {
	Statuses []string
	Limit    int
	Offset   int
}

// ActiveFilter selects one page of pending and in-progress drips, ordered
// by id. Pages are keyed on the last id seen so rows that never become due
// again cannot hide newer ones.
type ActiveFilter struct {
	CompanyID uint // 0 for every company
	AfterID   uint
	Limit     int
}

// Store is the persistence the engine needs. WithDrip runs fn while holding
// an exclusive lock on the drip row and saves the row when fn reports a
// change and returns no error.
type Store interface {
	GetConfig(ctx context.Context, companyID uint) (*models.ReviewDripConfig, error)
	SaveConfig(ctx context.Context, cfg *models.ReviewDripConfig) error

	CreateDrip(ctx context.Context, req *models.ReviewRequest, d *models.ReviewDrip) error
	GetDrip(ctx context.Context, requestID uint) (*models.ReviewDrip, error)
	ListActive(ctx context.Context, filter ActiveFilter) ([]models.ReviewDrip, error)
	ListByCompany(ctx context.Context, companyID uint, filter ListFilter) ([]models.ReviewDrip, int64, error)
	WithDrip(ctx context.Context, requestID uint, fn func(d *models.ReviewDrip) (bool, error)) error

	RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
}
