package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rankitpro/drip"
	"rankitpro/models"
)

// ReviewDripRepository is the postgres backed drip.Store
type ReviewDripRepository struct {
	db *gorm.DB
}

var _ drip.Store = (*ReviewDripRepository)(nil)

// NewReviewDripRepository creates a new ReviewDripRepository instance
func NewReviewDripRepository(db *gorm.DB) *ReviewDripRepository {
	return &ReviewDripRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return drip.ErrNotFound
	}
	return err
}

// GetConfig retrieves a company's drip config
func (r *ReviewDripRepository) GetConfig(ctx context.Context, companyID uint) (*models.ReviewDripConfig, error) {
	var cfg models.ReviewDripConfig
	if err := r.db.WithContext(ctx).Where("company_id = ?", companyID).First(&cfg).Error; err != nil {
		return nil, notFound(err)
	}
	return &cfg, nil
}

// SaveConfig inserts or replaces the company's config. Every column is
// written, so false and zero values are kept.
func (r *ReviewDripRepository) SaveConfig(ctx context.Context, cfg *models.ReviewDripConfig) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A soft-deleted row would hide the config and block the next insert
		// on the company_id unique index
		cfg.DeletedAt = gorm.DeletedAt{}

		var existing models.ReviewDripConfig
		err := tx.Unscoped().Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("company_id = ?", cfg.CompanyID).First(&existing).Error
		switch {
		case err == nil:
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
			return tx.Unscoped().Save(cfg).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			cfg.ID = 0
			return tx.Create(cfg).Error
		default:
			return err
		}
	})
}

// CreateDrip stores the review request and its drip in one transaction
func (r *ReviewDripRepository) CreateDrip(ctx context.Context, req *models.ReviewRequest, d *models.ReviewDrip) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		d.ReviewRequestID = req.ID
		return tx.Create(d).Error
	})
}

// GetDrip retrieves a drip by its review request id
func (r *ReviewDripRepository) GetDrip(ctx context.Context, requestID uint) (*models.ReviewDrip, error) {
	var d models.ReviewDrip
	if err := r.db.WithContext(ctx).Where("review_request_id = ?", requestID).First(&d).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// ListActive returns one page of pending and in-progress drips with an id
// above filter.AfterID, oldest first
func (r *ReviewDripRepository) ListActive(ctx context.Context, filter drip.ActiveFilter) ([]models.ReviewDrip, error) {
	var drips []models.ReviewDrip
	q := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.DripStatusPending, models.DripStatusInProgress}).
		Where("id > ?", filter.AfterID)
	if filter.CompanyID != 0 {
		q = q.Where("company_id = ?", filter.CompanyID)
	}
	q = q.Order("id ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&drips).Error; err != nil {
		return nil, err
	}
	return drips, nil
}

// ListByCompany pages through a company's drips, newest first
func (r *ReviewDripRepository) ListByCompany(ctx context.Context, companyID uint, filter drip.ListFilter) ([]models.ReviewDrip, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.ReviewDrip{}).Where("company_id = ?", companyID)
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var drips []models.ReviewDrip
	q = q.Order("id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&drips).Error; err != nil {
		return nil, 0, err
	}
	return drips, total, nil
}

// WithDrip locks the drip row with SELECT ... FOR UPDATE for the duration of fn
func (r *ReviewDripRepository) WithDrip(ctx context.Context, requestID uint, fn func(d *models.ReviewDrip) (bool, error)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.ReviewDrip
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("review_request_id = ?", requestID).First(&d).Error
		if err != nil {
			return notFound(err)
		}

		changed, err := fn(&d)
		if err != nil || !changed {
			return err
		}
		return tx.Save(&d).Error
	})
}

// RecordAttempt appends a delivery attempt row
func (r *ReviewDripRepository) RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// Attempts lists the delivery attempts of one drip, newest first
func (r *ReviewDripRepository) Attempts(ctx context.Context, dripID uint, limit int) ([]models.DeliveryAttempt, error) {
	var attempts []models.DeliveryAttempt
	q := r.db.WithContext(ctx).Where("review_drip_id = ?", dripID).Order("attempted_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
