// Package driptest provides in-memory fakes of the drip collaborators
package driptest

import (
	"context"
	"sort"
	"sync"
	"time"

	"rankitpro/drip"
	"rankitpro/models"
)

// MemoryStore is a drip.Store kept in maps. A single mutex stands in for the
// database row lock, so WithDrip callbacks never run concurrently.
type MemoryStore struct {
	mu       sync.Mutex
	configs  map[uint]models.ReviewDripConfig
	requests map[uint]models.ReviewRequest
	drips    map[uint]models.ReviewDrip
	attempts []models.DeliveryAttempt
	nextID   uint

	listActiveCalls int

	// FailWithDrip makes WithDrip fail for the given request ids
	FailWithDrip map[uint]error
}

var _ drip.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs:      make(map[uint]models.ReviewDripConfig),
		requests:     make(map[uint]models.ReviewRequest),
		drips:        make(map[uint]models.ReviewDrip),
		FailWithDrip: make(map[uint]error),
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) GetConfig(_ context.Context, companyID uint) (*models.ReviewDripConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[companyID]
	if !ok {
		return nil, drip.ErrNotFound
	}
	return &cfg, nil
}

func (s *MemoryStore) SaveConfig(_ context.Context, cfg *models.ReviewDripConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.configs[cfg.CompanyID]; ok {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	} else {
		cfg.ID = s.id()
		cfg.CreatedAt = time.Now()
	}
	cfg.UpdatedAt = time.Now()
	s.configs[cfg.CompanyID] = *cfg
	return nil
}

func (s *MemoryStore) CreateDrip(_ context.Context, req *models.ReviewRequest, d *models.ReviewDrip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == 0 {
		req.ID = s.id()
	}
	req.CreatedAt = time.Now()
	s.requests[req.ID] = *req

	d.ID = s.id()
	d.ReviewRequestID = req.ID
	d.CreatedAt = time.Now()
	s.drips[req.ID] = *d
	return nil
}

// PutDrip stores a drip row as is, for seeding tests
func (s *MemoryStore) PutDrip(d models.ReviewDrip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.id()
	}
	s.drips[d.ReviewRequestID] = d
}

func (s *MemoryStore) GetDrip(_ context.Context, requestID uint) (*models.ReviewDrip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drips[requestID]
	if !ok {
		return nil, drip.ErrNotFound
	}
	return &d, nil
}

// Request returns a stored review request
func (s *MemoryStore) Request(requestID uint) (models.ReviewRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	return r, ok
}

func (s *MemoryStore) ListActive(_ context.Context, filter drip.ActiveFilter) ([]models.ReviewDrip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listActiveCalls++
	var out []models.ReviewDrip
	for _, d := range s.drips {
		if d.Status != models.DripStatusPending && d.Status != models.DripStatusInProgress {
			continue
		}
		if d.ID <= filter.AfterID || (filter.CompanyID != 0 && d.CompanyID != filter.CompanyID) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListActiveCalls counts the pages loaded so far
func (s *MemoryStore) ListActiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listActiveCalls
}

func (s *MemoryStore) ListByCompany(_ context.Context, companyID uint, filter drip.ListFilter) ([]models.ReviewDrip, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReviewDrip
	for _, d := range s.drips {
		if d.CompanyID != companyID || !statusIn(d.Status, filter.Statuses) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.ReviewDrip{}, total, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func statusIn(status string, statuses []string) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *MemoryStore) WithDrip(_ context.Context, requestID uint, fn func(d *models.ReviewDrip) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailWithDrip[requestID]; err != nil {
		return err
	}
	d, ok := s.drips[requestID]
	if !ok {
		return drip.ErrNotFound
	}
	changed, err := fn(&d)
	if err != nil {
		return err
	}
	if changed {
		d.UpdatedAt = time.Now()
		s.drips[requestID] = d
	}
	return nil
}

func (s *MemoryStore) RecordAttempt(_ context.Context, a *models.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	s.attempts = append(s.attempts, *a)
	return nil
}

// Attempts returns a copy of the recorded delivery attempts
func (s *MemoryStore) Attempts() []models.DeliveryAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DeliveryAttempt(nil), s.attempts...)
}
