package drip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"

	"rankitpro/models"
	"rankitpro/utils"
)

// Options tunes the engine. Zero values fall back to the defaults below.
type Options struct {
	LeaseTTL         time.Duration
	BatchSize        int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	DefaultRegion    string
	Now              func() time.Time
}

const (
	defaultLeaseTTL  = 10 * time.Minute
	defaultBatchSize = 500
	defaultRegion    = "US"
)

// Engine evaluates drips, dispatches due stages and applies customer events
type Engine struct {
	store    Store
	notifier Notifier
	links    LinkBuilder
	sinks    []EventSink
	opts     Options
	log      *logrus.Entry
}

// Result is the outcome of one drip in a dispatch batch
type Result struct {
	RequestID uint
	Stage     Stage
	Sent      bool
	Err       error
}

// StatusView answers a status query for one drip
type StatusView struct {
	Drip       *models.ReviewDrip `json:"drip"`
	StagesSent []string           `json:"stages_sent"`
	NextStage  string             `json:"next_stage,omitempty"`
	NextDueAt  *time.Time         `json:"next_due_at,omitempty"`
}

// EnrollRequest carries a newly issued review request
type EnrollRequest struct {
	CompanyID          uint       `json:"-"`
	TechnicianID       uint       `json:"technician_id" validate:"required"`
	ServiceVisitID     *uint      `json:"service_visit_id"`
	CustomerName       string     `json:"customer_name" validate:"required,max=255"`
	CustomerEmail      string     `json:"customer_email" validate:"omitempty,max=255"`
	CustomerPhone      string     `json:"customer_phone" validate:"omitempty,max=32"`
	ServiceType        string     `json:"service_type" validate:"max=100"`
	InvoiceAmount      float64    `json:"invoice_amount" validate:"min=0"`
	Sentiment          string     `json:"sentiment" validate:"omitempty,oneof=positive neutral negative unknown"`
	ServiceCompletedAt *time.Time `json:"service_completed_at"`
}

func NewEngine(store Store, notifier Notifier, links LinkBuilder, opts Options, sinks ...EventSink) *Engine {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = defaultLeaseTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = defaultRegion
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		links:    links,
		sinks:    sinks,
		opts:     opts,
		log:      utils.Logger("drip_engine"),
	}
}

// AddSink registers another event sink. Call it before the engine is shared.
func (e *Engine) AddSink(s EventSink) {
	e.sinks = append(e.sinks, s)
}

// Now is the engine's clock
func (e *Engine) Now() time.Time {
	return e.opts.Now()
}

// RunDue walks every active drip, BatchSize rows at a time, and dispatches
// whatever is due
func (e *Engine) RunDue(ctx context.Context, now time.Time) ([]Result, error) {
	return e.runActive(ctx, 0, now)
}

// RunDueForCompany is RunDue restricted to one company's drips
func (e *Engine) RunDueForCompany(ctx context.Context, companyID uint, now time.Time) ([]Result, error) {
	if companyID == 0 {
		return nil, fmt.Errorf("%w: company id is required", ErrNotFound)
	}
	return e.runActive(ctx, companyID, now)
}

func (e *Engine) runActive(ctx context.Context, companyID uint, now time.Time) ([]Result, error) {
	configs := make(map[uint]*models.ReviewDripConfig)
	var (
		results []Result
		afterID uint
	)
	for ctx.Err() == nil {
		page, err := e.store.ListActive(ctx, ActiveFilter{
			CompanyID: companyID,
			AfterID:   afterID,
			Limit:     e.opts.BatchSize,
		})
		if err != nil {
			return results, fmt.Errorf("list active drips after id %d: %w", afterID, err)
		}
		results = append(results, e.evaluateBatch(ctx, page, now, configs)...)
		if len(page) < e.opts.BatchSize {
			break
		}
		afterID = page[len(page)-1].ID
	}
	return results, nil
}

// EvaluateAndDispatchDue runs the evaluator and dispatcher over a batch.
// A failing row is logged and reported in its Result, it never stops the batch.
func (e *Engine) EvaluateAndDispatchDue(ctx context.Context, drips []models.ReviewDrip, now time.Time) []Result {
	return e.evaluateBatch(ctx, drips, now, make(map[uint]*models.ReviewDripConfig))
}

// evaluateBatch shares configs across the pages of one cycle
func (e *Engine) evaluateBatch(ctx context.Context, drips []models.ReviewDrip, now time.Time, configs map[uint]*models.ReviewDripConfig) []Result {
	results := make([]Result, 0, len(drips))

	for i := range drips {
		if ctx.Err() != nil {
			break
		}
		d := &drips[i]
		res := Result{RequestID: d.ReviewRequestID}

		cfg, cached := configs[d.CompanyID]
		if !cached {
			c, err := e.store.GetConfig(ctx, d.CompanyID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				res.Err = fmt.Errorf("load config for company %d: %w", d.CompanyID, err)
				e.log.WithError(err).WithField("company_id", d.CompanyID).Error("Failed to load drip config")
				results = append(results, res)
				continue
			}
			configs[d.CompanyID] = c
			cfg = c
			if cfg == nil || !cfg.IsActive {
				e.log.WithField("company_id", d.CompanyID).Warn("Drip config missing or inactive, drips for this company are idle")
			}
		}

		stage, err := Evaluate(d, cfg, now)
		if err != nil {
			res.Err = err
			utils.LogError("drip_integrity", err, map[string]interface{}{
				"request_id": d.ReviewRequestID,
				"company_id": d.CompanyID,
			})
			results = append(results, res)
			continue
		}
		res.Stage = stage
		if stage == StageNone {
			results = append(results, res)
			continue
		}
		if !backoffElapsed(d, now, e.opts.RetryBackoffBase, e.opts.RetryBackoffMax) {
			e.log.WithFields(logrus.Fields{
				"request_id":      d.ReviewRequestID,
				"stage":           stage.String(),
				"failed_attempts": d.FailedAttempts,
			}).Debug("Retry backoff has not elapsed")
			res.Stage = StageNone
			results = append(results, res)
			continue
		}

		res.Sent, res.Err = e.Dispatch(ctx, d, cfg, stage, now)
		results = append(results, res)
	}
	return results
}

type delivery struct {
	channel string
	to      string
}

func channelsFor(cfg *models.ReviewDripConfig, d *models.ReviewDrip) []delivery {
	var out []delivery
	if cfg.EnableEmailRequests && strings.TrimSpace(d.CustomerEmail) != "" {
		out = append(out, delivery{channel: models.ChannelEmail, to: d.CustomerEmail})
	}
	if cfg.EnableSmsRequests && strings.TrimSpace(d.CustomerPhone) != "" {
		out = append(out, delivery{channel: models.ChannelSMS, to: d.CustomerPhone})
	}
	return out
}

// Dispatch sends one due stage. The stage is claimed under the row lock
// before anything is sent and marked sent only after a channel accepted it.
// It returns true when the stage was marked. d is refreshed on success.
func (e *Engine) Dispatch(ctx context.Context, d *models.ReviewDrip, cfg *models.ReviewDripConfig, stage Stage, now time.Time) (bool, error) {
	if stage == StageNone {
		return false, nil
	}
	log := e.log.WithFields(logrus.Fields{
		"request_id": d.ReviewRequestID,
		"company_id": d.CompanyID,
		"stage":      stage.String(),
	})

	var (
		claimed    bool
		leaseUntil time.Time
		snapshot   models.ReviewDrip
	)
	err := e.store.WithDrip(ctx, d.ReviewRequestID, func(cur *models.ReviewDrip) (bool, error) {
		due, err := Evaluate(cur, cfg, now)
		if err != nil {
			return false, err
		}
		if due != stage || !claimStage(cur, stage, now, e.opts.LeaseTTL) {
			return false, nil
		}
		claimed = true
		leaseUntil = *cur.DispatchLeaseUntil
		snapshot = *cur
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("claim stage %s for request %d: %w", stage, d.ReviewRequestID, err)
	}
	if !claimed {
		log.Debug("Stage already claimed or no longer due, skipping")
		return false, nil
	}

	accepted, failures := e.deliver(ctx, &snapshot, cfg, stage, now)
	if len(accepted) == 0 {
		reason := strings.Join(failures, "; ")
		if reason == "" {
			reason = "no usable channel for this customer"
		}
		return false, e.recordFailure(ctx, &snapshot, stage, reason, now)
	}

	var marked, terminal, leaseLost bool
	var after models.ReviewDrip
	err = e.store.WithDrip(ctx, d.ReviewRequestID, func(cur *models.ReviewDrip) (bool, error) {
		leaseLost = !holdsClaim(cur, stage, leaseUntil)
		if cur.IsTerminal() {
			terminal = true
			releaseClaim(cur)
			after = *cur
			return true, nil
		}
		marked = applyStageSent(cur, stage, now)
		after = *cur
		return marked, nil
	})
	if err != nil {
		// Delivered but not recorded. The lease keeps other runs away until it
		// expires, after which the stage will be sent again.
		utils.LogError("drip_mark_sent", err, map[string]interface{}{
			"request_id":  d.ReviewRequestID,
			"stage":       stage.String(),
			"channels":    accepted,
			"lease_until": leaseUntil,
		})
		return false, fmt.Errorf("mark stage %s sent for request %d: %w", stage, d.ReviewRequestID, err)
	}
	*d = after

	if leaseLost {
		log.Warn("Dispatch lease expired before the stage was marked")
	}
	if terminal {
		log.WithField("status", after.Status).Warn("Drip became terminal while the stage was in flight, stage left unmarked")
		return false, nil
	}
	if !marked {
		log.Warn("Stage was already marked by another run")
		return false, nil
	}

	log.WithField("channels", accepted).Info("Review drip stage sent")
	e.publish(ctx, Event{
		Type:       EventStageSent,
		RequestID:  after.ReviewRequestID,
		CompanyID:  after.CompanyID,
		Stage:      stage.String(),
		Channels:   accepted,
		Status:     after.Status,
		OccurredAt: now,
	})
	return true, nil
}

// deliver sends the stage on every applicable channel and records each attempt
func (e *Engine) deliver(ctx context.Context, d *models.ReviewDrip, cfg *models.ReviewDripConfig, stage Stage, now time.Time) (accepted, failures []string) {
	subject, body := render(cfg, d, stage, e.links)
	template := settingsFor(cfg, stage).message
	unsubscribeLink := ""
	if e.links != nil {
		unsubscribeLink = e.links.UnsubscribeLink(d.ReviewRequestID)
	}

	for _, ch := range channelsFor(cfg, d) {
		msg := Message{
			Channel:   ch.channel,
			To:        ch.to,
			Subject:   subject,
			Body:      withUnsubscribe(body, template, unsubscribeLink, ch.channel),
			RequestID: d.ReviewRequestID,
			Stage:     stage.String(),
		}
		if ch.channel == models.ChannelSMS {
			msg.Subject = ""
		}

		messageID, err := e.notifier.Send(ctx, msg)
		attempt := &models.DeliveryAttempt{
			ReviewDripID: d.ID,
			Stage:        stage.String(),
			Channel:      ch.channel,
			Recipient:    ch.to,
			MessageID:    messageID,
			Success:      err == nil,
			AttemptedAt:  now,
		}
		if err != nil {
			attempt.Error = err.Error()
			failures = append(failures, ch.channel+": "+err.Error())
			e.log.WithError(err).WithFields(logrus.Fields{
				"request_id": d.ReviewRequestID,
				"channel":    ch.channel,
				"stage":      stage.String(),
			}).Warn("Channel delivery failed")
		} else {
			accepted = append(accepted, ch.channel)
		}

		if rerr := e.store.RecordAttempt(ctx, attempt); rerr != nil {
			utils.LogError("drip_record_attempt", rerr, map[string]interface{}{
				"request_id": d.ReviewRequestID,
				"channel":    ch.channel,
			})
		}
	}
	return accepted, failures
}

func (e *Engine) recordFailure(ctx context.Context, d *models.ReviewDrip, stage Stage, reason string, now time.Time) error {
	var after models.ReviewDrip
	err := e.store.WithDrip(ctx, d.ReviewRequestID, func(cur *models.ReviewDrip) (bool, error) {
		applyDeliveryFailure(cur, reason, now)
		after = *cur
		return true, nil
	})
	if err != nil {
		utils.LogError("drip_record_failure", err, map[string]interface{}{
			"request_id": d.ReviewRequestID,
			"stage":      stage.String(),
		})
	}

	failure := fmt.Errorf("%w: stage %s for request %d: %s", ErrDeliveryFailed, stage, d.ReviewRequestID, reason)
	utils.LogError("drip_delivery", failure, map[string]interface{}{
		"request_id":      d.ReviewRequestID,
		"company_id":      d.CompanyID,
		"stage":           stage.String(),
		"failed_attempts": after.FailedAttempts,
	})
	e.publish(ctx, Event{
		Type:       EventDeliveryFailed,
		RequestID:  d.ReviewRequestID,
		CompanyID:  d.CompanyID,
		Stage:      stage.String(),
		Status:     d.Status,
		Error:      reason,
		OccurredAt: now,
	})
	return failure
}

// LinkClicked records the first click on the review link
func (e *Engine) LinkClicked(ctx context.Context, requestID uint, at time.Time) (*models.ReviewDrip, error) {
	return e.transition(ctx, requestID, func(d *models.ReviewDrip) (bool, error) {
		return applyLinkClick(d, at), nil
	}, Event{Type: EventLinkClicked, OccurredAt: at})
}

// ReviewSubmitted completes the drip with the customer's rating
func (e *Engine) ReviewSubmitted(ctx context.Context, requestID uint, rating int, at time.Time) (*models.ReviewDrip, error) {
	return e.transition(ctx, requestID, func(d *models.ReviewDrip) (bool, error) {
		return applyReviewSubmitted(d, rating, at)
	}, Event{Type: EventReviewSubmitted, Rating: rating, OccurredAt: at})
}

// Unsubscribe stops any further stage for this request
func (e *Engine) Unsubscribe(ctx context.Context, requestID uint, at time.Time) (*models.ReviewDrip, error) {
	return e.transition(ctx, requestID, func(d *models.ReviewDrip) (bool, error) {
		return applyUnsubscribe(d, at), nil
	}, Event{Type: EventUnsubscribed, OccurredAt: at})
}

func (e *Engine) transition(ctx context.Context, requestID uint, apply func(*models.ReviewDrip) (bool, error), ev Event) (*models.ReviewDrip, error) {
	var (
		changed bool
		after   models.ReviewDrip
	)
	err := e.store.WithDrip(ctx, requestID, func(d *models.ReviewDrip) (bool, error) {
		c, err := apply(d)
		if err != nil {
			return false, err
		}
		changed = c
		after = *d
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		ev.RequestID = after.ReviewRequestID
		ev.CompanyID = after.CompanyID
		ev.Status = after.Status
		utils.LogEvent("review_drip_"+string(ev.Type), map[string]interface{}{
			"request_id": after.ReviewRequestID,
			"company_id": after.CompanyID,
			"status":     after.Status,
		})
		e.publish(ctx, ev)
	}
	return &after, nil
}

// Enroll creates the review request and its drip after checking contact
// details and the company's targeting filters
func (e *Engine) Enroll(ctx context.Context, in EnrollRequest) (*models.ReviewDrip, error) {
	email := strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	phone := strings.TrimSpace(in.CustomerPhone)
	if email == "" && phone == "" {
		return nil, fmt.Errorf("%w: an email address or phone number is required", ErrInvalidContact)
	}
	if email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			return nil, fmt.Errorf("%w: email %q: %v", ErrInvalidContact, email, err)
		}
	}
	if phone != "" {
		normalized, err := utils.NormalizePhone(phone, e.opts.DefaultRegion)
		if err != nil {
			return nil, fmt.Errorf("%w: phone %q: %v", ErrInvalidContact, phone, err)
		}
		phone = normalized
	}

	cfg, err := e.store.GetConfig(ctx, in.CompanyID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConfigUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load config for company %d: %w", in.CompanyID, err)
	}
	if !cfg.IsActive {
		return nil, ErrConfigUnavailable
	}

	sentiment := in.Sentiment
	if sentiment == "" {
		sentiment = models.SentimentUnknown
	}
	req := &models.ReviewRequest{
		CompanyID:          in.CompanyID,
		TechnicianID:       in.TechnicianID,
		ServiceVisitID:     in.ServiceVisitID,
		CustomerName:       strings.TrimSpace(in.CustomerName),
		CustomerEmail:      email,
		CustomerPhone:      phone,
		ServiceType:        strings.TrimSpace(in.ServiceType),
		InvoiceAmount:      in.InvoiceAmount,
		Sentiment:          sentiment,
		ServiceCompletedAt: in.ServiceCompletedAt,
	}
	if err := CheckEligibility(cfg, req); err != nil {
		return nil, err
	}

	anchor := e.Now()
	if in.ServiceCompletedAt != nil {
		anchor = *in.ServiceCompletedAt
	}
	d := &models.ReviewDrip{
		ServiceVisitID: in.ServiceVisitID,
		CompanyID:      in.CompanyID,
		TechnicianID:   in.TechnicianID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  email,
		CustomerPhone:  phone,
		Status:         models.DripStatusPending,
		AnchorAt:       anchor,
	}
	if err := e.store.CreateDrip(ctx, req, d); err != nil {
		return nil, fmt.Errorf("create drip: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"request_id": d.ReviewRequestID,
		"company_id": d.CompanyID,
	}).Info("Review drip enrolled")
	e.publish(ctx, Event{
		Type:       EventEnrolled,
		RequestID:  d.ReviewRequestID,
		CompanyID:  d.CompanyID,
		Status:     d.Status,
		OccurredAt: e.Now(),
	})
	return d, nil
}

// Status returns a drip with its progress and next scheduled stage
func (e *Engine) Status(ctx context.Context, requestID uint) (*StatusView, error) {
	d, err := e.store.GetDrip(ctx, requestID)
	if err != nil {
		return nil, err
	}
	view := &StatusView{Drip: d, StagesSent: []string{}}
	for _, s := range StagesSent(d) {
		view.StagesSent = append(view.StagesSent, s.String())
	}

	cfg, err := e.store.GetConfig(ctx, d.CompanyID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if stage, at, ok := DueAt(d, cfg); ok {
		view.NextStage = stage.String()
		view.NextDueAt = &at
	}
	return view, nil
}

// Config returns the company's drip config
func (e *Engine) Config(ctx context.Context, companyID uint) (*models.ReviewDripConfig, error) {
	return e.store.GetConfig(ctx, companyID)
}

// SaveConfig validates and stores a company's drip config
func (e *Engine) SaveConfig(ctx context.Context, cfg *models.ReviewDripConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	return e.store.SaveConfig(ctx, cfg)
}

// List pages through a company's drips
func (e *Engine) List(ctx context.Context, companyID uint, filter ListFilter) ([]models.ReviewDrip, int64, error) {
	return e.store.ListByCompany(ctx, companyID, filter)
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	for _, s := range e.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"event":      ev.Type,
				"request_id": ev.RequestID,
			}).Warn("Failed to publish drip event")
		}
	}
}
