package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rankitpro/drip"
	"rankitpro/middleware"
	"rankitpro/models"
	"rankitpro/utils"
)

const (
	exportLimit         = 10000
	attemptHistoryLimit = 50
)

// AttemptLister exposes a drip's delivery history. The gorm repository
// implements it.
type AttemptLister interface {
	Attempts(ctx context.Context, dripID uint, limit int) ([]models.DeliveryAttempt, error)
}

type ReviewDripController struct {
	Engine   *drip.Engine
	Attempts AttemptLister
	Logger   *logrus.Entry
}

func NewReviewDripController(engine *drip.Engine, attempts AttemptLister) *ReviewDripController {
	return &ReviewDripController{
		Engine:   engine,
		Attempts: attempts,
		Logger:   utils.Logger("review_drip_controller"),
	}
}

// dripError maps drip errors to HTTP responses
func dripError(c *fiber.Ctx, err error, fallback string) error {
	var cerr *drip.ConfigError
	switch {
	case errors.As(err, &cerr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success":  false,
			"error":    "Invalid review drip config",
			"problems": cerr.Problems,
		})
	case errors.Is(err, drip.ErrNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Review request not found", nil)
	case errors.Is(err, drip.ErrUnsubscribed):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Customer has unsubscribed", err)
	case errors.Is(err, drip.ErrConfigUnavailable):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Review drips are not configured or inactive for this company", nil)
	case errors.Is(err, drip.ErrNotEligible),
		errors.Is(err, drip.ErrInvalidContact),
		errors.Is(err, drip.ErrInvalidRating):
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, fallback, err)
	}

	utils.LogError("review_drip_api", err, map[string]interface{}{
		"path":   c.Path(),
		"method": c.Method(),
	})
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, fallback, nil)
}

// GetConfig returns the company's drip settings, or the defaults when none
// were saved yet
func (rc *ReviewDripController) GetConfig(c *fiber.Ctx) error {
	companyID := middleware.CompanyID(c)

	cfg, err := rc.Engine.Config(c.UserContext(), companyID)
	if errors.Is(err, drip.ErrNotFound) {
		return c.JSON(fiber.Map{
			"success": true,
			"saved":   false,
			"data":    models.NewReviewDripConfig(companyID),
		})
	}
	if err != nil {
		return dripError(c, err, "Failed to load review drip config")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"saved":   true,
		"data":    cfg,
	})
}

// UpdateConfig validates and stores the company's drip settings
func (rc *ReviewDripController) UpdateConfig(c *fiber.Ctx) error {
	companyID := middleware.CompanyID(c)

	var cfg models.ReviewDripConfig
	if err := c.BodyParser(&cfg); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	// Row bookkeeping is never client controlled
	cfg.Model = gorm.Model{}
	cfg.CompanyID = companyID

	if err := rc.Engine.SaveConfig(c.UserContext(), &cfg); err != nil {
		return dripError(c, err, "Failed to save review drip config")
	}

	rc.Logger.WithFields(logrus.Fields{
		"company_id": companyID,
		"active":     cfg.IsActive,
	}).Info("Review drip config updated")
	return c.JSON(utils.SuccessResponse(cfg))
}

// Enroll starts a drip for a newly issued review request
func (rc *ReviewDripController) Enroll(c *fiber.Ctx) error {
	var input drip.EnrollRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	input.CompanyID = middleware.CompanyID(c)

	d, err := rc.Engine.Enroll(c.UserContext(), input)
	if err != nil {
		return dripError(c, err, "Review request could not be enrolled")
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(d))
}

// ListDrips returns the company's drips, filtered by ?status=a,b
func (rc *ReviewDripController) ListDrips(c *fiber.Ctx) error {
	companyID := middleware.CompanyID(c)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid status filter", err)
	}

	drips, total, err := rc.Engine.List(c.UserContext(), companyID, drip.ListFilter{
		Statuses: statuses,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return dripError(c, err, "Failed to list review drips")
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  drips,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func parseStatuses(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		switch s {
		case models.DripStatusPending, models.DripStatusInProgress,
			models.DripStatusCompleted, models.DripStatusUnsubscribed:
			out = append(out, s)
		case "":
		default:
			return nil, fmt.Errorf("unknown status %q", s)
		}
	}
	return out, nil
}

// GetDrip answers a status query for one review request
func (rc *ReviewDripController) GetDrip(c *fiber.Ctx) error {
	requestID := utils.ParseUint(c.Params("requestID"))
	if requestID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid review request id", nil)
	}

	view, err := rc.Engine.Status(c.UserContext(), requestID)
	if err != nil {
		return dripError(c, err, "Failed to load review drip")
	}
	if view.Drip.CompanyID != middleware.CompanyID(c) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Review request not found", nil)
	}
	if rc.Attempts == nil {
		return c.JSON(utils.SuccessResponse(view))
	}

	attempts, err := rc.Attempts.Attempts(c.UserContext(), view.Drip.ID, attemptHistoryLimit)
	if err != nil {
		return dripError(c, err, "Failed to load delivery history")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"status":   view,
		"attempts": attempts,
	}))
}

// ExportDrips downloads the company's drips as an xlsx workbook
func (rc *ReviewDripController) ExportDrips(c *fiber.Ctx) error {
	companyID := middleware.CompanyID(c)

	drips, _, err := rc.Engine.List(c.UserContext(), companyID, drip.ListFilter{Limit: exportLimit})
	if err != nil {
		return dripError(c, err, "Failed to export review drips")
	}
	data, err := utils.BuildDripReport(drips)
	if err != nil {
		return dripError(c, err, "Failed to build report")
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="review-drips-%s.xlsx"`, rc.Engine.Now().Format("2006-01-02")))
	return c.Send(data)
}

// RunDue runs one evaluation cycle over the company's active drips
func (rc *ReviewDripController) RunDue(c *fiber.Ctx) error {
	companyID := middleware.CompanyID(c)
	ctx := c.UserContext()
	results, err := rc.Engine.RunDueForCompany(ctx, companyID, rc.Engine.Now())
	if err != nil {
		return dripError(c, err, "Failed to run review drips")
	}

	summary := summarize(results)
	rc.Logger.WithFields(logrus.Fields{
		"company_id": companyID,
		"evaluated":  summary.Evaluated,
		"sent":       summary.Sent,
		"failed":     summary.Failed,
	}).Info("Manual review drip run finished")
	return c.JSON(utils.SuccessResponse(summary))
}

type runSummary struct {
	Evaluated int             `json:"evaluated"`
	Sent      int             `json:"sent"`
	Failed    int             `json:"failed"`
	Errors    map[uint]string `json:"errors,omitempty"`
	Stages    map[string]int  `json:"stages"`
}

func summarize(results []drip.Result) runSummary {
	s := runSummary{Evaluated: len(results), Stages: map[string]int{}}
	for _, r := range results {
		if r.Sent {
			s.Sent++
			s.Stages[r.Stage.String()]++
		}
		if r.Err != nil {
			s.Failed++
			if s.Errors == nil {
				s.Errors = map[uint]string{}
			}
			s.Errors[r.RequestID] = r.Err.Error()
		}
	}
	return s
}
