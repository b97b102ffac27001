package controller

import (
	"crypto/subtle"
	"errors"
	"html"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"rankitpro/drip"
	"rankitpro/utils"
)

const webhookSecretHeader = "X-Webhook-Secret"

// TrackingController serves the public links placed in review messages and
// the review platform webhook
type TrackingController struct {
	Engine        *drip.Engine
	Signer        *utils.LinkSigner
	WebhookSecret string
	Logger        *logrus.Entry
}

func NewTrackingController(engine *drip.Engine, signer *utils.LinkSigner, webhookSecret string) *TrackingController {
	return &TrackingController{
		Engine:        engine,
		Signer:        signer,
		WebhookSecret: webhookSecret,
		Logger:        utils.Logger("tracking_controller"),
	}
}

// TrackClick records the click and redirects to the company's review page
func (tc *TrackingController) TrackClick(c *fiber.Ctx) error {
	requestID, err := tc.Signer.Verify(utils.LinkPurposeReview, c.Params("token"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Link not found", nil)
	}

	ctx := c.UserContext()
	d, err := tc.Engine.LinkClicked(ctx, requestID, tc.Engine.Now())
	if err != nil {
		return dripError(c, err, "Failed to record click")
	}

	cfg, err := tc.Engine.Config(ctx, d.CompanyID)
	if err != nil || cfg.ReviewURL == "" {
		if err != nil && !errors.Is(err, drip.ErrNotFound) {
			tc.Logger.WithError(err).WithField("company_id", d.CompanyID).Warn("Could not load review url")
		}
		return c.Type("html").SendString(page("Thank you", "Thanks for your feedback. You can close this window."))
	}
	return c.Redirect(cfg.ReviewURL, fiber.StatusFound)
}

// Unsubscribe opts the customer out of any further stage
func (tc *TrackingController) Unsubscribe(c *fiber.Ctx) error {
	requestID, err := tc.Signer.Verify(utils.LinkPurposeUnsubscribe, c.Params("token"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Link not found", nil)
	}

	if _, err := tc.Engine.Unsubscribe(c.UserContext(), requestID, tc.Engine.Now()); err != nil {
		return dripError(c, err, "Failed to unsubscribe")
	}
	return c.Type("html").SendString(page("Unsubscribed", "You will not receive any more review requests for this service visit."))
}

func page(title, message string) string {
	return "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" + html.EscapeString(title) +
		"</title></head><body><h1>" + html.EscapeString(title) + "</h1><p>" +
		html.EscapeString(message) + "</p></body></html>"
}

// ReviewWebhook receives submitted reviews from the review platform
func (tc *TrackingController) ReviewWebhook(c *fiber.Ctx) error {
	if tc.WebhookSecret == "" {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Review webhook is not configured", nil)
	}
	if subtle.ConstantTimeCompare([]byte(c.Get(webhookSecretHeader)), []byte(tc.WebhookSecret)) != 1 {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid webhook secret", nil)
	}

	var input struct {
		RequestID   uint       `json:"request_id" validate:"required"`
		Rating      int        `json:"rating" validate:"required,min=1,max=5"`
		SubmittedAt *time.Time `json:"submitted_at"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	at := tc.Engine.Now()
	if input.SubmittedAt != nil {
		at = *input.SubmittedAt
	}

	d, err := tc.Engine.ReviewSubmitted(c.UserContext(), input.RequestID, input.Rating, at)
	if err != nil {
		return dripError(c, err, "Failed to record review")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"request_id": d.ReviewRequestID,
		"status":     d.Status,
	}))
}
