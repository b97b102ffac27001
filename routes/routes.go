package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	controller "rankitpro/controllers"
	"rankitpro/drip"
	"rankitpro/middleware"
	"rankitpro/utils"
)

// Deps carries everything the HTTP layer needs
type Deps struct {
	Engine         *drip.Engine
	Attempts       controller.AttemptLister
	Signer         *utils.LinkSigner
	Feed           *controller.FeedHub
	JWTSecret      string
	WebhookSecret  string
	RateLimitMax   int
	LimiterStorage fiber.Storage
}

func SetupRoutes(app *fiber.App, deps Deps) {
	SetupPublicRoutes(app, deps)
	SetupReviewDripRoutes(app, deps)

	utils.Logger("routes").Info("Review drip routes initialized successfully")
}

// SetupReviewDripRoutes registers the company dashboard API
func SetupReviewDripRoutes(app *fiber.App, deps Deps) {
	drips := controller.NewReviewDripController(deps.Engine, deps.Attempts)

	api := app.Group("/api/v1/review-drips", middleware.Protected(deps.JWTSecret))
	api.Get("/config", drips.GetConfig)
	api.Put("/config", drips.UpdateConfig)
	api.Get("/export", drips.ExportDrips)
	api.Post("/run", drips.RunDue)
	if deps.Feed != nil {
		api.Get("/feed", controller.RequireUpgrade, deps.Feed.Handler())
	}
	api.Post("/", drips.Enroll)
	api.Get("/", drips.ListDrips)
	api.Get("/:requestID", drips.GetDrip)
}

// SetupPublicRoutes registers the tracked links and the review webhook.
// None of them require a login so they are rate limited per IP.
func SetupPublicRoutes(app *fiber.App, deps Deps) {
	tracking := controller.NewTrackingController(deps.Engine, deps.Signer, deps.WebhookSecret)

	access := logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})
	limit := middleware.PublicRateLimiter(deps.RateLimitMax, deps.LimiterStorage)

	app.Get("/r/:token", access, limit, tracking.TrackClick)
	app.Get("/u/:token", access, limit, tracking.Unsubscribe)
	app.Post("/u/:token", access, limit, tracking.Unsubscribe)
	app.Post("/webhooks/reviews", access, limit, tracking.ReviewWebhook)
}
