package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"rankitpro/config"
	controller "rankitpro/controllers"
	"rankitpro/drip"
	"rankitpro/middleware"
	"rankitpro/models"
	"rankitpro/queue"
	"rankitpro/repository"
	"rankitpro/routes"
	"rankitpro/utils"
	"rankitpro/worker"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	utils.ConfigureLogging(cfg.LogLevel, cfg.LogFormat)
	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logrus.WithError(err).Warn("Sentry disabled")
	}
	defer utils.FlushSentry()

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.NewReviewDripRepository(config.DB)

	signer, err := utils.NewLinkSigner(cfg.AppSecret, cfg.PublicBaseURL)
	if err != nil {
		logrus.Fatalf("Failed to create link signer: %v", err)
	}

	notifier := utils.NewChannelNotifier()
	if cfg.SMTP.Host != "" {
		notifier.Register(models.ChannelEmail, utils.NewEmailSender(utils.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
		}))
	}
	if cfg.SMS.GatewayURL != "" {
		notifier.Register(models.ChannelSMS, utils.NewSMSSender(utils.SMSConfig{
			GatewayURL: cfg.SMS.GatewayURL,
			APIToken:   cfg.SMS.APIToken,
			From:       cfg.SMS.From,
			Timeout:    cfg.SMS.Timeout,
		}, nil))
	}
	logrus.WithField("channels", notifier.Channels()).Info("Notification channels registered")

	feed := controller.NewFeedHub()
	engine := drip.NewEngine(repo, notifier, signer, drip.Options{
		LeaseTTL:         cfg.Drip.LeaseTTL,
		BatchSize:        cfg.Drip.BatchSize,
		RetryBackoffBase: cfg.Drip.RetryBackoffBase,
		RetryBackoffMax:  cfg.Drip.RetryBackoffMax,
		DefaultRegion:    cfg.Drip.DefaultRegion,
	}, feed)

	// Event fan-out and inbound customer events over RabbitMQ
	if cfg.RabbitMQURL != "" {
		mq, err := queue.Dial(cfg.RabbitMQURL)
		if err != nil {
			logrus.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer mq.Close()
		engine.AddSink(mq)

		go func() {
			if err := mq.ConsumeInbound(ctx, engine); err != nil {
				utils.LogError("rabbitmq_consumer", err, nil)
			}
		}()
	}

	// Rate limiter counters are shared through Redis when enabled
	var limiterStorage fiber.Storage
	if cfg.Redis.Enabled {
		redisStorage := middleware.NewRedisStorage(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisStorage.Ping(pingCtx)
		cancel()
		if err != nil {
			logrus.WithError(err).Warn("Redis unreachable, rate limiting in memory")
		} else {
			limiterStorage = redisStorage
			defer redisStorage.Close()
		}
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Rank It Pro review drips",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(middleware.CORS(cfg.AllowedOrigins, 3600))
	app.Use(middleware.RequestLogger())

	routes.SetupRoutes(app, routes.Deps{
		Engine:         engine,
		Attempts:       repo,
		Signer:         signer,
		Feed:           feed,
		JWTSecret:      cfg.JWTSecret,
		WebhookSecret:  cfg.WebhookSecret,
		RateLimitMax:   cfg.RateLimitMax,
		LimiterStorage: limiterStorage,
	})

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Initialize and start the drip worker
	dripWorker := worker.NewDripWorker(engine, cfg.Drip.PollInterval, cfg.Drip.StartupDelay)
	go dripWorker.Start(ctx)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}
}
