package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rankitpro/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type SMSConfig struct {
	GatewayURL string        `json:"gateway_url"`
	APIToken   string        `json:"-"`
	From       string        `json:"from"`
	Timeout    time.Duration `json:"timeout"`
}

// DripConfig tunes the review drip scheduler
type DripConfig struct {
	PollInterval     time.Duration `json:"poll_interval"`
	StartupDelay     time.Duration `json:"startup_delay"`
	BatchSize        int           `json:"batch_size"`
	LeaseTTL         time.Duration `json:"lease_ttl"`
	RetryBackoffBase time.Duration `json:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `json:"retry_backoff_max"`
	DefaultRegion    string        `json:"default_region"`
}

type Config struct {
	Environment    string      `json:"environment"`
	ServerPort     string      `json:"server_port"`
	JWTSecret      string      `json:"-"`
	AppSecret      string      `json:"-"`
	WebhookSecret  string      `json:"-"`
	PublicBaseURL  string      `json:"public_base_url"`
	AllowedOrigins []string    `json:"allowed_origins"`
	DBHost         string      `json:"db_host"`
	DBPort         string      `json:"db_port"`
	DBUser         string      `json:"db_user"`
	DBPassword     string      `json:"-"`
	DBName         string      `json:"db_name"`
	DBSSLMode      string      `json:"db_ssl_mode"`
	DBMaxIdleConns int         `json:"db_max_idle_conns"`
	DBMaxOpenConns int         `json:"db_max_open_conns"`
	Redis          RedisConfig `json:"redis"`
	RabbitMQURL    string      `json:"-"`
	SentryDSN      string      `json:"-"`
	LogLevel       string      `json:"log_level"`
	LogFormat      string      `json:"log_format"`
	RateLimitMax   int         `json:"rate_limit_max"`
	SMTP           SMTPConfig  `json:"smtp"`
	SMS            SMSConfig   `json:"sms"`
	Drip           DripConfig  `json:"drip"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AppSecret:      getEnv("APP_SECRET", ""),
		WebhookSecret:  getEnv("REVIEW_WEBHOOK_SECRET", ""),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:5000"),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "rankitpro"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RabbitMQURL:  getEnv("RABBITMQ_URL", ""),
		SentryDSN:    getEnv("SENTRY_DSN", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		RateLimitMax: getEnvAsInt("PUBLIC_RATE_LIMIT", 30),
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "Rank It Pro"),
		},
		SMS: SMSConfig{
			GatewayURL: getEnv("SMS_GATEWAY_URL", ""),
			APIToken:   getEnv("SMS_API_TOKEN", ""),
			From:       getEnv("SMS_FROM", ""),
			Timeout:    getEnvAsDuration("SMS_TIMEOUT", 10*time.Second),
		},
		Drip: DripConfig{
			PollInterval:     getEnvAsDuration("DRIP_POLL_INTERVAL", time.Minute),
			StartupDelay:     getEnvAsDuration("DRIP_STARTUP_DELAY", 10*time.Second),
			BatchSize:        getEnvAsInt("DRIP_BATCH_SIZE", 500),
			LeaseTTL:         getEnvAsDuration("DRIP_LEASE_TTL", 10*time.Minute),
			RetryBackoffBase: getEnvAsDuration("DRIP_RETRY_BACKOFF_BASE", 0),
			RetryBackoffMax:  getEnvAsDuration("DRIP_RETRY_BACKOFF_MAX", 6*time.Hour),
			DefaultRegion:    getEnv("DEFAULT_PHONE_REGION", "US"),
		},
	}

	if err := AppConfig.validate(); err != nil {
		return err
	}
	logConfig()
	return nil
}

func (c Config) validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AppSecret == "" {
		return fmt.Errorf("APP_SECRET is required to sign review links")
	}
	if c.Drip.PollInterval <= 0 {
		return fmt.Errorf("DRIP_POLL_INTERVAL must be positive")
	}
	if c.Drip.LeaseTTL <= 0 {
		return fmt.Errorf("DRIP_LEASE_TTL must be positive")
	}
	if c.Environment == "production" {
		if c.WebhookSecret == "" {
			return fmt.Errorf("REVIEW_WEBHOOK_SECRET is required in production")
		}
		if c.SMTP.Host == "" && c.SMS.GatewayURL == "" {
			return fmt.Errorf("at least one of SMTP_HOST or SMS_GATEWAY_URL is required in production")
		}
	}
	return nil
}

// DSN builds the postgres connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

func ConnectDB() error {
	log := logrus.WithField("component", "database")
	dsn := AppConfig.DSN()
	log.WithField("dsn", maskPassword(dsn)).Info("Attempting to connect to database")

	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("Successfully connected to the database")

	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		logrus.Warnf("Invalid integer for %s: %q, using %d", key, valueStr, fallback)
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		logrus.Warnf("Invalid boolean for %s: %q, using %t", key, valueStr, fallback)
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		logrus.Warnf("Invalid duration for %s: %q, using %s", key, valueStr, fallback)
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.WithFields(logrus.Fields{
		"environment":   AppConfig.Environment,
		"server_port":   AppConfig.ServerPort,
		"database":      fmt.Sprintf("%s@%s:%s/%s", AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName),
		"redis":         AppConfig.Redis.Enabled,
		"rabbitmq":      AppConfig.RabbitMQURL != "",
		"email_channel": AppConfig.SMTP.Host != "",
		"sms_channel":   AppConfig.SMS.GatewayURL != "",
		"drip_interval": AppConfig.Drip.PollInterval.String(),
	}).Info("Loaded configuration")
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ReviewDripConfig{},
		&models.ReviewRequest{},
		&models.ReviewDrip{},
		&models.DeliveryAttempt{},
	)
}
