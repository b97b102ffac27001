package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("APP_SECRET", "app")
	t.Setenv("DRIP_POLL_INTERVAL", "")
	t.Setenv("ENVIRONMENT", "development")

	require.NoError(t, LoadConfig())
	assert.Equal(t, time.Minute, AppConfig.Drip.PollInterval)
	assert.Equal(t, 10*time.Minute, AppConfig.Drip.LeaseTTL)
	assert.Equal(t, "US", AppConfig.Drip.DefaultRegion)
	assert.Equal(t, 587, AppConfig.SMTP.Port)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("APP_SECRET", "app")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DRIP_POLL_INTERVAL", "30s")
	t.Setenv("DRIP_BATCH_SIZE", "50")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("DRIP_RETRY_BACKOFF_BASE", "not-a-duration")

	require.NoError(t, LoadConfig())
	assert.Equal(t, 30*time.Second, AppConfig.Drip.PollInterval)
	assert.Equal(t, 50, AppConfig.Drip.BatchSize)
	assert.True(t, AppConfig.Redis.Enabled)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, AppConfig.AllowedOrigins)
	assert.Zero(t, AppConfig.Drip.RetryBackoffBase)
}

func TestLoadConfigRequiredValues(t *testing.T) {
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("APP_SECRET", "")
	t.Setenv("ENVIRONMENT", "development")
	assert.ErrorContains(t, LoadConfig(), "APP_SECRET")

	t.Setenv("APP_SECRET", "app")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REVIEW_WEBHOOK_SECRET", "")
	assert.ErrorContains(t, LoadConfig(), "REVIEW_WEBHOOK_SECRET")
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t,
		"host=db port=5432 password=***** dbname=x",
		maskPassword("host=db port=5432 password=secret dbname=x"))
	assert.Equal(t, "password=*****", maskPassword("password=secret"))
}
