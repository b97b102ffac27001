package utils

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// ConfigureLogging sets the global logrus level and formatter
func ConfigureLogging(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Logger returns an entry tagged with the component name
func Logger(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// InitSentry initializes Sentry for error tracking. An empty DSN leaves
// Sentry disabled and every capture becomes a no-op.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		logrus.Info("Sentry disabled, SENTRY_DSN is empty")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
	})
	if err != nil {
		return err
	}
	logrus.WithField("environment", environment).Info("Sentry initialized")
	return nil
}

// FlushSentry waits for buffered events before shutdown
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// LogError logs errors with structured context to both console and Sentry
func LogError(errorType string, err error, context map[string]interface{}) {
	log := logrus.WithFields(logrus.Fields{
		"error_type": errorType,
		"error":      err.Error(),
	})
	for k, v := range context {
		log = log.WithField(k, v)
	}
	log.Error("Error occurred")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// LogEvent logs events with structured context
func LogEvent(eventType string, data map[string]interface{}) {
	log := logrus.WithFields(logrus.Fields{
		"event_type": eventType,
	})
	for k, v := range data {
		log = log.WithField(k, v)
	}
	log.Info("Event occurred")

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "info",
		Category:  eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
}
