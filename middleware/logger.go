package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs failed requests using logrus
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		entry := logrus.WithFields(logrus.Fields{
			"status":    status,
			"latency":   time.Since(start),
			"client_ip": c.IP(),
			"method":    c.Method(),
			"path":      c.Path(),
		})
		if status >= 500 {
			entry.Error("Server error")
		} else if status >= 400 {
			entry.Warn("Client error")
		}
		return err
	}
}
