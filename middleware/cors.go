package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const defaultDashboardOrigin = "http://localhost:3000"

// CORS lets the dashboard origins call the API with credentials. maxAge is
// in seconds.
func CORS(allowedOrigins []string, maxAge int) fiber.Handler {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" && o != "*" {
			origins = append(origins, o)
		}
	}
	// credentials cannot be combined with a wildcard origin
	if len(origins) == 0 {
		origins = []string{defaultDashboardOrigin}
	}

	return cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With",
		ExposeHeaders:    "Content-Length,Content-Disposition",
		AllowCredentials: true,
		MaxAge:           maxAge,
	})
}
