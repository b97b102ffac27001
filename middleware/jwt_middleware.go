package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"rankitpro/utils"
)

// Protected validates the bearer token and stores the caller's company in
// the request locals
func Protected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid authorization format",
				})
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
			if token == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Authorization required",
				})
			}
		}

		claims, err := utils.ParseJWTToken(secret, token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("userID", claims.UserID)
		c.Locals("companyID", claims.CompanyID)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}

// CompanyID returns the company set by Protected, 0 when absent
func CompanyID(c *fiber.Ctx) uint {
	id, _ := c.Locals("companyID").(uint)
	return id
}
