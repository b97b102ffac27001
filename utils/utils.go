package utils

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// GenerateRateLimitKey creates a unique key for rate limiting public endpoints
func GenerateRateLimitKey(ip, path string) string {
	return fmt.Sprintf("rl:%s:%s", ip, path)
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// ErrorResponse creates a standardized error response
func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	response := fiber.Map{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	return c.Status(status).JSON(response)
}

// SuccessResponse creates a standardized success response
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}

// ParseUint parses a positive id, returning 0 for anything else
func ParseUint(s string) uint {
	i, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint(i)
}

// PaginatedResponse structure for paginated results
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}
