package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankitpro/utils"
)

func TestProtected(t *testing.T) {
	app := fiber.New()
	app.Get("/me", Protected("secret"), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"company_id": CompanyID(c)})
	})

	token, err := utils.GenerateJWTToken("secret", 1, 9, "company_admin", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"bad format", "Token " + token, fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestPublicRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Get("/r/:token", PublicRateLimiter(2, nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/r/abc", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestCORSPreflight(t *testing.T) {
	app := fiber.New()
	app.Use(CORS([]string{" https://app.test/ ", "*"}, 600))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("OPTIONS", "/x", nil)
	req.Header.Set("Origin", "https://app.test")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.test", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
