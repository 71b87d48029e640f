package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"murmur/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webOrigin = "http://localhost:5173"

// newEdgeApp is a bare app behind the global middleware stack with one
// schedule-shaped route.
func newEdgeApp(origins string) *fiber.App {
	srv := &Server{config: &config.Config{AllowedOrigins: origins}}
	app := fiber.New()
	srv.SetupMiddleware(app)
	app.All("/api/scheduled-posts", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func sendFrom(t *testing.T, app *fiber.App, method, origin string, header map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "/api/scheduled-posts", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func exhaustGlobalLimit(t *testing.T, app *fiber.App) {
	t.Helper()
	for range 100 {
		resp := sendFrom(t, app, http.MethodGet, webOrigin, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestGlobalLimiter_RejectionKeepsCORS(t *testing.T) {
	app := newEdgeApp(webOrigin)
	exhaustGlobalLimit(t, app)

	resp := sendFrom(t, app, http.MethodPost, webOrigin, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, webOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "Too many requests")
}

func TestGlobalLimiter_SkipsPreflight(t *testing.T) {
	app := newEdgeApp(webOrigin)
	exhaustGlobalLimit(t, app)

	resp := sendFrom(t, app, http.MethodOptions, webOrigin, map[string]string{
		"Access-Control-Request-Method":  http.MethodPut,
		"Access-Control-Request-Headers": "authorization,content-type",
	})
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, webOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPut)
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name    string
		origins string
		origin  string
		allowed bool
	}{
		{"configured origin", webOrigin, webOrigin, true},
		{"second configured origin", webOrigin + ",https://murmur.example.com", "https://murmur.example.com", true},
		{"unknown origin", webOrigin, "https://evil.example.com", false},
		{"defaults reject unknown", "", "https://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := sendFrom(t, newEdgeApp(tt.origins), http.MethodGet, tt.origin, nil)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
			if tt.allowed {
				assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}
