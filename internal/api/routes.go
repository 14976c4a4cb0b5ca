package api

import (
	"time"

	"github.com/ahrdadan/headctl/internal/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RouteConfig holds configuration for routes
type RouteConfig struct {
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window
	RateLimitBurst    int           // back-to-back requests allowed
}

// DefaultRouteConfig returns default route configuration
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		RateLimitRequests: 120,
		RateLimitWindow:   time.Minute,
		RateLimitBurst:    20,
	}
}

// SetupRoutes registers the console, health check, event stream and browser
// API. The returned limiter must be closed on shutdown.
func SetupRoutes(app *fiber.App, handler *Handler, config RouteConfig) *security.RateLimiter {
	rateLimiter := security.NewRateLimiter(security.RateLimitConfig{
		RequestsPerWindow: config.RateLimitRequests,
		WindowDuration:    config.RateLimitWindow,
		BurstMax:          config.RateLimitBurst,
	})
	secMiddleware := security.NewMiddleware(rateLimiter)

	app.Use(security.SecurityHeadersMiddleware())

	// Health check and console (no rate limit)
	app.Get("/health", handler.HealthCheck)
	app.Get("/", handler.Console)

	// WebSocket endpoint for operation events
	app.Use("/api/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/ws", websocket.New(handler.StreamEvents))

	api := app.Group("/api")
	api.Use(secMiddleware.RateLimitMiddleware())
	api.Use(security.RequestValidationMiddleware())

	// Browser lifecycle
	api.Post("/start", handler.StartBrowser)
	api.Post("/stop", handler.StopBrowser)
	api.Get("/status", handler.BrowserStatus)

	// Page operations
	api.Post("/navigate", handler.Navigate)
	api.Post("/execute_script", handler.ExecuteScript)
	api.Get("/screenshot", handler.Screenshot)

	// Tab management
	api.Post("/open_tab", handler.OpenTab)
	api.Get("/tabs", handler.ListTabs)
	api.Post("/switch_tab", handler.SwitchTab)
	api.Post("/close_tab", handler.CloseTab)

	return rateLimiter
}
