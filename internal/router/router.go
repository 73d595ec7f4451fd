package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-teamchat/internal/config"
	"github.com/noah-isme/gema-teamchat/internal/handler"
	"github.com/noah-isme/gema-teamchat/internal/middleware"
	"github.com/noah-isme/gema-teamchat/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler     *handler.ChatHandler
	DirectHandler   *handler.DirectHandler
	RealtimeHandler *handler.RealtimeHandler
	JWTMiddleware   fiber.Handler
	RateLimiter     fiber.Handler
	HealthProbes    map[string]handler.HealthProbe
}

// Register wires the HTTP and websocket routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication unavailable")
		}
	}
	rateLimiter := deps.RateLimiter
	if rateLimiter == nil {
		rateLimiter = middleware.RateLimit("chat", cfg.RateLimitPerMinute, time.Minute)
	}

	chat := api.Group("/chat", jwtMiddleware, rateLimiter)
	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(chat)
	}
	if deps.DirectHandler != nil {
		deps.DirectHandler.Register(chat)
	}

	// Websocket sessions authenticate themselves, see service.Gateway.
	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(app.Group("/ws"))
	}
}
