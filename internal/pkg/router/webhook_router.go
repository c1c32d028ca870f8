package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ClientHub/app/controllers"
	"github.com/ManuelReschke/ClientHub/internal/pkg/config"
)

// WebhookRouter mounts the provider callbacks under /webhooks. The routes
// carry no session or CSRF middleware; every handler verifies its caller.
type WebhookRouter struct {
	controller *controllers.WebhookController
	limit      limiter.Config
}

// NewWebhookRouter rate-limits callbacks per client IP. A nil storage keeps
// the counters in memory.
func NewWebhookRouter(wc *controllers.WebhookController, cfg config.WebhookConfig, storage fiber.Storage) *WebhookRouter {
	maxRequests := cfg.RateLimit
	if maxRequests <= 0 {
		maxRequests = 120
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	return &WebhookRouter{
		controller: wc,
		limit: limiter.Config{
			Max:        maxRequests,
			Expiration: window,
			Storage:    storage,
			KeyGenerator: func(c *fiber.Ctx) string {
				return "webhooks:" + c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
			},
		},
	}
}

func (r *WebhookRouter) InstallRouter(app *fiber.App) {
	hooks := app.Group("/webhooks", limiter.New(r.limit))

	hooks.Post("/stripe/:tenant?", r.controller.HandleStripeWebhook)
	hooks.Get("/docusign", r.controller.HandleDocuSignChallenge)
	hooks.Post("/docusign/:tenant?", r.controller.HandleDocuSignWebhook)
}

// NewLimiterStorage stores limiter counters in Redis database 1, next to the
// cache in database 0.
func NewLimiterStorage(cfg config.CacheConfig) fiber.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port <= 0 {
		port = 6379
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: 1,
		Reset:    false,
	})
}
