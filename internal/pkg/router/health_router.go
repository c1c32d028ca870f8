package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClientHub/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
)

type HealthRouter struct {
	stats      func() notify.Stats
	deliveries counter.Recorder
}

// NewHealthRouter serves /healthz. Both arguments may be nil.
func NewHealthRouter(stats func() notify.Stats, deliveries counter.Recorder) *HealthRouter {
	return &HealthRouter{stats: stats, deliveries: deliveries}
}

func (h *HealthRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok"}
		if h.stats != nil {
			s := h.stats()
			body["notifications"] = fiber.Map{"pending": s.Pending, "processing": s.Processing}
		}
		if h.deliveries != nil {
			if snap, err := h.deliveries.Snapshot(c.UserContext()); err == nil {
				body["webhooks"] = snap
			}
		}
		return c.Status(fiber.StatusOK).JSON(body)
	})
}
