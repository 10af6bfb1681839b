package api

import (
	"github.com/gofiber/fiber/v2"
)

// Register attaches all audience routes to the fiber app.
func Register(app *fiber.App, h *Handler) {
	v1 := app.Group("/api/v1")

	v1.Post("/audiences", h.CreateAudience)
	v1.Get("/audiences", h.ListAudiences)
	v1.Get("/audiences/:id/details", h.GetAudience)
	v1.Put("/audiences/:id", h.UpdateAudience)
	v1.Delete("/audiences/:id", h.DeleteAudience)
	v1.Post("/audiences/estimate", h.EstimateAudience)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
