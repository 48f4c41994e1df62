package handlers

import "github.com/gofiber/fiber/v2"

// Health serves GET /api/v1/health. The compile service holds no
// database or external connection to probe, so liveness is just
// "the process is answering requests."
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
