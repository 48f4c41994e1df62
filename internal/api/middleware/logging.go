package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pyre-fw/pyre/pkg/logger"
)

// requestIDLocal is the fiber.Ctx Locals key the request ID is stored
// under, for handlers that want to echo it back or log alongside it.
const requestIDLocal = "request_id"

// RequestID assigns a fresh UUID to every request so it can be traced
// across logs without correlating by time or client address.
func RequestID(c *fiber.Ctx) error {
	c.Locals(requestIDLocal, uuid.NewString())
	return c.Next()
}

// RequestLogger returns middleware that logs every HTTP request with
// structured fields once the handler chain completes.
func RequestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		log.Info("http request",
			"request_id", c.Locals(requestIDLocal),
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)

		return err
	}
}
