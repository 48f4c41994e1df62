// Package middleware holds the compile service's Fiber middleware.
package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/pyre-fw/pyre/internal/pyreerr"
)

// codeStatus maps a pyreerr.Code to the HTTP status the compile service
// responds with; the status lives only at this boundary since the
// compiler core carries a Code and Message but has no notion of HTTP.
var codeStatus = map[pyreerr.Code]int{
	pyreerr.CodeSyntax:       fiber.StatusBadRequest,
	pyreerr.CodeInvalidPort:  fiber.StatusBadRequest,
	pyreerr.CodeUnknownKw:    fiber.StatusBadRequest,
	pyreerr.CodeMissingArg:   fiber.StatusBadRequest,
	pyreerr.CodeFileNotFound: fiber.StatusUnprocessableEntity,
	pyreerr.CodeImportCycle:  fiber.StatusUnprocessableEntity,
}

// ErrorHandler converts a typed compiler error into a structured JSON
// response, falling back to a generic Fiber error body and finally a
// bare 500 for anything unrecognized.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var pErr *pyreerr.Error
	if errors.As(err, &pErr) {
		status, ok := codeStatus[pErr.Code]
		if !ok {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error":   string(pErr.Code),
			"message": pErr.Error(),
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error":   "HTTP_ERROR",
			"message": fiberErr.Message,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "INTERNAL_ERROR",
		"message": "an unexpected error occurred",
	})
}
