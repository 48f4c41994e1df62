// Package handlers holds the compile service's HTTP handlers.
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/pyre-fw/pyre"
	"github.com/pyre-fw/pyre/internal/config"
	"github.com/pyre-fw/pyre/internal/pyreerr"
	"github.com/pyre-fw/pyre/pkg/logger"
)

// CompileHandler serves POST /api/v1/compile.
type CompileHandler struct {
	Config *config.Config
	Logger *logger.Logger
}

// NewCompileHandler creates a CompileHandler bound to a base config;
// per-request table/strict fields override it for that request only.
func NewCompileHandler(cfg *config.Config, log *logger.Logger) *CompileHandler {
	return &CompileHandler{Config: cfg, Logger: log}
}

// compileRequest is the POST /api/v1/compile JSON body.
type compileRequest struct {
	Source string `json:"source"`
	Table  string `json:"table"`
	Strict bool   `json:"strict"`
}

// compileResponse is the POST /api/v1/compile JSON response.
type compileResponse struct {
	V4       []string `json:"v4"`
	V6       []string `json:"v6"`
	Warnings []string `json:"warnings"`
}

type warnCollector struct {
	messages []string
}

func (w *warnCollector) Warn(msg string, args ...interface{}) {
	w.messages = append(w.messages, msg)
}

// Handle parses the request body, compiles the embedded source text, and
// returns the v4/v6 iptables-restore line streams plus any warnings
// collected along the way.
func (h *CompileHandler) Handle(c *fiber.Ctx) error {
	var req compileRequest
	if err := c.BodyParser(&req); err != nil {
		return &pyreerr.Error{Code: "INVALID_REQUEST_BODY", Message: "invalid request body", Err: err}
	}
	if req.Source == "" {
		return &pyreerr.Error{Code: "MISSING_REQUIRED_FIELDS", Message: "source is required"}
	}

	cfg := *h.Config
	if req.Table != "" {
		cfg.DefaultTable = req.Table
	}
	cfg.Strict = req.Strict

	warn := &warnCollector{}
	result, err := pyre.Compile(req.Source, &cfg, warn)
	if err != nil {
		var pErr *pyreerr.Error
		if errors.As(err, &pErr) {
			return pErr
		}
		return err
	}

	return c.JSON(compileResponse{V4: result.V4, V6: result.V6, Warnings: warn.messages})
}
