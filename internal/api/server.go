package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pyre-fw/pyre/internal/api/handlers"
	"github.com/pyre-fw/pyre/internal/api/middleware"
	"github.com/pyre-fw/pyre/internal/authtoken"
	"github.com/pyre-fw/pyre/internal/config"
	"github.com/pyre-fw/pyre/pkg/logger"
)

// ServerDeps holds the dependencies NewServer needs to wire the compile
// service's routes.
type ServerDeps struct {
	Config *config.Config
	Logger *logger.Logger
	Issuer *authtoken.Issuer
}

// NewServer creates and configures the Fiber application exposing the
// compile service's HTTP surface.
func NewServer(deps ServerDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
		AppName:      "Pyre Compile Service",
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(middleware.RequestID)
	app.Use(middleware.RequestLogger(deps.Logger))

	compileH := handlers.NewCompileHandler(deps.Config, deps.Logger)

	v1 := app.Group("/api/v1")
	v1.Get("/health", handlers.Health)

	compile := v1.Group("", middleware.BearerAuth(deps.Issuer))
	compile.Post("/compile", compileH.Handle)

	return app
}
