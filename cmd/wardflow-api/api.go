// Package main provides the Wardflow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/services"
	"github.com/dukex/wardflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	engine      *cmd.Engine
	trigger     services.CycleTrigger
	validate    *validator.Validate
	payloads    *web.PayloadValidator
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	engine *cmd.Engine,
	trigger services.CycleTrigger,
) (*API, error) {
	payloads, err := web.NewPayloadValidator()
	if err != nil {
		return nil, err
	}

	return &API{
		logger:      logger,
		persistence: persistence,
		engine:      engine,
		trigger:     trigger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		payloads:    payloads,
	}, nil
}

func (a *API) App() *fiber.App {
	itemService := services.NewWorkflowItems(a.persistence, a.engine.Machine)
	resourceService := services.NewResources(a.engine.Registry)
	cycleService := services.NewCycles(a.trigger)

	handlers := web.NewAPIHandlers(itemService, resourceService, cycleService, a.validate, a.payloads)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Wardflow API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.Register(app)

	return app
}

// Start serves until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	err := app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{
		GracefulContext: ctx,
	})

	return err
}
