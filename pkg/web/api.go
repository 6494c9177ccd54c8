package web

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/state"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger   *slog.Logger
	defs     *graph.Definitions
	store    state.Store
	enqueuer Enqueuer
	sink     EventSink
	gatherer prometheus.Gatherer
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	defs *graph.Definitions,
	store state.Store,
	enqueuer Enqueuer,
	sink EventSink,
	gatherer prometheus.Gatherer,
) *API {
	return &API{
		logger:   logger.With("module", "api"),
		defs:     defs,
		store:    store,
		enqueuer: enqueuer,
		sink:     sink,
		gatherer: gatherer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := NewAPIHandlers(a.defs, a.store, a.enqueuer, a.sink, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	if a.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("assetflow")
	})

	app.Get("/assets", handlers.GetAssets)
	app.Get("/assets/*", handlers.GetAsset)

	j := app.Group("/jobs")
	j.Get("/", handlers.GetJobs)
	j.Get("/:name", handlers.GetJob)
	j.Post("/:name/runs", handlers.CreateRun)

	app.Get("/schedules", handlers.GetSchedules)
	app.Get("/sensors", handlers.GetSensors)

	e := app.Group("/events")
	e.Post("/run-completion", handlers.IngestRunCompletion)
	e.Post("/materialization", handlers.IngestMaterialization)

	return app
}

// Start serves until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	a.logger.Info("Starting API", "port", port)

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
