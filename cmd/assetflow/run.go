package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/assetflow/pkg/cmd"
	"github.com/dukex/assetflow/pkg/log"
	"github.com/dukex/assetflow/pkg/metrics"
	"github.com/dukex/assetflow/pkg/notify"
	"github.com/dukex/assetflow/pkg/otelhelper"
	"github.com/dukex/assetflow/pkg/reconcile"
	"github.com/dukex/assetflow/pkg/runner"
	"github.com/dukex/assetflow/pkg/runqueue"
	"github.com/dukex/assetflow/pkg/scheduler"
	"github.com/dukex/assetflow/pkg/sensors"
	"github.com/dukex/assetflow/pkg/warehouse"
	"github.com/dukex/assetflow/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultPort = 9091

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the scheduler, the sensors, the runner and the API",
		Flags: append(graphFlags(),
			logLevelFlag(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "state-url",
				Usage:   "Run state store URL (memory://, postgres://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("STATE_URL"),
			},
			&cli.StringFlag{
				Name:    "dedup-url",
				Usage:   "Deduplication store URL (memory://, redis://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("DEDUP_URL"),
			},
			&cli.DurationFlag{
				Name:    "dedup-window",
				Usage:   "How long a deduplication key blocks identical run requests",
				Value:   runqueue.DefaultWindow,
				Sources: cli.EnvVars("DEDUP_WINDOW"),
			},
			&cli.DurationFlag{
				Name:    "tick",
				Usage:   "Scheduler tick interval",
				Value:   scheduler.DefaultTick,
				Sources: cli.EnvVars("SCHEDULER_TICK"),
			},
			&cli.StringFlag{
				Name:    "notify-url",
				Usage:   "Endpoint informed about file report runs; unset logs instead",
				Sources: cli.EnvVars("NOTIFY_URL"),
			},
			&cli.IntFlag{
				Name:    "notify-attempts",
				Usage:   "Attempts per notification",
				Value:   3,
				Sources: cli.EnvVars("NOTIFY_ATTEMPTS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("assetflow")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, shutdown, err := newTracer(ctx, command.Bool("tracing"))
			if err != nil {
				return err
			}

			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error("Failed to shut down tracer", "error", err)
				}
			}()

			defs, err := buildDefinitions(command, logger)
			if err != nil {
				return fmt.Errorf("invalid definitions: %w", err)
			}

			logger.InfoContext(ctx, "Built definitions", "definitions", defs.String())

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			m, err := metrics.NewMetrics(reg)
			if err != nil {
				return err
			}

			stores, err := cmd.NewStores(ctx, logger, command.String("state-url"), command.String("dedup-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := stores.Close(); err != nil {
					logger.Error("Failed to close stores", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			queue := runqueue.New(stores.Dedup, eventBus, command.Duration("dedup-window"), m, logger)

			dispatcher := sensors.NewDispatcher(defs, queue, m, tracer, logger)
			if err := dispatcher.Register(eventBus); err != nil {
				return err
			}

			wh := warehouse.New(logger)
			defer func() { _ = wh.Close() }()

			registry, err := cmd.NewRegistry(logger, cmd.RegistryConfig{
				Reconciler:  reconcile.New(wh, wh, wh, m, tracer, logger),
				NotifyURL:   command.String("notify-url"),
				NotifyRetry: notify.RetryConfig{Attempts: int(command.Int("notify-attempts"))},
			})
			if err != nil {
				return err
			}

			if err := runner.New(defs, registry, stores.State, eventBus, m, tracer, logger).Register(eventBus); err != nil {
				return err
			}

			if err := eventBus.Subscribe(ctx); err != nil {
				return err
			}

			sched, err := scheduler.New(defs, stores.State, queue, m, logger, command.Duration("tick"))
			if err != nil {
				return err
			}

			api := web.NewAPI(logger, defs, stores.State, queue, dispatcher, reg)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Run(ctx) })
			g.Go(func() error { return api.Start(ctx, int(command.Int("port"))) })

			return g.Wait()
		},
	}
}

func newTracer(ctx context.Context, enabled bool) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	return otelhelper.NewTracer(ctx, "assetflow")
}
