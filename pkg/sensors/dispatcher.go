package sensors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/assetflow/pkg/eventbus"
	"github.com/dukex/assetflow/pkg/events"
	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/metrics"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Dispatcher fans every event out to the sensors of the matching kind.
type Dispatcher struct {
	runStatus       []*RunStatusSensor
	materialization []*MaterializationSensor
	enqueuer        Enqueuer
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	logger          *slog.Logger
}

func NewDispatcher(defs *graph.Definitions, enqueuer Enqueuer, m *metrics.Metrics, tracer trace.Tracer, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		enqueuer: enqueuer,
		metrics:  m,
		tracer:   tracer,
		logger:   logger.With("module", "sensor_dispatcher"),
	}

	for _, sensor := range defs.SensorsOfKind(models.SensorKindRunStatus) {
		d.runStatus = append(d.runStatus, NewRunStatusSensor(*sensor))
	}

	for _, sensor := range defs.SensorsOfKind(models.SensorKindAssetMaterialization) {
		d.materialization = append(d.materialization, NewMaterializationSensor(*sensor))
	}

	return d
}

// Register subscribes the dispatcher to run-completion and materialization events.
func (d *Dispatcher) Register(bus eventbus.EventSubscriber) error {
	if err := bus.Handle(events.RunCompletedEvent, func(ctx context.Context, event any) error {
		completed, ok := event.(*events.RunCompleted)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		return d.HandleRunCompletion(ctx, *completed)
	}); err != nil {
		return err
	}

	return bus.Handle(events.AssetMaterializedEvent, func(ctx context.Context, event any) error {
		materialized, ok := event.(*events.AssetMaterialized)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		return d.HandleMaterialization(ctx, *materialized)
	})
}

// HandleRunCompletion offers event to every run-status sensor concurrently.
func (d *Dispatcher) HandleRunCompletion(ctx context.Context, event events.RunCompleted) error {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "sensors.run_completion",
		attribute.String(otelhelper.RunIDKey, event.RunID),
		attribute.String(otelhelper.JobNameKey, event.JobName))
	defer span.End()

	logger := d.logger.With("run_id", event.RunID, "job", event.JobName, "outcome", event.Outcome)

	g, ctx := errgroup.WithContext(ctx)

	for _, sensor := range d.runStatus {
		g.Go(func() error {
			fired, err := sensor.Handle(ctx, event, d.enqueuer)
			d.observe(span, logger, sensor.def.Name, fired, err)

			return wrapSensorError(sensor.def.Name, err)
		})
	}

	return otelhelper.SetError(span, g.Wait())
}

// HandleMaterialization offers event to every materialization sensor concurrently.
func (d *Dispatcher) HandleMaterialization(ctx context.Context, event events.AssetMaterialized) error {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "sensors.materialization",
		attribute.String(otelhelper.AssetKeyKey, event.AssetKey.String()),
		attribute.String(otelhelper.RunIDKey, event.RunID))
	defer span.End()

	logger := d.logger.With("asset", event.AssetKey.String(), "run_id", event.RunID)

	g, ctx := errgroup.WithContext(ctx)

	for _, sensor := range d.materialization {
		g.Go(func() error {
			fired, err := sensor.Handle(ctx, event, d.enqueuer)
			d.observe(span, logger, sensor.def.Name, fired, err)

			return wrapSensorError(sensor.def.Name, err)
		})
	}

	return otelhelper.SetError(span, g.Wait())
}

// Sensors lists the definitions of every sensor the dispatcher serves.
func (d *Dispatcher) Sensors() []models.Sensor {
	out := make([]models.Sensor, 0, len(d.runStatus)+len(d.materialization))
	for _, sensor := range d.runStatus {
		out = append(out, sensor.Definition())
	}

	for _, sensor := range d.materialization {
		out = append(out, sensor.Definition())
	}

	return out
}

func (d *Dispatcher) observe(span trace.Span, logger *slog.Logger, sensor string, fired bool, err error) {
	d.metrics.RecordSensorEvent(sensor, fired)

	if fired {
		span.AddEvent("sensor_fired", trace.WithAttributes(attribute.String(otelhelper.SensorNameKey, sensor)))
	}

	switch {
	case err != nil:
		logger.Error("Sensor failed to enqueue run request", "sensor", sensor, "error", err)
	case fired:
		logger.Info("Sensor emitted run request", "sensor", sensor)
	default:
		logger.Debug("Sensor skipped event", "sensor", sensor)
	}
}

func wrapSensorError(sensor string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("sensor %s: %w", sensor, err)
}
