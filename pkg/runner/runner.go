// Package runner executes run requests in-process: it resolves the assets of
// the target job, runs them in dependency order through the handler registry
// and reports the outcome back on the event bus.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/assetflow/pkg/eventbus"
	"github.com/dukex/assetflow/pkg/events"
	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/metrics"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/otelhelper"
	"github.com/dukex/assetflow/pkg/registry"
	"github.com/dukex/assetflow/pkg/state"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUnknownJob    = errors.New("unknown job")
	ErrAssetNotInJob = errors.New("asset is not part of the job")
)

type Runner struct {
	defs      *graph.Definitions
	registry  *registry.Registry
	store     state.Store
	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

func New(
	defs *graph.Definitions,
	reg *registry.Registry,
	store state.Store,
	publisher eventbus.EventPublisher,
	m *metrics.Metrics,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		defs:      defs,
		registry:  reg,
		store:     store,
		publisher: publisher,
		metrics:   m,
		tracer:    tracer,
		logger:    logger.With("module", "runner"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register subscribes the runner to run requests. Requests that can never
// succeed (unknown job, foreign asset) are logged and acknowledged.
func (r *Runner) Register(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.RunRequestedEvent, func(ctx context.Context, event any) error {
		requested, ok := event.(*events.RunRequested)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		_, err := r.Run(ctx, requested.Request)
		if errors.Is(err, ErrUnknownJob) || errors.Is(err, ErrAssetNotInJob) || errors.Is(err, graph.ErrUnknownUnit) {
			r.logger.WarnContext(ctx, "Dropping run request", "job", requested.Request.TargetJob, "error", err)

			return nil
		}

		return err
	})
}

// Run executes request and publishes its completion. A failing asset fails
// the run and skips its dependents; independent assets still run.
func (r *Runner) Run(ctx context.Context, request models.RunRequest) (events.RunCompleted, error) {
	job, ok := r.defs.Job(request.TargetJob)
	if !ok {
		return events.RunCompleted{}, fmt.Errorf("%w: %s", ErrUnknownJob, request.TargetJob)
	}

	keys := job.Assets
	if len(request.Assets) > 0 {
		for _, key := range request.Assets {
			if !job.Contains(key) {
				return events.RunCompleted{}, fmt.Errorf("%w: %s not in %s", ErrAssetNotInJob, key, job.Name)
			}
		}

		keys = request.Assets
	}

	ordered, err := r.defs.TopologicalOrder(keys)
	if err != nil {
		return events.RunCompleted{}, err
	}

	runID := uuid.NewString()

	tags := maps.Clone(request.Metadata)
	if tags == nil {
		tags = map[string]string{}
	}

	if traceparent := tags[models.TraceparentTag]; traceparent != "" {
		ctx = otelhelper.ContextWithTraceparent(ctx, traceparent)
	}

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.run",
		attribute.String(otelhelper.JobNameKey, job.Name),
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.RunKeyKey, request.DeduplicationKey))
	defer span.End()

	if _, ok := tags[models.TraceparentTag]; !ok {
		if traceparent := otelhelper.Traceparent(ctx); traceparent != "" {
			tags[models.TraceparentTag] = traceparent
		}
	}

	logger := r.logger.With("run_id", runID, "job", job.Name, "dedup_key", request.DeduplicationKey)
	logger.InfoContext(ctx, "Starting run", "assets", len(ordered))

	outcome := models.RunOutcomeSuccess
	failed := make(map[string]bool)

	for _, asset := range ordered {
		if blocked := r.blockedBy(asset, failed); blocked != "" {
			logger.WarnContext(ctx, "Skipping asset after upstream failure", "asset", asset.Key.String(), "upstream", blocked)
			failed[asset.Key.String()] = true

			continue
		}

		if err := r.execute(ctx, runID, job.Name, asset, tags, logger); err != nil {
			logger.ErrorContext(ctx, "Asset failed", "asset", asset.Key.String(), "error", err)
			failed[asset.Key.String()] = true
		}
	}

	if len(failed) > 0 {
		outcome = models.RunOutcomeFailure
		otelhelper.SetError(span, fmt.Errorf("%d asset(s) failed", len(failed)))
	}

	completed := events.RunCompleted{
		BaseEvent: events.BaseEvent{ID: uuid.NewString(), Type: events.RunCompletedEvent, Timestamp: r.now()},
		RunID:     runID,
		JobName:   job.Name,
		Outcome:   outcome,
		Tags:      tags,
	}

	r.metrics.RecordRunCompleted(job.Name, string(outcome))
	logger.InfoContext(ctx, "Run finished", "outcome", outcome, "failed", len(failed))

	if err := r.publisher.Publish(ctx, runID, completed); err != nil {
		return completed, fmt.Errorf("failed to publish completion of run %s: %w", runID, err)
	}

	return completed, nil
}

func (r *Runner) blockedBy(asset *models.Asset, failed map[string]bool) string {
	for _, dep := range asset.Deps {
		if failed[dep.String()] {
			return dep.String()
		}
	}

	return ""
}

func (r *Runner) execute(ctx context.Context, runID, jobName string, asset *models.Asset, tags map[string]string, logger *slog.Logger) error {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.asset",
		attribute.String(otelhelper.AssetKeyKey, asset.Key.String()),
		attribute.String(otelhelper.UnitKindKey, string(asset.Kind())))
	defer span.End()

	result, err := r.registry.Execute(ctx, registry.ExecutionContext{
		RunID:     runID,
		JobName:   jobName,
		Asset:     asset,
		Resources: r.defs.Resources(asset.RequiredResources),
		Metadata:  maps.Clone(tags),
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	// placeholders are observed, never materialized
	if asset.Kind() == models.UnitKindSourcePlaceholder {
		return nil
	}

	at := r.now()

	if err := r.store.RecordMaterialization(ctx, asset.Key, runID, at); err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to record materialization: %w", err)
	}

	materialized := events.AssetMaterialized{
		BaseEvent:  events.BaseEvent{ID: uuid.NewString(), Type: events.AssetMaterializedEvent, Timestamp: at},
		AssetKey:   asset.Key,
		LogEntryID: uuid.NewString(),
		RunID:      runID,
		Metadata:   result.Metadata,
	}

	if err := r.publisher.Publish(ctx, asset.Key.String(), materialized); err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to publish materialization: %w", err)
	}

	logger.InfoContext(ctx, "Materialized asset", "asset", asset.Key.String(), "metadata", result.Metadata)

	return nil
}
