// Package runqueue hands deduplicated run requests to the executor over the event bus.
package runqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/assetflow/pkg/dedup"
	"github.com/dukex/assetflow/pkg/eventbus"
	"github.com/dukex/assetflow/pkg/events"
	"github.com/dukex/assetflow/pkg/metrics"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

// DefaultWindow is how long a claimed deduplication key blocks identical requests.
const DefaultWindow = 24 * time.Hour

type Queue struct {
	store     dedup.Store
	publisher eventbus.EventPublisher
	window    time.Duration
	validate  *validator.Validate
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func New(store dedup.Store, publisher eventbus.EventPublisher, window time.Duration, m *metrics.Metrics, logger *slog.Logger) *Queue {
	if window <= 0 {
		window = DefaultWindow
	}

	return &Queue{
		store:     store,
		publisher: publisher,
		window:    window,
		validate:  validator.New(),
		metrics:   m,
		logger:    logger.With("module", "run_queue"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue claims the request's deduplication key and publishes it. It returns
// false without error when the key was already claimed. A failed publish
// releases the key so that the trigger may retry.
func (q *Queue) Enqueue(ctx context.Context, origin string, request models.RunRequest) (bool, error) {
	if err := q.validate.Struct(request); err != nil {
		q.metrics.RecordRunRequest(origin, request.TargetJob, metrics.EnqueueStatusFailed)

		return false, fmt.Errorf("invalid run request: %w", err)
	}

	logger := q.logger.With("origin", origin, "job", request.TargetJob, "dedup_key", request.DeduplicationKey)

	claimed, err := q.store.Claim(ctx, request.DeduplicationKey, q.window)
	if err != nil {
		q.metrics.RecordRunRequest(origin, request.TargetJob, metrics.EnqueueStatusFailed)

		return false, err
	}

	if !claimed {
		logger.Debug("Run request deduplicated")
		q.metrics.RecordRunRequest(origin, request.TargetJob, metrics.EnqueueStatusDeduplicated)

		return false, nil
	}

	event := events.RunRequested{
		BaseEvent: events.BaseEvent{Type: events.RunRequestedEvent, Timestamp: q.now()},
		Request:   request,
	}

	if err := q.publisher.Publish(ctx, request.DeduplicationKey, event); err != nil {
		if releaseErr := q.store.Release(ctx, request.DeduplicationKey); releaseErr != nil {
			logger.Error("Failed to release deduplication key", "error", releaseErr)
		}

		q.metrics.RecordRunRequest(origin, request.TargetJob, metrics.EnqueueStatusFailed)

		return false, fmt.Errorf("failed to publish run request: %w", err)
	}

	logger.Info("Run request enqueued")
	q.metrics.RecordRunRequest(origin, request.TargetJob, metrics.EnqueueStatusEnqueued)

	return true, nil
}
