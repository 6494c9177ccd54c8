// Package sensors turns run-completion and materialization events into
// deduplicated run requests.
//
// Each sensor processes one event at a time. Different sensors share no
// mutable state and may run concurrently. Malformed or partial payloads
// never make a sensor fail; they only degrade the deduplication key.
package sensors

import (
	"context"
	"strconv"
	"sync"

	"github.com/dukex/assetflow/pkg/events"
	"github.com/dukex/assetflow/pkg/metrics"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/google/uuid"
)

// Enqueuer accepts run requests. It reports false when the deduplication key
// was already claimed.
type Enqueuer interface {
	Enqueue(ctx context.Context, origin string, request models.RunRequest) (bool, error)
}

// RunStatusSensor reacts to the completion of any monitored job with a given outcome.
type RunStatusSensor struct {
	mu        sync.Mutex
	def       models.Sensor
	monitored map[string]struct{}
}

func NewRunStatusSensor(def models.Sensor) *RunStatusSensor {
	monitored := make(map[string]struct{}, len(def.MonitoredJobs))
	for _, job := range def.MonitoredJobs {
		monitored[job] = struct{}{}
	}

	return &RunStatusSensor{def: def, monitored: monitored}
}

func (s *RunStatusSensor) Definition() models.Sensor {
	return s.def
}

// Evaluate returns the request the event should produce, if any. Events from
// jobs outside the monitored set, or with another outcome, produce nothing.
func (s *RunStatusSensor) Evaluate(event events.RunCompleted) (models.RunRequest, bool) {
	if _, ok := s.monitored[event.JobName]; !ok {
		return models.RunRequest{}, false
	}

	if event.Outcome != s.def.Outcome {
		return models.RunRequest{}, false
	}

	runID := event.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	request := models.RunRequest{
		TargetJob:        s.def.TargetJob,
		DeduplicationKey: s.def.KeyPrefix + "_" + runID,
	}

	if traceparent := event.Tags[models.TraceparentTag]; traceparent != "" {
		request.Metadata = map[string]string{models.TraceparentTag: traceparent}
	}

	return request, true
}

// Handle evaluates event and enqueues the resulting request. Stopped sensors ignore events.
func (s *RunStatusSensor) Handle(ctx context.Context, event events.RunCompleted, enqueuer Enqueuer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.def.Running() {
		return false, nil
	}

	request, ok := s.Evaluate(event)
	if !ok {
		return false, nil
	}

	return enqueuer.Enqueue(ctx, metrics.OriginSensor, request)
}

// MaterializationSensor reacts to materializations of one upstream asset.
type MaterializationSensor struct {
	mu  sync.Mutex
	def models.Sensor
}

func NewMaterializationSensor(def models.Sensor) *MaterializationSensor {
	return &MaterializationSensor{def: def}
}

func (s *MaterializationSensor) Definition() models.Sensor {
	return s.def
}

// Evaluate keys the request on the log entry id, then the run id, then the
// event time. A request is produced even when all of them are missing.
func (s *MaterializationSensor) Evaluate(event events.AssetMaterialized) (models.RunRequest, bool) {
	if !event.AssetKey.Equal(s.def.Asset) {
		return models.RunRequest{}, false
	}

	return models.RunRequest{
		TargetJob:        s.def.TargetJob,
		DeduplicationKey: s.def.KeyPrefix + "_" + materializationID(event),
	}, true
}

func (s *MaterializationSensor) Handle(ctx context.Context, event events.AssetMaterialized, enqueuer Enqueuer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.def.Running() {
		return false, nil
	}

	request, ok := s.Evaluate(event)
	if !ok {
		return false, nil
	}

	return enqueuer.Enqueue(ctx, metrics.OriginSensor, request)
}

func materializationID(event events.AssetMaterialized) string {
	switch {
	case event.LogEntryID != "":
		return event.LogEntryID
	case event.RunID != "":
		return event.RunID
	case !event.Timestamp.IsZero():
		return strconv.FormatInt(event.Timestamp.UnixNano(), 10)
	default:
		return uuid.NewString()
	}
}
