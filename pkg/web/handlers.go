// Package web exposes the asset graph over HTTP: read-only inspection of
// assets, jobs, schedules and sensors, manual run requests, and ingestion of
// run-completion and materialization events produced elsewhere.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/assetflow/pkg/events"
	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/metrics"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/runner"
	"github.com/dukex/assetflow/pkg/state"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Enqueuer hands manual run requests to the run queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, origin string, request models.RunRequest) (bool, error)
}

// EventSink receives ingested events, typically the sensor dispatcher.
type EventSink interface {
	HandleRunCompletion(ctx context.Context, event events.RunCompleted) error
	HandleMaterialization(ctx context.Context, event events.AssetMaterialized) error
}

type APIHandlers struct {
	defs      *graph.Definitions
	store     state.Store
	enqueuer  Enqueuer
	sink      EventSink
	validator *validator.Validate
	now       func() time.Time
}

func NewAPIHandlers(
	defs *graph.Definitions,
	store state.Store,
	enqueuer Enqueuer,
	sink EventSink,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		defs:      defs,
		store:     store,
		enqueuer:  enqueuer,
		sink:      sink,
		validator: validator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *APIHandlers) GetAssets(c fiber.Ctx) error {
	assets := h.defs.Assets()

	if tag := c.Query("tag"); tag != "" {
		key, value, ok := strings.Cut(tag, "=")
		if !ok {
			return badRequest(c, "tag must be key=value")
		}

		assets = h.defs.AssetsMatching(models.TagSelection{Key: key, Value: value})
	}

	responses := make([]AssetResponse, 0, len(assets))

	for _, asset := range assets {
		runState, err := h.store.RunState(c.Context(), asset.Key)
		if err != nil {
			return internalError(c, err)
		}

		responses = append(responses, toAssetResponse(asset, h.defs.Dependents(asset.Key), runState))
	}

	return c.JSON(fiber.Map{
		"assets":      responses,
		"total_count": len(responses),
	})
}

// GetAsset resolves the wildcard path as an asset key, e.g. /assets/lana/orders.
func (h *APIHandlers) GetAsset(c fiber.Ctx) error {
	key := models.ParseAssetKey(c.Params("*"))
	if len(key) == 0 {
		return badRequest(c, "Asset key is required")
	}

	asset, ok := h.defs.Asset(key)
	if !ok {
		return notFound(c, fmt.Sprintf("Asset %s not found", key))
	}

	runState, err := h.store.RunState(c.Context(), asset.Key)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(toAssetResponse(asset, h.defs.Dependents(asset.Key), runState))
}

func (h *APIHandlers) GetJobs(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"jobs": h.defs.Jobs()})
}

func (h *APIHandlers) GetJob(c fiber.Ctx) error {
	job, ok := h.defs.Job(c.Params("name"))
	if !ok {
		return notFound(c, "Job not found")
	}

	return c.JSON(job)
}

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"schedules": h.defs.Schedules()})
}

func (h *APIHandlers) GetSensors(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"sensors": h.defs.Sensors()})
}

// CreateRun enqueues a manual run of a job. Without an explicit
// deduplication key every call yields a distinct request.
func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	job, ok := h.defs.Job(c.Params("name"))
	if !ok {
		return handleGraphError(c, fmt.Errorf("%w: %s", runner.ErrUnknownJob, c.Params("name")))
	}

	var req CreateRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request := models.RunRequest{
		TargetJob:        job.Name,
		DeduplicationKey: req.DeduplicationKey,
		Metadata:         req.Metadata,
	}

	for _, raw := range req.Assets {
		key := models.ParseAssetKey(raw)
		if !job.Contains(key) {
			return handleGraphError(c, fmt.Errorf("%w: %s not in %s", runner.ErrAssetNotInJob, key, job.Name))
		}

		request.Assets = append(request.Assets, key)
	}

	if request.DeduplicationKey == "" {
		request.DeduplicationKey = job.Name + "_manual_" + uuid.NewString()
	}

	enqueued, err := h.enqueuer.Enqueue(c.Context(), metrics.OriginManual, request)
	if err != nil {
		return internalError(c, err)
	}

	status := fiber.StatusAccepted
	if !enqueued {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(CreateRunResponse{
		TargetJob:        request.TargetJob,
		DeduplicationKey: request.DeduplicationKey,
		Enqueued:         enqueued,
	})
}

func (h *APIHandlers) IngestRunCompletion(c fiber.Ctx) error {
	if err := validateJSONSchema(runCompletionSchema, c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req RunCompletionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.RunCompleted{
		BaseEvent: events.BaseEvent{ID: uuid.NewString(), Type: events.RunCompletedEvent, Timestamp: h.now()},
		RunID:     req.RunID,
		JobName:   req.JobName,
		Outcome:   req.Outcome,
		Tags:      req.Tags,
	}

	if err := h.sink.HandleRunCompletion(c.Context(), event); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// IngestMaterialization records the materialization in the state store so
// that automation policies see it, then feeds it to the sensors.
func (h *APIHandlers) IngestMaterialization(c fiber.Ctx) error {
	if err := validateJSONSchema(materializationSchema, c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req MaterializationRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	key := models.NewAssetKey(req.AssetKey...)
	if _, ok := h.defs.Asset(key); !ok {
		return handleGraphError(c, fmt.Errorf("%w: %s", graph.ErrUnknownUnit, key))
	}

	at := h.now()

	if err := h.store.RecordMaterialization(c.Context(), key, req.RunID, at); err != nil {
		return internalError(c, err)
	}

	event := events.AssetMaterialized{
		BaseEvent:  events.BaseEvent{ID: uuid.NewString(), Type: events.AssetMaterializedEvent, Timestamp: at},
		AssetKey:   key,
		LogEntryID: req.LogEntryID,
		RunID:      req.RunID,
	}

	if err := h.sink.HandleMaterialization(c.Context(), event); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}
