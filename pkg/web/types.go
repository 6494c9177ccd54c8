package web

import (
	"time"

	"github.com/dukex/assetflow/pkg/models"
)

// AssetResponse is an asset descriptor together with its observed state.
type AssetResponse struct {
	Key                string            `json:"key"`
	Path               []string          `json:"path"`
	Kind               models.UnitKind   `json:"kind"`
	Deps               []string          `json:"deps,omitempty"`
	Dependents         []string          `json:"dependents,omitempty"`
	Tags               map[string]string `json:"tags,omitempty"`
	Description        string            `json:"description,omitempty"`
	RequiredResources  []string          `json:"required_resources,omitempty"`
	Policy             string            `json:"automation_policy,omitempty"`
	HasMaterialized    bool              `json:"has_materialized"`
	LastMaterializedAt *time.Time        `json:"last_materialized_at,omitempty"`
	LastRunID          string            `json:"last_run_id,omitempty"`
}

// CreateRunRequest is the body of a manual run request. Assets narrows the
// run to a subset of the job, as "/"-joined keys.
type CreateRunRequest struct {
	Assets           []string          `json:"assets,omitempty"            validate:"omitempty,dive,required"`
	DeduplicationKey string            `json:"deduplication_key,omitempty" validate:"omitempty,max=512"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// CreateRunResponse reports whether the request was handed to the runner.
type CreateRunResponse struct {
	TargetJob        string `json:"target_job"`
	DeduplicationKey string `json:"deduplication_key"`
	Enqueued         bool   `json:"enqueued"`
}

// RunCompletionRequest reports a finished run of a job executed elsewhere.
type RunCompletionRequest struct {
	RunID   string            `json:"run_id"   validate:"required"`
	JobName string            `json:"job_name" validate:"required"`
	Outcome models.RunOutcome `json:"outcome"  validate:"required,oneof=SUCCESS FAILURE"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// MaterializationRequest reports an asset materialized elsewhere.
type MaterializationRequest struct {
	AssetKey   []string `json:"asset_key"              validate:"required,min=1,dive,required"`
	LogEntryID string   `json:"log_entry_id,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
}

func toAssetResponse(asset *models.Asset, dependents []models.AssetKey, runState models.RunState) AssetResponse {
	response := AssetResponse{
		Key:               asset.Key.String(),
		Path:              asset.Key,
		Kind:              asset.Kind(),
		Tags:              asset.Tags,
		Description:       asset.Description,
		RequiredResources: asset.RequiredResources,
		HasMaterialized:   runState.HasMaterialized,
		LastRunID:         runState.LastRunID,
	}

	for _, dep := range asset.Deps {
		response.Deps = append(response.Deps, dep.String())
	}

	for _, dependent := range dependents {
		response.Dependents = append(response.Dependents, dependent.String())
	}

	if asset.Policy != nil {
		response.Policy = asset.Policy.String()
	}

	if runState.HasMaterialized {
		at := runState.LastMaterializedAt
		response.LastMaterializedAt = &at
	}

	return response
}
