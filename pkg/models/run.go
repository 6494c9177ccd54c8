package models

import "time"

// TraceparentTag is the run tag carrying the W3C trace context across job boundaries.
const TraceparentTag = "traceparent"

// RunOutcome is the terminal status of a job run.
type RunOutcome string

const (
	RunOutcomeSuccess RunOutcome = "SUCCESS"
	RunOutcomeFailure RunOutcome = "FAILURE"
)

// RunState is the externally observed state of one asset.
type RunState struct {
	AssetKey           AssetKey  `json:"asset_key"`
	HasMaterialized    bool      `json:"has_materialized"`
	LastMaterializedAt time.Time `json:"last_materialized_at,omitzero"`
	LastRunID          string    `json:"last_run_id,omitempty"`
}

// RunRequest is the sole output handed to the executor. Assets narrows the
// run to a subset of the target job; empty means the whole job.
type RunRequest struct {
	TargetJob        string            `json:"target_job"        validate:"required"`
	DeduplicationKey string            `json:"deduplication_key" validate:"required"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Assets           []AssetKey        `json:"assets,omitempty"`
}
