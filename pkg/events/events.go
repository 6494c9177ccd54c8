// Package events defines the envelopes exchanged between the scheduler, the
// sensors and the runner.
package events

import (
	"time"

	"github.com/dukex/assetflow/pkg/models"
)

type EventType string

// Topic carries every assetflow event; consumers dispatch on EventTypeMetadataKey.
const Topic = "assetflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunRequestedEvent      EventType = "run.requested"
	RunCompletedEvent      EventType = "run.completed"
	AssetMaterializedEvent EventType = "asset.materialized"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// RunRequested hands a deduplicated request to the runner.
type RunRequested struct {
	BaseEvent

	Request models.RunRequest `json:"request"`
}

func (r RunRequested) GetType() EventType {
	return RunRequestedEvent
}

// RunCompleted is published once per finished job run.
type RunCompleted struct {
	BaseEvent

	RunID   string            `json:"run_id"             validate:"required"`
	JobName string            `json:"job_name"           validate:"required"`
	Outcome models.RunOutcome `json:"outcome"            validate:"required,oneof=SUCCESS FAILURE"`
	Tags    map[string]string `json:"tags,omitempty"`
}

func (r RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

// AssetMaterialized is published for every asset a run produced. LogEntryID
// and RunID are optional; sensors degrade their deduplication key when they are missing.
type AssetMaterialized struct {
	BaseEvent

	AssetKey   models.AssetKey   `json:"asset_key"              validate:"required,min=1"`
	LogEntryID string            `json:"log_entry_id,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (a AssetMaterialized) GetType() EventType {
	return AssetMaterializedEvent
}
