package models

// SensorKind identifies what a sensor reacts to.
type SensorKind string

const (
	SensorKindRunStatus            SensorKind = "run_status"
	SensorKindAssetMaterialization SensorKind = "asset_materialization"
	SensorKindAutomationCondition  SensorKind = "automation_condition"
)

// SensorStatus is fixed when the graph is built.
type SensorStatus string

const (
	SensorStatusRunning SensorStatus = "RUNNING"
	SensorStatusStopped SensorStatus = "STOPPED"
)

// TagSelection selects every asset carrying Key=Value.
type TagSelection struct {
	Key   string `json:"key"   validate:"required"`
	Value string `json:"value" validate:"required"`
}

func (s TagSelection) Matches(asset *Asset) bool {
	return asset.HasTag(s.Key, s.Value)
}

// Sensor is a standing subscription that turns events into run requests for TargetJob.
//
// KeyPrefix labels the deduplication keys the sensor builds. MonitoredJobs and
// Outcome apply to run-status sensors, Asset to materialization sensors and
// Selection to automation-condition sensors.
type Sensor struct {
	Name          string        `json:"name"                     validate:"required"`
	Kind          SensorKind    `json:"kind"                     validate:"required,oneof=run_status asset_materialization automation_condition"`
	Status        SensorStatus  `json:"status"                   validate:"required"`
	TargetJob     string        `json:"target_job"               validate:"required"`
	KeyPrefix     string        `json:"key_prefix,omitempty"`
	MonitoredJobs []string      `json:"monitored_jobs,omitempty"`
	Outcome       RunOutcome    `json:"outcome,omitempty"`
	Asset         AssetKey      `json:"asset,omitempty"          validate:"omitempty,dive,required,excludes=/"`
	Selection     *TagSelection `json:"selection,omitempty"`
}

func (s *Sensor) Running() bool {
	return s.Status == SensorStatusRunning
}
