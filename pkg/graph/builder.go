// Package graph assembles asset descriptors, jobs, schedules and sensors into
// one immutable Definitions value.
//
// The Builder is append-only and fails fast on per-call problems (duplicate
// identities, empty or unknown selections, unknown jobs). Dependency
// resolution is deferred to Build, so assets may be added in any order.
package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/policy"
	"github.com/go-playground/validator/v10"
)

// Selection picks assets for a job: explicit keys, a tag, or both.
type Selection struct {
	Keys []models.AssetKey
	Tag  *models.TagSelection
}

// Keys selects the given assets.
func Keys(keys ...models.AssetKey) Selection {
	return Selection{Keys: keys}
}

// Tagged selects every asset carrying key=value.
func Tagged(key, value string) Selection {
	return Selection{Tag: &models.TagSelection{Key: key, Value: value}}
}

type Builder struct {
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
	assets    map[string]*models.Asset
	order     []string
	jobs      map[string]*models.Job
	jobOrder  []string
	schedules []*models.Schedule
	sensors   []*models.Sensor
	names     map[string]struct{}
	resources map[string]any
}

func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{
		logger:    logger.With("module", "graph_builder"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       func() time.Time { return time.Now().UTC() },
		assets:    make(map[string]*models.Asset),
		jobs:      make(map[string]*models.Job),
		names:     make(map[string]struct{}),
		resources: make(map[string]any),
	}
}

// AddResource registers an external resource handle under key.
func (b *Builder) AddResource(key string, resource any) error {
	if _, exists := b.resources[key]; exists {
		return &BuildError{Op: "AddResource", Name: key, Err: ErrDuplicateName}
	}

	b.resources[key] = resource

	return nil
}

// AddAsset registers a descriptor. The builder keeps its own copy.
func (b *Builder) AddAsset(asset *models.Asset) (*models.Asset, error) {
	if asset == nil {
		return nil, &BuildError{Op: "AddAsset", Err: ErrInvalidAsset}
	}

	if err := b.validate.Struct(asset); err != nil {
		return nil, &BuildError{Op: "AddAsset", Asset: asset.Key, Err: fmt.Errorf("%w: %w", ErrInvalidAsset, err)}
	}

	id := asset.Key.String()
	if _, exists := b.assets[id]; exists {
		return nil, &BuildError{Op: "AddAsset", Asset: asset.Key, Err: ErrDuplicateIdentity}
	}

	if asset.Policy != nil {
		if _, err := policy.Compile(asset.Policy); err != nil {
			return nil, &BuildError{Op: "AddAsset", Asset: asset.Key, Err: fmt.Errorf("%w: %w", ErrInvalidCron, err)}
		}
	}

	stored := asset.Clone()
	b.assets[id] = stored
	b.order = append(b.order, id)

	return stored.Clone(), nil
}

// AddAssets registers several descriptors, stopping at the first error.
func (b *Builder) AddAssets(assets ...*models.Asset) error {
	for _, asset := range assets {
		if _, err := b.AddAsset(asset); err != nil {
			return err
		}
	}

	return nil
}

// AddJob groups the selected assets under name. The selection is resolved
// against the assets registered so far.
func (b *Builder) AddJob(name, description string, selection Selection) (*models.Job, error) {
	if err := b.claimName("AddJob", name); err != nil {
		return nil, err
	}

	keys, err := b.resolve(selection)
	if err != nil {
		return nil, &BuildError{Op: "AddJob", Asset: err.key, Job: name, Err: err.err}
	}

	if len(keys) == 0 {
		return nil, &BuildError{Op: "AddJob", Job: name, Err: ErrEmptySelection}
	}

	job := &models.Job{Name: name, Description: description, Assets: keys}
	b.jobs[name] = job
	b.jobOrder = append(b.jobOrder, name)

	return job, nil
}

// AddSchedule fires job on every tick of cronExpr; the schedule is named "<job>_schedule".
func (b *Builder) AddSchedule(job string, cronExpr string, status models.SensorStatus) (*models.Schedule, error) {
	if _, exists := b.jobs[job]; !exists {
		return nil, &BuildError{Op: "AddSchedule", Job: job, Err: ErrUnknownJob}
	}

	name := job + "_schedule"
	if err := b.claimName("AddSchedule", name); err != nil {
		return nil, err
	}

	schedule, err := models.NewSchedule(name, job, cronExpr, status, b.now())
	if err != nil {
		return nil, &BuildError{Op: "AddSchedule", Job: job, Name: name, Err: fmt.Errorf("%w: %w", ErrInvalidCron, err)}
	}

	b.schedules = append(b.schedules, schedule)

	return schedule, nil
}

// AddSensor registers a sensor definition targeting an existing job.
func (b *Builder) AddSensor(sensor *models.Sensor) (*models.Sensor, error) {
	if sensor == nil {
		return nil, &BuildError{Op: "AddSensor", Err: ErrInvalidSensor}
	}

	if err := b.validate.Struct(sensor); err != nil {
		return nil, &BuildError{Op: "AddSensor", Name: sensor.Name, Err: fmt.Errorf("%w: %w", ErrInvalidSensor, err)}
	}

	if err := checkSensorKind(sensor); err != nil {
		return nil, &BuildError{Op: "AddSensor", Name: sensor.Name, Err: err}
	}

	if _, exists := b.jobs[sensor.TargetJob]; !exists {
		return nil, &BuildError{Op: "AddSensor", Name: sensor.Name, Job: sensor.TargetJob, Err: ErrUnknownJob}
	}

	for _, monitored := range sensor.MonitoredJobs {
		if _, exists := b.jobs[monitored]; !exists {
			return nil, &BuildError{Op: "AddSensor", Name: sensor.Name, Job: monitored, Err: ErrUnknownJob}
		}
	}

	if sensor.Kind == models.SensorKindAutomationCondition {
		if sensor.Selection == nil {
			return nil, &BuildError{Op: "AddSensor", Name: sensor.Name, Err: ErrEmptySelection}
		}

		keys, _ := b.resolve(Selection{Tag: sensor.Selection})
		if len(keys) == 0 {
			return nil, &BuildError{Op: "AddSensor", Name: sensor.Name, Err: ErrEmptySelection}
		}

		target := b.jobs[sensor.TargetJob]
		for _, key := range keys {
			if !target.Contains(key) {
				return nil, &BuildError{Op: "AddSensor", Name: sensor.Name, Asset: key, Job: sensor.TargetJob, Err: ErrUnknownUnit}
			}
		}
	}

	if err := b.claimName("AddSensor", sensor.Name); err != nil {
		return nil, err
	}

	stored := *sensor
	stored.MonitoredJobs = slices.Clone(sensor.MonitoredJobs)
	stored.Asset = models.NewAssetKey(sensor.Asset...)
	b.sensors = append(b.sensors, &stored)

	return sensor, nil
}

// Build checks dependency closure, resource requirements and acyclicity,
// then freezes everything into Definitions.
func (b *Builder) Build() (*Definitions, error) {
	for _, id := range b.order {
		asset := b.assets[id]

		for _, dep := range asset.Deps {
			if _, exists := b.assets[dep.String()]; !exists {
				return nil, &BuildError{Op: "Build", Asset: asset.Key, Dependency: dep, Err: ErrDanglingDependency}
			}
		}

		for _, resource := range asset.RequiredResources {
			if _, exists := b.resources[resource]; !exists {
				return nil, &BuildError{Op: "Build", Asset: asset.Key, Name: resource, Err: ErrUnknownResource}
			}
		}
	}

	for _, sensor := range b.sensors {
		if sensor.Kind != models.SensorKindAssetMaterialization {
			continue
		}

		if _, exists := b.assets[sensor.Asset.String()]; !exists {
			return nil, &BuildError{Op: "Build", Asset: sensor.Asset, Name: sensor.Name, Err: ErrUnknownUnit}
		}
	}

	defs := newDefinitions(b)

	if cycle := defs.findCycle(); len(cycle) > 0 {
		return nil, &BuildError{Op: "Build", Asset: cycle[0], Err: fmt.Errorf("%w: %s", ErrDependencyCycle, formatPath(cycle))}
	}

	b.logger.Info("Definitions built",
		"assets", len(b.order),
		"jobs", len(b.jobOrder),
		"schedules", len(b.schedules),
		"sensors", len(b.sensors),
		"resources", len(b.resources))

	return defs, nil
}

// checkSensorKind rejects sensors that could never fire.
func checkSensorKind(sensor *models.Sensor) error {
	switch sensor.Kind {
	case models.SensorKindRunStatus:
		if len(sensor.MonitoredJobs) == 0 {
			return fmt.Errorf("%w: run-status sensor without monitored jobs", ErrInvalidSensor)
		}

		if sensor.Outcome != models.RunOutcomeSuccess && sensor.Outcome != models.RunOutcomeFailure {
			return fmt.Errorf("%w: run-status outcome %q", ErrInvalidSensor, sensor.Outcome)
		}
	case models.SensorKindAssetMaterialization:
		if len(sensor.Asset) == 0 {
			return fmt.Errorf("%w: materialization sensor without asset", ErrInvalidSensor)
		}
	}

	return nil
}

func (b *Builder) claimName(op, name string) error {
	if name == "" {
		return &BuildError{Op: op, Err: fmt.Errorf("%w: empty name", ErrInvalidAsset)}
	}

	if _, exists := b.names[name]; exists {
		return &BuildError{Op: op, Name: name, Err: ErrDuplicateName}
	}

	b.names[name] = struct{}{}

	return nil
}

type selectionError struct {
	key models.AssetKey
	err error
}

func (b *Builder) resolve(selection Selection) ([]models.AssetKey, *selectionError) {
	seen := make(map[string]struct{})

	var keys []models.AssetKey

	for _, key := range selection.Keys {
		id := key.String()
		if _, exists := b.assets[id]; !exists {
			return nil, &selectionError{key: key, err: ErrUnknownUnit}
		}

		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			keys = append(keys, models.NewAssetKey(key...))
		}
	}

	if selection.Tag != nil {
		for _, id := range b.order {
			asset := b.assets[id]
			if !selection.Tag.Matches(asset) {
				continue
			}

			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				keys = append(keys, models.NewAssetKey(asset.Key...))
			}
		}
	}

	return keys, nil
}
