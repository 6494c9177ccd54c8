package graph

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/dukex/assetflow/pkg/models"
)

// Definitions is the frozen graph: assets, jobs, schedules, sensors and resources.
// It is safe for concurrent read access; every accessor returns copies.
type Definitions struct {
	assets     map[string]*models.Asset
	order      []string
	jobs       map[string]*models.Job
	jobOrder   []string
	schedules  []*models.Schedule
	sensors    []*models.Sensor
	resources  map[string]any
	dependents map[string][]string
}

func newDefinitions(b *Builder) *Definitions {
	defs := &Definitions{
		assets:     make(map[string]*models.Asset, len(b.assets)),
		order:      slices.Clone(b.order),
		jobs:       make(map[string]*models.Job, len(b.jobs)),
		jobOrder:   slices.Clone(b.jobOrder),
		resources:  maps.Clone(b.resources),
		dependents: make(map[string][]string),
	}

	for id, asset := range b.assets {
		defs.assets[id] = asset.Clone()
	}

	for name, job := range b.jobs {
		defs.jobs[name] = cloneJob(job)
	}

	for _, schedule := range b.schedules {
		copied := *schedule
		defs.schedules = append(defs.schedules, &copied)
	}

	for _, sensor := range b.sensors {
		defs.sensors = append(defs.sensors, cloneSensor(sensor))
	}

	for _, id := range defs.order {
		for _, dep := range defs.assets[id].Deps {
			defs.dependents[dep.String()] = append(defs.dependents[dep.String()], id)
		}
	}

	return defs
}

// Assets returns every asset in registration order.
func (d *Definitions) Assets() []*models.Asset {
	out := make([]*models.Asset, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.assets[id].Clone())
	}

	return out
}

func (d *Definitions) Asset(key models.AssetKey) (*models.Asset, bool) {
	asset, ok := d.assets[key.String()]
	if !ok {
		return nil, false
	}

	return asset.Clone(), true
}

// AssetsMatching returns the assets selected by a tag, in registration order.
func (d *Definitions) AssetsMatching(selection models.TagSelection) []*models.Asset {
	var out []*models.Asset

	for _, id := range d.order {
		if selection.Matches(d.assets[id]) {
			out = append(out, d.assets[id].Clone())
		}
	}

	return out
}

// Dependents lists the assets that directly depend on key.
func (d *Definitions) Dependents(key models.AssetKey) []models.AssetKey {
	ids := d.dependents[key.String()]
	out := make([]models.AssetKey, 0, len(ids))

	for _, id := range ids {
		out = append(out, models.NewAssetKey(d.assets[id].Key...))
	}

	return out
}

func (d *Definitions) Jobs() []*models.Job {
	out := make([]*models.Job, 0, len(d.jobOrder))
	for _, name := range d.jobOrder {
		out = append(out, cloneJob(d.jobs[name]))
	}

	return out
}

func (d *Definitions) Job(name string) (*models.Job, bool) {
	job, ok := d.jobs[name]
	if !ok {
		return nil, false
	}

	return cloneJob(job), true
}

func (d *Definitions) Schedules() []*models.Schedule {
	out := make([]*models.Schedule, 0, len(d.schedules))
	for _, schedule := range d.schedules {
		copied := *schedule
		out = append(out, &copied)
	}

	return out
}

func (d *Definitions) Sensors() []*models.Sensor {
	out := make([]*models.Sensor, 0, len(d.sensors))
	for _, sensor := range d.sensors {
		out = append(out, cloneSensor(sensor))
	}

	return out
}

// SensorsOfKind returns the sensors of one kind, in registration order.
func (d *Definitions) SensorsOfKind(kind models.SensorKind) []*models.Sensor {
	var out []*models.Sensor

	for _, sensor := range d.sensors {
		if sensor.Kind == kind {
			out = append(out, cloneSensor(sensor))
		}
	}

	return out
}

func (d *Definitions) Resource(key string) (any, bool) {
	resource, ok := d.resources[key]

	return resource, ok
}

// Resources returns the registered resources restricted to keys.
func (d *Definitions) Resources(keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if resource, ok := d.resources[key]; ok {
			out[key] = resource
		}
	}

	return out
}

// TopologicalOrder orders keys so that every asset comes after the
// dependencies that are also part of keys. Ties break on the key string,
// so the result is deterministic.
func (d *Definitions) TopologicalOrder(keys []models.AssetKey) ([]*models.Asset, error) {
	selected := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := d.assets[key.String()]; !ok {
			return nil, &BuildError{Op: "TopologicalOrder", Asset: key, Err: ErrUnknownUnit}
		}

		selected[key.String()] = struct{}{}
	}

	indegree := make(map[string]int, len(selected))
	for id := range selected {
		for _, dep := range d.assets[id].Deps {
			if _, ok := selected[dep.String()]; ok {
				indegree[id]++
			}
		}
	}

	var ready []string

	for id := range selected {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	sort.Strings(ready)

	out := make([]*models.Asset, 0, len(selected))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, d.assets[id].Clone())

		var unlocked []string

		for _, dependent := range d.dependents[id] {
			if _, ok := selected[dependent]; !ok {
				continue
			}

			indegree[dependent]--
			if indegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}

		ready = append(ready, unlocked...)
		sort.Strings(ready)
	}

	if len(out) != len(selected) {
		return nil, &BuildError{Op: "TopologicalOrder", Err: ErrDependencyCycle}
	}

	return out, nil
}

// findCycle returns one dependency cycle as a path of keys, or nil.
func (d *Definitions) findCycle() []models.AssetKey {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(d.assets))
	parent := make(map[string]string, len(d.assets))

	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray

		for _, dep := range d.assets[id].Deps {
			next := dep.String()

			switch color[next] {
			case white:
				parent[next] = id
				if visit(next) {
					return true
				}
			case gray:
				cycle = append(cycle, next)
				for cur := id; cur != next; cur = parent[cur] {
					cycle = append(cycle, cur)
				}

				cycle = append(cycle, next)

				return true
			}
		}

		color[id] = black

		return false
	}

	for _, id := range d.order {
		if color[id] == white && visit(id) {
			break
		}
	}

	out := make([]models.AssetKey, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, d.assets[cycle[i]].Key)
	}

	return out
}

func formatPath(path []models.AssetKey) string {
	parts := make([]string, 0, len(path))
	for _, key := range path {
		parts = append(parts, key.String())
	}

	return strings.Join(parts, " -> ")
}

func cloneJob(job *models.Job) *models.Job {
	copied := &models.Job{Name: job.Name, Description: job.Description}
	for _, key := range job.Assets {
		copied.Assets = append(copied.Assets, models.NewAssetKey(key...))
	}

	return copied
}

func cloneSensor(sensor *models.Sensor) *models.Sensor {
	copied := *sensor
	copied.MonitoredJobs = slices.Clone(sensor.MonitoredJobs)
	copied.Asset = models.NewAssetKey(sensor.Asset...)

	if sensor.Selection != nil {
		selection := *sensor.Selection
		copied.Selection = &selection
	}

	return &copied
}

func (d *Definitions) String() string {
	return fmt.Sprintf("Definitions(assets=%d, jobs=%d, schedules=%d, sensors=%d)",
		len(d.order), len(d.jobOrder), len(d.schedules), len(d.sensors))
}
