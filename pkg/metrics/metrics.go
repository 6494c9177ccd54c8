// Package metrics exposes prometheus counters for the orchestration loop.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric label values for run request origins.
const (
	OriginAutomation = "automation"
	OriginSchedule   = "schedule"
	OriginSensor     = "sensor"
	OriginManual     = "manual"
)

// Metric label values for enqueue results.
const (
	EnqueueStatusEnqueued     = "enqueued"
	EnqueueStatusDeduplicated = "deduplicated"
	EnqueueStatusFailed       = "failed"
)

type Metrics struct {
	runRequests       *prometheus.CounterVec
	sensorEvents      *prometheus.CounterVec
	policyEvaluations *prometheus.CounterVec
	runsCompleted     *prometheus.CounterVec
	rowsLoaded        *prometheus.CounterVec
	tablesCreated     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetflow",
			Name:      "run_requests_total",
			Help:      "Total number of run requests handed to the queue, by origin, target job and status.",
		}, []string{"origin", "job", "status"}),
		sensorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetflow",
			Name:      "sensor_events_total",
			Help:      "Total number of events evaluated by sensors, by sensor and whether a request was emitted.",
		}, []string{"sensor", "fired"}),
		policyEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetflow",
			Name:      "policy_evaluations_total",
			Help:      "Total number of automation policy evaluations, by result.",
		}, []string{"fired"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetflow",
			Name:      "runs_completed_total",
			Help:      "Total number of finished job runs, by job and outcome.",
		}, []string{"job", "outcome"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetflow",
			Subsystem: "sync",
			Name:      "rows_loaded_total",
			Help:      "Total number of rows copied into the warehouse, by table.",
		}, []string{"table"}),
		tablesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetflow",
			Subsystem: "sync",
			Name:      "empty_tables_created_total",
			Help:      "Total number of empty warehouse tables created by reconciliation, by table.",
		}, []string{"table"}),
	}

	if reg != nil {
		for _, vec := range []**prometheus.CounterVec{
			&m.runRequests, &m.sensorEvents, &m.policyEvaluations, &m.runsCompleted, &m.rowsLoaded, &m.tablesCreated,
		} {
			registered, err := register(reg, *vec)
			if err != nil {
				return nil, err
			}

			*vec = registered
		}
	}

	return m, nil
}

func (m *Metrics) RecordRunRequest(origin, job, status string) {
	if m == nil {
		return
	}

	m.runRequests.WithLabelValues(origin, job, status).Inc()
}

func (m *Metrics) RecordSensorEvent(sensor string, fired bool) {
	if m == nil {
		return
	}

	m.sensorEvents.WithLabelValues(sensor, boolLabel(fired)).Inc()
}

func (m *Metrics) RecordPolicyEvaluation(fired bool) {
	if m == nil {
		return
	}

	m.policyEvaluations.WithLabelValues(boolLabel(fired)).Inc()
}

func (m *Metrics) RecordRunCompleted(job, outcome string) {
	if m == nil {
		return
	}

	m.runsCompleted.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) RecordRowsLoaded(table string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}

	m.rowsLoaded.WithLabelValues(table).Add(float64(rows))
}

func (m *Metrics) RecordTableCreated(table string) {
	if m == nil {
		return
	}

	m.tablesCreated.WithLabelValues(table).Inc()
}

// register reuses an identical collector that is already registered, so that
// several components may share one registry.
func register(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := reg.Register(vec)
	if err == nil {
		return vec, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}

	return nil, err
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}

	return "false"
}
