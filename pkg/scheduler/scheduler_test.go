package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dukex/assetflow/pkg/catalog"
	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	requests []models.RunRequest
	err      error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, _ string, request models.RunRequest) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return false, r.err
	}

	if r.seen == nil {
		r.seen = make(map[string]struct{})
	}

	if _, dup := r.seen[request.DeduplicationKey]; dup {
		return false, nil
	}

	r.seen[request.DeduplicationKey] = struct{}{}
	r.requests = append(r.requests, request)

	return true, nil
}

func (r *recordingEnqueuer) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.requests))
	for _, request := range r.requests {
		keys = append(keys, request.DeduplicationKey)
	}

	sort.Strings(keys)

	return keys
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func buildDefinitions(t *testing.T, status models.SensorStatus) *graph.Definitions {
	t.Helper()

	b := graph.NewBuilder(testLogger())
	require.NoError(t, b.AddResource(catalog.ResourceLanaCorePG, struct{}{}))
	require.NoError(t, b.AddResource(catalog.ResourceDW, struct{}{}))
	require.NoError(t, b.AddAssets(catalog.Assets(catalog.ExpandCatalog(catalog.LanaSystem, []string{"orders", "users"}))...))

	_, err := b.AddJob("lana_to_dw_el", "", graph.Tagged(models.TagAssetType, catalog.TargetAssetType))
	require.NoError(t, err)

	_, err = b.AddSchedule("lana_to_dw_el", "0 */2 * * *", status)
	require.NoError(t, err)

	_, err = b.AddSensor(&models.Sensor{
		Name:      "lana_el_automation_condition_sensor",
		Kind:      models.SensorKindAutomationCondition,
		Status:    status,
		TargetJob: "lana_to_dw_el",
		Selection: &models.TagSelection{Key: models.TagAssetType, Value: catalog.TargetAssetType},
	})
	require.NoError(t, err)

	defs, err := b.Build()
	require.NoError(t, err)

	return defs
}

func TestScheduler_MissingAssetsFireOnce(t *testing.T) {
	store := state.NewMemoryStore()
	enqueuer := &recordingEnqueuer{}

	s, err := New(buildDefinitions(t, models.SensorStatusRunning), store, enqueuer, nil, testLogger(), 0)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 10, 0, 30, 0, time.UTC)
	require.NoError(t, s.Tick(context.Background(), now))
	require.NoError(t, s.Tick(context.Background(), now.Add(time.Minute)))

	assert.Equal(t, []string{"lana/orders_missing", "lana/users_missing"}, enqueuer.keys())

	for _, request := range enqueuer.requests {
		assert.Equal(t, "lana_to_dw_el", request.TargetJob)
		assert.Len(t, request.Assets, 1)
	}
}

func TestScheduler_CronFiresOnMidnightCrossing(t *testing.T) {
	store := state.NewMemoryStore()
	enqueuer := &recordingEnqueuer{}
	ctx := context.Background()

	materializedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordMaterialization(ctx, catalog.TargetKey("lana", "orders"), "run-1", materializedAt))
	require.NoError(t, store.RecordMaterialization(ctx, catalog.TargetKey("lana", "users"), "run-1", materializedAt))

	s, err := New(buildDefinitions(t, models.SensorStatusRunning), store, enqueuer, nil, testLogger(), time.Minute)
	require.NoError(t, err)

	s.schedules = nil

	require.NoError(t, s.Tick(ctx, time.Date(2025, 3, 1, 23, 58, 0, 0, time.UTC)))
	require.NoError(t, s.Tick(ctx, time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)))
	assert.Empty(t, enqueuer.keys())

	require.NoError(t, s.Tick(ctx, time.Date(2025, 3, 2, 0, 0, 10, 0, time.UTC)))
	assert.Equal(t, []string{"lana/orders_202503020000", "lana/users_202503020000"}, enqueuer.keys())

	require.NoError(t, s.Tick(ctx, time.Date(2025, 3, 2, 0, 1, 10, 0, time.UTC)))
	assert.Len(t, enqueuer.keys(), 2)
}

func TestScheduler_FailedFirstRunRetriedAtMidnight(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	ctx := context.Background()

	s, err := New(buildDefinitions(t, models.SensorStatusRunning), state.NewMemoryStore(), enqueuer, nil, testLogger(), time.Minute)
	require.NoError(t, err)

	s.schedules = nil

	require.NoError(t, s.Tick(ctx, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, s.Tick(ctx, time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, []string{"lana/orders_missing", "lana/users_missing"}, enqueuer.keys())

	require.NoError(t, s.Tick(ctx, time.Date(2025, 3, 2, 0, 0, 30, 0, time.UTC)))
	assert.Equal(t, []string{
		"lana/orders_202503020000",
		"lana/orders_missing",
		"lana/users_202503020000",
		"lana/users_missing",
	}, enqueuer.keys())
}

func TestScheduler_FailedEnqueueIsRetried(t *testing.T) {
	enqueuer := &recordingEnqueuer{err: errors.New("redis down")}

	s, err := New(buildDefinitions(t, models.SensorStatusRunning), state.NewMemoryStore(), enqueuer, nil, testLogger(), 0)
	require.NoError(t, err)

	s.schedules = nil
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.Error(t, s.Tick(context.Background(), now))
	assert.Empty(t, s.cursors)

	enqueuer.err = nil
	require.NoError(t, s.Tick(context.Background(), now.Add(time.Minute)))
	assert.Len(t, enqueuer.keys(), 2)
}

func TestScheduler_SchedulesFireWhenDue(t *testing.T) {
	enqueuer := &recordingEnqueuer{}

	s, err := New(buildDefinitions(t, models.SensorStatusRunning), state.NewMemoryStore(), enqueuer, nil, testLogger(), 0)
	require.NoError(t, err)

	s.assets = nil
	require.Len(t, s.schedules, 1)
	require.NoError(t, s.schedules[0].Advance(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)))

	require.NoError(t, s.Tick(context.Background(), time.Date(2025, 3, 1, 9, 59, 0, 0, time.UTC)))
	assert.Empty(t, enqueuer.keys())

	require.NoError(t, s.Tick(context.Background(), time.Date(2025, 3, 1, 10, 0, 5, 0, time.UTC)))
	assert.Equal(t, []string{"lana_to_dw_el_schedule_202503011000"}, enqueuer.keys())
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), s.Schedules()[0].NextDueAt)
}

func TestScheduler_StoppedDefinitionsAreIgnored(t *testing.T) {
	enqueuer := &recordingEnqueuer{}

	s, err := New(buildDefinitions(t, models.SensorStatusStopped), state.NewMemoryStore(), enqueuer, nil, testLogger(), 0)
	require.NoError(t, err)

	assert.Empty(t, s.assets)
	assert.Empty(t, s.Schedules())

	require.NoError(t, s.Tick(context.Background(), time.Now()))
	assert.Empty(t, enqueuer.keys())
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	s, err := New(buildDefinitions(t, models.SensorStatusRunning), state.NewMemoryStore(), &recordingEnqueuer{}, nil, testLogger(), 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
