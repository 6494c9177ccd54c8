package graph

import (
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/assetflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder() *Builder {
	return NewBuilder(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func source(name string) *models.Asset {
	return &models.Asset{
		Key:  models.NewAssetKey("el_source_asset__lana__" + name),
		Tags: map[string]string{models.TagAssetType: "el_source_asset", models.TagSystem: "lana"},
	}
}

func target(name string) *models.Asset {
	return &models.Asset{
		Key:      models.NewAssetKey("lana", name),
		Deps:     []models.AssetKey{models.NewAssetKey("el_source_asset__lana__" + name)},
		Tags:     map[string]string{models.TagAssetType: "el_target_asset", models.TagSystem: "lana"},
		Producer: models.SyncTarget{System: "lana", Table: name},
		Policy:   models.OnMissingOrCron(models.DailyAtMidnight),
	}
}

func TestBuilder_BuildsPairGraph(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(source("orders"), target("orders"), source("users"), target("users")))

	job, err := b.AddJob("lana_to_dw_el", "", Tagged(models.TagAssetType, "el_target_asset"))
	require.NoError(t, err)
	assert.Len(t, job.Assets, 2)

	_, err = b.AddSensor(&models.Sensor{
		Name:      "lana_automation_sensor",
		Kind:      models.SensorKindAutomationCondition,
		Status:    models.SensorStatusRunning,
		TargetJob: "lana_to_dw_el",
		Selection: &models.TagSelection{Key: models.TagAssetType, Value: "el_target_asset"},
	})
	require.NoError(t, err)

	defs, err := b.Build()
	require.NoError(t, err)

	assert.Len(t, defs.Assets(), 4)
	assert.Len(t, defs.AssetsMatching(models.TagSelection{Key: models.TagAssetType, Value: "el_target_asset"}), 2)

	orders, ok := defs.Asset(models.NewAssetKey("lana", "orders"))
	require.True(t, ok)
	assert.Equal(t, models.UnitKindSyncTarget, orders.Kind())
	assert.Equal(t, []models.AssetKey{models.NewAssetKey("lana", "orders")},
		defs.Dependents(models.NewAssetKey("el_source_asset__lana__orders")))

	sensors := defs.SensorsOfKind(models.SensorKindAutomationCondition)
	require.Len(t, sensors, 1)
	assert.True(t, sensors[0].Running())
}

func TestBuilder_DuplicateIdentity(t *testing.T) {
	b := newTestBuilder()
	_, err := b.AddAsset(target("orders"))
	require.NoError(t, err)

	_, err = b.AddAsset(target("orders"))
	require.Error(t, err)
	assert.True(t, IsDuplicateIdentity(err))
	assert.Contains(t, err.Error(), "lana/orders")
}

func TestBuilder_DanglingDependency(t *testing.T) {
	b := newTestBuilder()
	_, err := b.AddAsset(target("orders"))
	require.NoError(t, err)

	_, err = b.Build()
	require.Error(t, err)
	assert.True(t, IsDanglingDependency(err))

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "el_source_asset__lana__orders", buildErr.Dependency.String())
}

func TestBuilder_DependenciesMayBeAddedLater(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(target("orders"), source("orders")))

	_, err := b.Build()
	assert.NoError(t, err)
}

func TestBuilder_EmptySelection(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(source("orders")))

	_, err := b.AddJob("nothing", "", Tagged(models.TagAssetType, "el_target_asset"))
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestBuilder_UnknownUnitInSelection(t *testing.T) {
	b := newTestBuilder()

	_, err := b.AddJob("job", "", Keys(models.NewAssetKey("lana", "missing")))
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestBuilder_UnknownJob(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(source("orders")))
	_, err := b.AddJob("notify", "", Keys(models.NewAssetKey("el_source_asset__lana__orders")))
	require.NoError(t, err)

	_, err = b.AddSchedule("missing_job", "0 0 * * *", models.SensorStatusRunning)
	assert.True(t, IsUnknownJob(err))

	_, err = b.AddSensor(&models.Sensor{
		Name:          "inform",
		Kind:          models.SensorKindRunStatus,
		Status:        models.SensorStatusRunning,
		TargetJob:     "notify",
		MonitoredJobs: []string{"file_reports_generation"},
		Outcome:       models.RunOutcomeSuccess,
	})
	assert.True(t, IsUnknownJob(err))
}

func TestBuilder_Schedule(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(source("orders")))
	_, err := b.AddJob("reports", "", Keys(models.NewAssetKey("el_source_asset__lana__orders")))
	require.NoError(t, err)

	schedule, err := b.AddSchedule("reports", "0 */2 * * *", models.SensorStatusStopped)
	require.NoError(t, err)
	assert.Equal(t, "reports_schedule", schedule.Name)

	_, err = b.AddSchedule("reports", "0 */2 * * *", models.SensorStatusStopped)
	assert.ErrorIs(t, err, ErrDuplicateName)

	b2 := newTestBuilder()
	require.NoError(t, b2.AddAssets(source("orders")))
	_, err = b2.AddJob("reports", "", Keys(models.NewAssetKey("el_source_asset__lana__orders")))
	require.NoError(t, err)
	_, err = b2.AddSchedule("reports", "not a cron", models.SensorStatusRunning)
	assert.ErrorIs(t, err, ErrInvalidCron)
}

func TestBuilder_UnknownResource(t *testing.T) {
	b := newTestBuilder()
	asset := source("orders")
	asset.RequiredResources = []string{"dw_bq"}
	require.NoError(t, b.AddAssets(asset))

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrUnknownResource)

	require.NoError(t, b.AddResource("dw_bq", struct{}{}))
	defs, err := b.Build()
	require.NoError(t, err)

	resources := defs.Resources([]string{"dw_bq", "other"})
	assert.Len(t, resources, 1)
}

func TestBuilder_Cycle(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(
		&models.Asset{Key: models.NewAssetKey("a"), Deps: []models.AssetKey{models.NewAssetKey("c")}},
		&models.Asset{Key: models.NewAssetKey("b"), Deps: []models.AssetKey{models.NewAssetKey("a")}},
		&models.Asset{Key: models.NewAssetKey("c"), Deps: []models.AssetKey{models.NewAssetKey("b")}},
	))

	_, err := b.Build()
	require.ErrorIs(t, err, ErrDependencyCycle)
	assert.Contains(t, err.Error(), "->")
}

func TestBuilder_InvalidPolicy(t *testing.T) {
	b := newTestBuilder()
	asset := target("orders")
	asset.Policy = models.Or(models.Missing(), models.Cron("every day"))

	_, err := b.AddAsset(asset)
	assert.ErrorIs(t, err, ErrInvalidCron)
}

func TestDefinitions_Immutable(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(source("orders"), target("orders")))
	_, err := b.AddJob("sync", "", Keys(models.NewAssetKey("lana", "orders")))
	require.NoError(t, err)

	defs, err := b.Build()
	require.NoError(t, err)

	asset, _ := defs.Asset(models.NewAssetKey("lana", "orders"))
	asset.Tags[models.TagSystem] = "changed"
	asset.Deps[0][0] = "changed"

	job, _ := defs.Job("sync")
	job.Assets[0][0] = "changed"

	again, _ := defs.Asset(models.NewAssetKey("lana", "orders"))
	assert.Equal(t, "lana", again.Tags[models.TagSystem])
	assert.Equal(t, "el_source_asset__lana__orders", again.Deps[0][0])

	jobAgain, _ := defs.Job("sync")
	assert.Equal(t, "lana", jobAgain.Assets[0][0])

	// Further builder calls must not leak into frozen definitions.
	require.NoError(t, b.AddAssets(source("users")))
	assert.Len(t, defs.Assets(), 2)
}

func TestDefinitions_TopologicalOrder(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(
		target("users"), target("orders"), source("orders"), source("users"),
		&models.Asset{Key: models.NewAssetKey("file_reports", "daily"), Deps: []models.AssetKey{
			models.NewAssetKey("lana", "orders"), models.NewAssetKey("lana", "users"),
		}},
	))

	defs, err := b.Build()
	require.NoError(t, err)

	ordered, err := defs.TopologicalOrder([]models.AssetKey{
		models.NewAssetKey("file_reports", "daily"),
		models.NewAssetKey("lana", "users"),
		models.NewAssetKey("lana", "orders"),
	})
	require.NoError(t, err)

	var keys []string
	for _, asset := range ordered {
		keys = append(keys, asset.Key.String())
	}

	assert.Equal(t, []string{"lana/orders", "lana/users", "file_reports/daily"}, keys)

	_, err = defs.TopologicalOrder([]models.AssetKey{models.NewAssetKey("nope")})
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestBuilder_KeySegmentsCannotContainSeparator(t *testing.T) {
	b := newTestBuilder()

	_, err := b.AddAsset(&models.Asset{Key: models.NewAssetKey("a/b")})
	require.ErrorIs(t, err, ErrInvalidAsset)

	_, err = b.AddAsset(&models.Asset{Key: models.NewAssetKey("a", "b")})
	require.NoError(t, err)

	_, err = b.AddAsset(&models.Asset{Key: models.NewAssetKey("c"), Deps: []models.AssetKey{models.NewAssetKey("a/b")}})
	require.ErrorIs(t, err, ErrInvalidAsset)

	_, err = b.AddAsset(&models.Asset{Key: models.NewAssetKey("d"), Deps: []models.AssetKey{{}}})
	require.ErrorIs(t, err, ErrInvalidAsset)
}

func TestBuilder_HierarchicalKeysStayDistinct(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddAssets(
		&models.Asset{Key: models.NewAssetKey("ab")},
		&models.Asset{Key: models.NewAssetKey("a", "b")},
		&models.Asset{Key: models.NewAssetKey("c"), Deps: []models.AssetKey{models.NewAssetKey("a", "c")}},
	))

	_, err := b.Build()
	require.Error(t, err)
	assert.True(t, IsDanglingDependency(err))
}

func TestBuilder_SensorsThatCannotFire(t *testing.T) {
	newBuilder := func(t *testing.T) *Builder {
		t.Helper()

		b := newTestBuilder()
		require.NoError(t, b.AddAssets(source("orders"), target("orders")))

		_, err := b.AddJob("lana_to_dw_el", "", Keys(models.NewAssetKey("lana", "orders")))
		require.NoError(t, err)

		return b
	}

	testCases := []struct {
		name   string
		sensor models.Sensor
	}{
		{
			name: "run status without outcome",
			sensor: models.Sensor{
				Kind: models.SensorKindRunStatus, MonitoredJobs: []string{"lana_to_dw_el"},
			},
		},
		{
			name: "run status with unknown outcome",
			sensor: models.Sensor{
				Kind: models.SensorKindRunStatus, MonitoredJobs: []string{"lana_to_dw_el"}, Outcome: "CANCELED",
			},
		},
		{
			name:   "run status without monitored jobs",
			sensor: models.Sensor{Kind: models.SensorKindRunStatus, Outcome: models.RunOutcomeSuccess},
		},
		{
			name:   "materialization without asset",
			sensor: models.Sensor{Kind: models.SensorKindAssetMaterialization},
		},
		{
			name:   "unknown kind",
			sensor: models.Sensor{Kind: "webhook"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sensor := tc.sensor
			sensor.Name = "sensor"
			sensor.Status = models.SensorStatusRunning
			sensor.TargetJob = "lana_to_dw_el"

			_, err := newBuilder(t).AddSensor(&sensor)
			assert.ErrorIs(t, err, ErrInvalidSensor)
		})
	}

	t.Run("materialization of unknown asset", func(t *testing.T) {
		b := newBuilder(t)
		_, err := b.AddSensor(&models.Sensor{
			Name:      "inbox",
			Kind:      models.SensorKindAssetMaterialization,
			Status:    models.SensorStatusRunning,
			TargetJob: "lana_to_dw_el",
			Asset:     models.NewAssetKey("lana", "inbox_events"),
		})
		require.NoError(t, err)

		_, err = b.Build()
		assert.ErrorIs(t, err, ErrUnknownUnit)
	})
}
