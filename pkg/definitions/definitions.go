// Package definitions assembles the lana asset graph: the warehouse sync
// catalog, the dbt project built on top of it, the external extracts, the
// file reports and the notifications that follow them.
package definitions

import (
	"fmt"
	"log/slog"

	"github.com/dukex/assetflow/pkg/catalog"
	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/reconcile"
	"github.com/dukex/assetflow/pkg/sensors"
)

// Job names.
const (
	LanaToDWJob          = "lana_to_dw_el"
	SumsubApplicantsJob  = "sumsub_applicants_el"
	FileReportsJob       = "file_reports_generation"
	NotifyLanaJob        = "notify_lana_job"
	BitfinexTickerJob    = "bitfinex_ticker_el"
	BitfinexTradesJob    = "bitfinex_trades_el"
	BitfinexOrderBookJob = "bitfinex_order_book_el"
	DbtModelsJob         = "dbt_models_job"
	DbtSeedsJob          = "dbt_seeds_job"
)

// Sensor names.
const (
	LanaAutomationSensor   = "lana_el_automation_condition_sensor"
	DbtAutomationSensor    = "dbt_automation_condition_sensor"
	DbtSeedSensor          = "dbt_seed_automation_condition_sensor"
	SumsubInboxSensor      = "sumsub_applicant_inbox_events_sensor"
	FileReportsSuccessName = "file_reports_success_sensor"
	FileReportsFailureName = "file_reports_failure_sensor"
)

const (
	APIAssetType    = "el_api_asset"
	ReportAssetType = "file_report"
	DbtModelType    = "dbt_model"
	DbtSeedType     = "dbt_seed"

	dbtProject = "dbt_lana_dw"

	bitfinexSchedule    = "*/10 * * * *"
	fileReportsSchedule = "0 */2 * * *"
)

// BitfinexStreams are extracted into the warehouse every ten minutes, one job each.
var BitfinexStreams = []struct {
	Stream string
	Job    string
}{
	{"ticker", BitfinexTickerJob},
	{"trades", BitfinexTradesJob},
	{"order_book", BitfinexOrderBookJob},
}

// FileReports are generated together by FileReportsJob.
var FileReports = []string{
	"credit_facility_summary",
	"deposit_balances",
	"disbursals",
}

// DbtSeeds are static reference tables loaded into the warehouse by dbt.
var DbtSeeds = []string{
	"seed_chart_of_accounts_mapping",
	"seed_report_codes",
}

// Config carries what the graph needs from the environment.
type Config struct {
	AutomationsActive bool
	Source            reconcile.SourceHandle
	Warehouse         reconcile.DestHandle
	Tables            []string
}

func InformLanaKey() models.AssetKey {
	return models.NewAssetKey("inform_lana")
}

func SumsubApplicantsKey() models.AssetKey {
	return models.NewAssetKey("sumsub", "applicants")
}

func BitfinexKey(stream string) models.AssetKey {
	return models.NewAssetKey("bitfinex", stream)
}

func FileReportKey(report string) models.AssetKey {
	return models.NewAssetKey("file_reports", report)
}

// DbtStagingKey is the staging model built over the warehouse copy of table.
func DbtStagingKey(table string) models.AssetKey {
	return models.NewAssetKey(dbtProject, "stg_"+table)
}

func DbtSeedKey(seed string) models.AssetKey {
	return models.NewAssetKey(dbtProject, seed)
}

// Build registers every lana asset, job, schedule and sensor on a fresh
// builder and returns the frozen graph. Statuses of schedules and sensors
// follow cfg.AutomationsActive.
func Build(cfg Config, logger *slog.Logger) (*graph.Definitions, error) {
	if cfg.Tables == nil {
		cfg.Tables = catalog.LanaTables
	}

	b := graph.NewBuilder(logger)
	status := sensors.DefaultStatus(cfg.AutomationsActive)

	for _, step := range []func(*graph.Builder, Config, models.SensorStatus) error{
		addResources,
		addBitfinex,
		addLanaSync,
		addDbt,
		addSumsub,
		addFileReports,
	} {
		if err := step(b, cfg, status); err != nil {
			return nil, err
		}
	}

	return b.Build()
}

func addResources(b *graph.Builder, cfg Config, _ models.SensorStatus) error {
	if err := b.AddResource(catalog.ResourceLanaCorePG, cfg.Source); err != nil {
		return err
	}

	return b.AddResource(catalog.ResourceDW, cfg.Warehouse)
}

func addBitfinex(b *graph.Builder, _ Config, status models.SensorStatus) error {
	for _, entry := range BitfinexStreams {
		_, err := b.AddAsset(&models.Asset{
			Key:         BitfinexKey(entry.Stream),
			Tags:        map[string]string{models.TagAssetType: APIAssetType, models.TagSystem: "bitfinex"},
			Description: fmt.Sprintf("Bitfinex %s extracted into the warehouse", entry.Stream),
			Producer:    models.Extract{Provider: "bitfinex", Stream: entry.Stream},
		})
		if err != nil {
			return err
		}

		if _, err := b.AddJob(entry.Job, "", graph.Keys(BitfinexKey(entry.Stream))); err != nil {
			return err
		}

		if _, err := b.AddSchedule(entry.Job, bitfinexSchedule, status); err != nil {
			return err
		}
	}

	return nil
}

func addLanaSync(b *graph.Builder, cfg Config, status models.SensorStatus) error {
	if err := b.AddAssets(catalog.Assets(catalog.ExpandCatalog(catalog.LanaSystem, cfg.Tables))...); err != nil {
		return err
	}

	if _, err := b.AddJob(LanaToDWJob, "Copies the lana core tables into the warehouse",
		graph.Tagged(models.TagAssetType, catalog.TargetAssetType)); err != nil {
		return err
	}

	_, err := b.AddSensor(&models.Sensor{
		Name:      LanaAutomationSensor,
		Kind:      models.SensorKindAutomationCondition,
		Status:    status,
		TargetJob: LanaToDWJob,
		Selection: &models.TagSelection{Key: models.TagAssetType, Value: catalog.TargetAssetType},
	})

	return err
}

// addDbt registers one staging model per synced table and the seeds. Both
// families are kept fresh by their own automation sensor.
func addDbt(b *graph.Builder, cfg Config, status models.SensorStatus) error {
	for _, table := range cfg.Tables {
		_, err := b.AddAsset(&models.Asset{
			Key:               DbtStagingKey(table),
			Deps:              []models.AssetKey{catalog.TargetKey(catalog.LanaSystem, table)},
			Tags:              map[string]string{models.TagAssetType: DbtModelType, models.TagSystem: catalog.LanaSystem},
			Description:       "dbt staging model over " + table,
			Producer:          models.Dbt{Resource: models.DbtModel, Name: "stg_" + table},
			RequiredResources: []string{catalog.ResourceDW},
			Policy:            models.OnMissingOrCron(models.DailyAtMidnight),
		})
		if err != nil {
			return err
		}
	}

	for _, seed := range DbtSeeds {
		_, err := b.AddAsset(&models.Asset{
			Key:               DbtSeedKey(seed),
			Tags:              map[string]string{models.TagAssetType: DbtSeedType, models.TagSystem: catalog.LanaSystem},
			Description:       "dbt seed " + seed,
			Producer:          models.Dbt{Resource: models.DbtSeed, Name: seed},
			RequiredResources: []string{catalog.ResourceDW},
			Policy:            models.OnMissingOrCron(models.DailyAtMidnight),
		})
		if err != nil {
			return err
		}
	}

	for _, family := range []struct {
		job, sensor, assetType string
	}{
		{DbtModelsJob, DbtAutomationSensor, DbtModelType},
		{DbtSeedsJob, DbtSeedSensor, DbtSeedType},
	} {
		if _, err := b.AddJob(family.job, "", graph.Tagged(models.TagAssetType, family.assetType)); err != nil {
			return err
		}

		_, err := b.AddSensor(&models.Sensor{
			Name:      family.sensor,
			Kind:      models.SensorKindAutomationCondition,
			Status:    status,
			TargetJob: family.job,
			Selection: &models.TagSelection{Key: models.TagAssetType, Value: family.assetType},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func addSumsub(b *graph.Builder, _ Config, status models.SensorStatus) error {
	_, err := b.AddAsset(&models.Asset{
		Key:         SumsubApplicantsKey(),
		Deps:        []models.AssetKey{catalog.TargetKey(catalog.LanaSystem, "inbox_events")},
		Tags:        map[string]string{models.TagAssetType: APIAssetType, models.TagSystem: "sumsub"},
		Description: "Sumsub applicants referenced by lana inbox events",
		Producer:    models.Extract{Provider: "sumsub", Stream: "applicants"},
	})
	if err != nil {
		return err
	}

	if _, err := b.AddJob(SumsubApplicantsJob, "", graph.Keys(SumsubApplicantsKey())); err != nil {
		return err
	}

	_, err = b.AddSensor(&models.Sensor{
		Name:      SumsubInboxSensor,
		Kind:      models.SensorKindAssetMaterialization,
		Status:    status,
		TargetJob: SumsubApplicantsJob,
		KeyPrefix: "sumsub_applicants_from_inbox_events",
		Asset:     catalog.TargetKey(catalog.LanaSystem, "inbox_events"),
	})

	return err
}

func addFileReports(b *graph.Builder, _ Config, status models.SensorStatus) error {
	keys := make([]models.AssetKey, 0, len(FileReports))

	for _, report := range FileReports {
		_, err := b.AddAsset(&models.Asset{
			Key:         FileReportKey(report),
			Tags:        map[string]string{models.TagAssetType: ReportAssetType},
			Description: "Generated file report " + report,
			Producer:    models.ReportGenerator{Report: report},
		})
		if err != nil {
			return err
		}

		keys = append(keys, FileReportKey(report))
	}

	if _, err := b.AddJob(FileReportsJob, "", graph.Keys(keys...)); err != nil {
		return err
	}

	if _, err := b.AddSchedule(FileReportsJob, fileReportsSchedule, status); err != nil {
		return err
	}

	_, err := b.AddAsset(&models.Asset{
		Key:         InformLanaKey(),
		Description: "Informs lana about generated file reports",
		Producer:    models.Notifier{Target: catalog.LanaSystem},
	})
	if err != nil {
		return err
	}

	if _, err := b.AddJob(NotifyLanaJob, "", graph.Keys(InformLanaKey())); err != nil {
		return err
	}

	for _, sensor := range []models.Sensor{
		{Name: FileReportsSuccessName, Outcome: models.RunOutcomeSuccess, KeyPrefix: "inform_lana_success"},
		{Name: FileReportsFailureName, Outcome: models.RunOutcomeFailure, KeyPrefix: "inform_lana_failure"},
	} {
		sensor.Kind = models.SensorKindRunStatus
		sensor.Status = status
		sensor.TargetJob = NotifyLanaJob
		sensor.MonitoredJobs = []string{FileReportsJob}

		if _, err := b.AddSensor(&sensor); err != nil {
			return err
		}
	}

	return nil
}
