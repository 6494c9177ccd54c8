package main

import (
	"log/slog"

	"github.com/dukex/assetflow/pkg/catalog"
	"github.com/dukex/assetflow/pkg/definitions"
	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/reconcile"
	"github.com/dukex/assetflow/pkg/sensors"
	"github.com/urfave/cli/v3"
)

const defaultDataset = "lana_dw"

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}
}

// graphFlags configure what definitions.Build needs.
func graphFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "automations-active",
			Usage:   "Start schedules and sensors as RUNNING (1, true, t, yes, y, on)",
			Sources: cli.EnvVars("AUTOMATIONS_ACTIVE", "DAGSTER_AUTOMATIONS_ACTIVE"),
		},
		&cli.StringFlag{
			Name:    "source-url",
			Usage:   "Connection URL of the lana core database",
			Sources: cli.EnvVars("LANA_CORE_PG_URL"),
		},
		&cli.StringFlag{
			Name:    "warehouse-url",
			Usage:   "Connection URL of the warehouse",
			Sources: cli.EnvVars("DW_URL"),
		},
		&cli.StringFlag{
			Name:    "warehouse-dataset",
			Usage:   "Warehouse dataset the lana tables are copied into",
			Value:   defaultDataset,
			Sources: cli.EnvVars("DW_DATASET"),
		},
	}
}

func buildDefinitions(command *cli.Command, logger *slog.Logger) (*graph.Definitions, error) {
	return definitions.Build(definitions.Config{
		AutomationsActive: sensors.ParseActivation(command.String("automations-active")),
		Source: reconcile.SourceHandle{
			Name: catalog.ResourceLanaCorePG,
			DSN:  command.String("source-url"),
		},
		Warehouse: reconcile.DestHandle{
			Name:    catalog.ResourceDW,
			DSN:     command.String("warehouse-url"),
			Dataset: command.String("warehouse-dataset"),
		},
	}, logger)
}
