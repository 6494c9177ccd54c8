package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/log"
	"github.com/urfave/cli/v3"
)

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "Print the assets, jobs, schedules and sensors of the graph",
		Flags:   append(graphFlags(), logLevelFlag()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("list")

			defs, err := buildDefinitions(command, logger)
			if err != nil {
				return fmt.Errorf("invalid definitions: %w", err)
			}

			return printDefinitions(command.Root().Writer, defs)
		},
	}
}

func printDefinitions(out io.Writer, defs *graph.Definitions) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "ASSET\tKIND\tDEPS\tPOLICY")

	for _, asset := range defs.Assets() {
		deps := make([]string, 0, len(asset.Deps))
		for _, dep := range asset.Deps {
			deps = append(deps, dep.String())
		}

		policy := "-"
		if asset.Policy != nil {
			policy = asset.Policy.String()
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", asset.Key, asset.Kind(), orDash(strings.Join(deps, ",")), policy)
	}

	fmt.Fprintln(w, "\nJOB\tASSETS\tDESCRIPTION")

	for _, job := range defs.Jobs() {
		fmt.Fprintf(w, "%s\t%d\t%s\n", job.Name, len(job.Assets), orDash(job.Description))
	}

	fmt.Fprintln(w, "\nSCHEDULE\tJOB\tCRON\tSTATUS")

	for _, schedule := range defs.Schedules() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", schedule.Name, schedule.JobName, schedule.CronExpression, schedule.Status)
	}

	fmt.Fprintln(w, "\nSENSOR\tKIND\tTARGET\tSTATUS")

	for _, sensor := range defs.Sensors() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sensor.Name, sensor.Kind, sensor.TargetJob, sensor.Status)
	}

	return w.Flush()
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}

	return value
}
