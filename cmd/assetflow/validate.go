package main

import (
	"context"
	"fmt"

	"github.com/dukex/assetflow/pkg/log"
	"github.com/urfave/cli/v3"
)

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Build the asset graph and report the first definition error",
		Flags: append(graphFlags(), logLevelFlag()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("validate")

			defs, err := buildDefinitions(command, logger)
			if err != nil {
				return fmt.Errorf("invalid definitions: %w", err)
			}

			_, err = fmt.Fprintln(command.Root().Writer, defs.String())

			return err
		},
	}
}
