package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := &cli.Command{
		Name:     "assetflow",
		Writer:   &out,
		Commands: []*cli.Command{ValidateCommand(), ListCommand()},
	}

	err := cmd.Run(context.Background(), append([]string{"assetflow"}, args...))

	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := runCLI(t, "validate", "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "Definitions(assets=82, jobs=9, schedules=4, sensors=6)\n", out)
}

func TestListCommand(t *testing.T) {
	out, err := runCLI(t, "list", "--automations-active", " YES ", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "el_source_asset__lana__inbox_events")
	assert.Contains(t, out, "lana/inbox_events")
	assert.Contains(t, out, "lana_to_dw_el")
	assert.Contains(t, out, "file_reports_generation_schedule")
	assert.Contains(t, out, "lana_el_automation_condition_sensor")
	assert.Contains(t, out, "RUNNING")
	assert.NotContains(t, out, "STOPPED")
}
