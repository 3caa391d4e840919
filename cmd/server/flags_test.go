package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/config"
)

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 9000
	cfg.Server.WorkerCount = 16

	f, err := parseFlags([]string{"-d", "10000", "--benchmark-readings", "1000000", "--metrics", "runs.csv", "--quiet"})
	require.NoError(t, err)
	f.apply(cfg)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Server.WorkerCount)
	assert.Equal(t, 10000, cfg.Server.ExpectedDevices)
	assert.Equal(t, uint64(1000000), cfg.Server.BenchmarkReadings)
	assert.Equal(t, "runs.csv", cfg.Metrics.File)
	assert.True(t, cfg.Server.Quiet)
}

func TestFlagsShortForms(t *testing.T) {
	cfg := config.Default()

	f, err := parseFlags([]string{"-p", "9100", "-s", "50", "--benchmark-sums", "20", "--threads", "4"})
	require.NoError(t, err)
	f.apply(cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Server.WindowSize)
	assert.Equal(t, uint64(20), cfg.Server.BenchmarkWindows)
	assert.Equal(t, 4, cfg.Server.WorkerCount)
}

func TestFlagsConfigFile(t *testing.T) {
	t.Setenv(config.FileEnv, "/etc/grid.yaml")

	f, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/grid.yaml", f.configFile())

	f, err = parseFlags([]string{"--config", "local.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "local.yaml", f.configFile())
}

func TestFlagsHelp(t *testing.T) {
	f, err := parseFlags([]string{"-h"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.NotNil(t, f)
}

func TestFlagsRejectArguments(t *testing.T) {
	_, err := parseFlags([]string{"extra"})
	assert.Error(t, err)
}
