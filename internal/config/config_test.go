package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8890, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.ExpectedDevices)
	assert.Equal(t, 100, cfg.Server.WindowSize, "window size defaults to expected devices")
	assert.Equal(t, 100, cfg.Server.LogInterval)
	assert.Zero(t, cfg.Server.WorkerCount, "zero selects the automatic pool size")
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, ":8890", cfg.Server.ListenAddr())

	cfg.Server.Host = "::1"
	assert.Equal(t, "[::1]:8890", cfg.Server.ListenAddr())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("SERVER_EXPECTED_DEVICES", "50000")
	t.Setenv("SERVER_BENCHMARK_READINGS", "1000000")
	t.Setenv("SERVER_BENCHMARK_WINDOWS", "25")
	t.Setenv("SERVER_WORKER_COUNT", "8")
	t.Setenv("SERVER_QUIET", "true")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("METRICS_FILE", "/tmp/metrics.csv")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 50000, cfg.Server.WindowSize)
	assert.Equal(t, 500, cfg.Server.LogInterval, "devices/100 once above 100")
	assert.Equal(t, uint64(1000000), cfg.Server.BenchmarkReadings)
	assert.Equal(t, uint64(25), cfg.Server.BenchmarkWindows)
	assert.Equal(t, 8, cfg.Server.WorkerCount)
	assert.True(t, cfg.Server.Quiet)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "/tmp/metrics.csv", cfg.Metrics.File)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout, "unparsable values keep the default")
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
  expected_devices: 10
  window_size: 3
  shutdown_timeout: 5s
influxdb:
  enabled: true
  bucket: meters
status:
  addr: ":9090"
`), 0o644))

	t.Setenv(FileEnv, path)
	t.Setenv("SERVER_PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7001, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, 3, cfg.Server.WindowSize)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, "meters", cfg.InfluxDB.Bucket)
	assert.Equal(t, "http://localhost:8086", cfg.InfluxDB.URL, "unset file keys keep defaults")
	assert.Equal(t, ":9090", cfg.Status.Addr)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err = LoadFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "devices", mutate: func(c *Config) { c.Server.ExpectedDevices = 0 }},
		{name: "window", mutate: func(c *Config) { c.Server.WindowSize = -1 }},
		{name: "workers", mutate: func(c *Config) { c.Server.WorkerCount = -2 }},
		{name: "queue", mutate: func(c *Config) { c.Server.QueueSize = -1 }},
		{name: "kafka brokers", mutate: func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
		{name: "kafka topic", mutate: func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }},
		{name: "influx url", mutate: func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
