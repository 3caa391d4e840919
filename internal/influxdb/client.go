package influxdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
)

// pointWriter is the subset of the non-blocking write API the client uses
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client represents an InfluxDB v2 client
type Client struct {
	client   influxdb2.Client
	writeAPI pointWriter
	config   config.InfluxDBConfig
	logger   *slog.Logger
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(ctx context.Context, cfg config.InfluxDBConfig, logger *slog.Logger) (*Client, error) {
	options := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		options.SetBatchSize(uint(cfg.BatchSize))
	}
	if cfg.FlushInterval > 0 {
		options.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	// Add a health check to verify credentials
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("influxdb write failed", "error", err)
		}
	}()

	logger.Info("influxdb connected", "url", cfg.URL, "bucket", cfg.Bucket)
	return &Client{
		client:   client,
		writeAPI: writeAPI,
		config:   cfg,
		logger:   logger,
	}, nil
}

// PublishWindow writes a closed aggregation window
func (c *Client) PublishWindow(w models.WindowSum) {
	c.writeAPI.WritePoint(write.NewPoint(
		"power_window",
		map[string]string{},
		map[string]interface{}{
			"sum_watts":    w.Sum,
			"window_index": int64(w.Index),
			"window_size":  int64(w.Size),
		},
		w.ClosedAt,
	))
}

// PublishAnomaly writes an anomalous reading
func (c *Client) PublishAnomaly(a models.Anomaly) {
	c.writeAPI.WritePoint(write.NewPoint(
		"meter_anomaly",
		map[string]string{
			"device_id": a.DeviceID,
			"reason":    a.Reason,
		},
		map[string]interface{}{
			"power":            a.Power,
			"voltage":          a.Voltage,
			"device_timestamp": int64(a.Timestamp),
		},
		a.DetectedAt,
	))
}

// WriteBenchmark writes the benchmark completion record and flushes it
func (c *Client) WriteBenchmark(m models.BenchmarkMetrics) error {
	c.writeAPI.WritePoint(write.NewPoint(
		"benchmark_run",
		map[string]string{
			"run_id": m.RunID,
		},
		map[string]interface{}{
			"device_count":         int64(m.DeviceCount),
			"thread_count":         int64(m.ThreadCount),
			"benchmark_target":     int64(m.BenchmarkReadings),
			"benchmark_sum_target": int64(m.BenchmarkWindows),
			"total_readings":       int64(m.TotalReadings),
			"total_sums":           int64(m.TotalWindows),
			"seconds":              m.ElapsedSeconds,
			"throughput_rps":       m.ThroughputRPS,
		},
		completedAt(m),
	))
	c.writeAPI.Flush()
	return nil
}

// Close flushes pending points and closes the InfluxDB client
func (c *Client) Close() {
	c.writeAPI.Flush()
	if c.client != nil {
		c.client.Close()
	}
}

func completedAt(m models.BenchmarkMetrics) time.Time {
	if m.CompletedAt.IsZero() {
		return time.Now()
	}
	return m.CompletedAt
}
