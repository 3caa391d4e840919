package models

import (
	"time"
)

// MeterReading represents one decoded smart meter reading
type MeterReading struct {
	DeviceID     string  `json:"deviceId"`
	DeviceNumber uint16  `json:"deviceNumber"`
	Timestamp    uint32  `json:"timestamp"`
	Voltage      float64 `json:"voltage"`
	Current      float64 `json:"current"`
	Power        float64 `json:"power"`
	Frequency    float64 `json:"frequency"`
}

// WindowSum represents a closed aggregation window
type WindowSum struct {
	Index    uint64    `json:"index"`
	Size     int       `json:"size"`
	Sum      float64   `json:"sum"`
	ClosedAt time.Time `json:"closedAt"`
}

// Anomaly represents a reading outside the expected operating band
type Anomaly struct {
	DeviceID   string    `json:"deviceId"`
	Timestamp  uint32    `json:"timestamp"`
	Power      float64   `json:"power"`
	Voltage    float64   `json:"voltage"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detectedAt"`
}

// BenchmarkMetrics is the record written once when a benchmark completes
type BenchmarkMetrics struct {
	RunID             string    `json:"run_id"`
	DeviceCount       int       `json:"device_count"`
	ThreadCount       int       `json:"thread_count"`
	BenchmarkReadings uint64    `json:"benchmark_target"`
	BenchmarkWindows  uint64    `json:"benchmark_sum_target"`
	TotalReadings     uint64    `json:"total_readings"`
	TotalWindows      uint64    `json:"total_sums"`
	ElapsedSeconds    float64   `json:"seconds"`
	ThroughputRPS     float64   `json:"throughput_rps"`
	CompletedAt       time.Time `json:"timestamp"`
}

// Stats is a point-in-time snapshot of server counters
type Stats struct {
	TotalReadings     uint64  `json:"total_readings"`
	TotalWindows      uint64  `json:"total_windows"`
	ActiveConnections int64   `json:"active_connections"`
	AcceptedConns     uint64  `json:"accepted_connections"`
	DroppedMessages   uint64  `json:"dropped_messages"`
	Anomalies         uint64  `json:"anomalies"`
	KnownDevices      int     `json:"known_devices"`
	Workers           int     `json:"workers"`
	ElapsedSeconds    float64 `json:"elapsed_seconds"`
	ThroughputRPS     float64 `json:"throughput_rps"`
	ShuttingDown      bool    `json:"shutting_down"`
	BenchmarkComplete bool    `json:"benchmark_complete"`
}
