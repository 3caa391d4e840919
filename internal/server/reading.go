package server

import (
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
)

// Acceptable supply voltage range in volts. Readings outside it, or with
// negative power, are anomalies.
const (
	MinVoltage = 100.0
	MaxVoltage = 140.0
)

const (
	ReasonNegativePower = "negative_power"
	ReasonVoltageRange  = "voltage_out_of_range"
)

// ProcessReading accounts a decoded reading: it counts it, feeds the
// power aggregator, checks it for anomalies and completes the readings
// benchmark once its target is reached.
func (s *Server) ProcessReading(r models.MeterReading) {
	now := s.now()
	if s.firstReading.CompareAndSwap(nil, &now) {
		s.logger.Info("first reading received - benchmark timer started", "device_id", r.DeviceID)
	}

	total := s.totalReadings.Add(1)

	if result := s.aggregator.AddReading(r.Power); result.Closed {
		w := models.WindowSum{
			Index:    result.Index,
			Size:     s.cfg.WindowSize,
			Sum:      result.Sum,
			ClosedAt: now,
		}
		s.logger.Info("power window closed",
			"window", w.Index,
			"readings", w.Size,
			"sum_watts", w.Sum,
		)
		for _, sink := range s.events {
			sink.PublishWindow(w)
		}
	}

	if !s.cfg.Quiet && total%uint64(s.cfg.LogInterval) == 0 {
		elapsed := s.elapsed()
		var rate float64
		if elapsed > 0 {
			rate = float64(total) / elapsed
		}
		s.logger.Info("processed readings",
			"total", total,
			"windows", s.aggregator.TotalWindows(),
			"active_connections", s.activeConns.Load(),
			"readings_per_second", rate,
		)
	}

	if reason, ok := detectAnomaly(r); ok {
		s.anomalies.Add(1)
		a := models.Anomaly{
			DeviceID:   r.DeviceID,
			Timestamp:  r.Timestamp,
			Power:      r.Power,
			Voltage:    r.Voltage,
			Reason:     reason,
			DetectedAt: now,
		}
		s.logger.Warn("anomaly detected",
			"device_id", a.DeviceID,
			"reason", a.Reason,
			"power", a.Power,
			"voltage", a.Voltage,
		)
		for _, sink := range s.events {
			sink.PublishAnomaly(a)
		}
	}

	if target := s.cfg.BenchmarkReadings; target > 0 && total >= target {
		s.Finalize()
	}
}

func detectAnomaly(r models.MeterReading) (string, bool) {
	switch {
	case r.Power < 0:
		return ReasonNegativePower, true
	case r.Voltage < MinVoltage || r.Voltage > MaxVoltage:
		return ReasonVoltageRange, true
	}
	return "", false
}

// Finalize completes the benchmark: it writes the run metrics to every
// metrics sink and stops accepting connections. Only the first call does
// anything, whichever target triggered it.
func (s *Server) Finalize() {
	if !s.finalized.CompareAndSwap(false, true) {
		return
	}

	m := s.benchmarkMetrics()
	s.logger.Info("benchmark complete",
		"run_id", m.RunID,
		"total_readings", m.TotalReadings,
		"total_windows", m.TotalWindows,
		"seconds", m.ElapsedSeconds,
		"throughput_rps", m.ThroughputRPS,
	)

	if err := s.writeMetrics(m); err != nil {
		s.logger.Error("failed to write benchmark metrics", "error", err)
	}

	s.stopAccepting("benchmark complete")
}

func (s *Server) benchmarkMetrics() models.BenchmarkMetrics {
	total := s.totalReadings.Load()
	elapsed := s.elapsed()

	m := models.BenchmarkMetrics{
		RunID:             uuid.NewString(),
		DeviceCount:       s.cfg.ExpectedDevices,
		ThreadCount:       s.cfg.WorkerCount,
		BenchmarkReadings: s.cfg.BenchmarkReadings,
		BenchmarkWindows:  s.cfg.BenchmarkWindows,
		TotalReadings:     total,
		TotalWindows:      s.aggregator.TotalWindows(),
		ElapsedSeconds:    elapsed,
		CompletedAt:       s.now(),
	}
	if elapsed > 0 {
		m.ThroughputRPS = float64(total) / elapsed
	}
	return m
}

func (s *Server) writeMetrics(m models.BenchmarkMetrics) error {
	var result *multierror.Error
	for _, sink := range s.metrics {
		if err := sink.WriteBenchmark(m); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// elapsed returns seconds since the first reading, or 0 before it.
func (s *Server) elapsed() float64 {
	origin := s.firstReading.Load()
	if origin == nil {
		return 0
	}
	return s.now().Sub(*origin).Seconds()
}
