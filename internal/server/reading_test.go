package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
)

func newUnstartedServer(t *testing.T, mutate func(*Options)) (*Server, *recordingSink) {
	t.Helper()

	sink := &recordingSink{}
	opts := Options{
		Config:       testConfig(),
		Logger:       testLogger(),
		EventSinks:   []EventSink{sink},
		MetricsSinks: []MetricsSink{sink},
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(srv.pool.Stop)
	return srv, sink
}

func TestDetectAnomaly(t *testing.T) {
	tests := []struct {
		name    string
		power   float64
		voltage float64
		reason  string
	}{
		{"nominal", 2000, 132.5, ""},
		{"lower bound", 2000, 100, ""},
		{"upper bound", 2000, 140, ""},
		{"overvoltage", 2000, 145, ReasonVoltageRange},
		{"undervoltage", 2000, 99.9, ReasonVoltageRange},
		{"negative power", -1, 120, ReasonNegativePower},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := detectAnomaly(models.MeterReading{Power: tt.power, Voltage: tt.voltage})
			assert.Equal(t, tt.reason != "", ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestProcessReadingWindowSum(t *testing.T) {
	srv, sink := newUnstartedServer(t, nil)

	for _, p := range []float64{100, 200, 300} {
		srv.ProcessReading(models.MeterReading{DeviceID: "meter_1", Power: p, Voltage: 120})
	}

	windows := sink.Windows()
	require.Len(t, windows, 1)
	assert.InDelta(t, 600.0, windows[0].Sum, 1e-9)
	assert.Equal(t, uint64(1), srv.Stats().TotalWindows)
	assert.Equal(t, uint64(3), srv.Stats().TotalReadings)
	assert.Empty(t, sink.Anomalies())
}

func TestProcessReadingNegativePower(t *testing.T) {
	srv, sink := newUnstartedServer(t, nil)

	srv.ProcessReading(models.MeterReading{DeviceID: "meter_9", Timestamp: 42, Power: -5, Voltage: 120})

	anomalies := sink.Anomalies()
	require.Len(t, anomalies, 1)
	assert.Equal(t, ReasonNegativePower, anomalies[0].Reason)
	assert.Equal(t, uint32(42), anomalies[0].Timestamp)
	assert.Equal(t, uint64(1), srv.Stats().Anomalies)
}

func TestFinalizeThroughput(t *testing.T) {
	srv, sink := newUnstartedServer(t, func(o *Options) { o.Config.BenchmarkReadings = 4 })

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	srv.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		srv.ProcessReading(models.MeterReading{DeviceID: "meter_1", Power: 10, Voltage: 120})
		clock = clock.Add(500 * time.Millisecond)
	}

	metrics := sink.Metrics()
	require.Len(t, metrics, 1)
	assert.InDelta(t, 1.5, metrics[0].ElapsedSeconds, 1e-9)
	assert.InDelta(t, 4/1.5, metrics[0].ThroughputRPS, 1e-9)
	assert.Equal(t, uint64(1), metrics[0].TotalWindows)
	assert.Equal(t, start.Add(1500*time.Millisecond), metrics[0].CompletedAt)

	select {
	case <-srv.Done():
	default:
		t.Fatal("finalize did not stop accepting")
	}
}

func TestFinalizeWithoutReadings(t *testing.T) {
	srv, sink := newUnstartedServer(t, nil)

	srv.Finalize()

	metrics := sink.Metrics()
	require.Len(t, metrics, 1)
	assert.Zero(t, metrics[0].ElapsedSeconds)
	assert.Zero(t, metrics[0].ThroughputRPS)
}

func TestFinalizeConcurrentCallsWriteOnce(t *testing.T) {
	srv, sink := newUnstartedServer(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.Finalize()
		}()
	}
	wg.Wait()

	assert.Len(t, sink.Metrics(), 1)
}

func TestMultipleMetricsSinksAllWritten(t *testing.T) {
	failing := &recordingSink{err: assert.AnError}
	srv, sink := newUnstartedServer(t, func(o *Options) {
		o.MetricsSinks = append([]MetricsSink{failing}, o.MetricsSinks...)
	})

	err := srv.writeMetrics(models.BenchmarkMetrics{RunID: "run"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, failing.Metrics(), 1)
	assert.Len(t, sink.Metrics(), 1)
}

func TestBenchmarkThreadCountZeroWhenAutoSized(t *testing.T) {
	srv, sink := newUnstartedServer(t, func(o *Options) { o.Config.WorkerCount = 0 })

	srv.Finalize()

	metrics := sink.Metrics()
	require.Len(t, metrics, 1)
	assert.Zero(t, metrics[0].ThreadCount)
	assert.Positive(t, srv.Stats().Workers)
}

func TestBenchmarkThreadCountExplicit(t *testing.T) {
	srv, sink := newUnstartedServer(t, func(o *Options) { o.Config.WorkerCount = 3 })

	srv.Finalize()

	metrics := sink.Metrics()
	require.Len(t, metrics, 1)
	assert.Equal(t, 3, metrics[0].ThreadCount)
	assert.Equal(t, 3, srv.Stats().Workers)
}
