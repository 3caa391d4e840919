// Package metrics writes the benchmark completion record to a local file.
package metrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
)

// TimestampLayout formats the completion time in CSV records
const TimestampLayout = "2006-01-02 15:04:05"

var csvHeader = []string{
	"device_count",
	"thread_count",
	"benchmark_target",
	"benchmark_sum_target",
	"total_readings",
	"total_sums",
	"seconds",
	"throughput_rps",
	"timestamp",
}

// FileSink appends benchmark records to a file. Paths ending in ".json"
// get one JSON object per line; anything else gets CSV with a header row
// written when the file is new or empty.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink for path
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the output file path
func (s *FileSink) Path() string {
	return s.path
}

// WriteBenchmark appends one record
func (s *FileSink) WriteBenchmark(m models.BenchmarkMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening metrics file: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(s.path), ".json") {
		if err := json.NewEncoder(f).Encode(m); err != nil {
			return fmt.Errorf("writing metrics record: %w", err)
		}
		return f.Sync()
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat metrics file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing metrics header: %w", err)
		}
	}
	if err := w.Write(csvRecord(m)); err != nil {
		return fmt.Errorf("writing metrics record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing metrics record: %w", err)
	}
	return f.Sync()
}

func csvRecord(m models.BenchmarkMetrics) []string {
	return []string{
		strconv.Itoa(m.DeviceCount),
		strconv.Itoa(m.ThreadCount),
		strconv.FormatUint(m.BenchmarkReadings, 10),
		strconv.FormatUint(m.BenchmarkWindows, 10),
		strconv.FormatUint(m.TotalReadings, 10),
		strconv.FormatUint(m.TotalWindows, 10),
		strconv.FormatFloat(m.ElapsedSeconds, 'f', 6, 64),
		strconv.FormatFloat(m.ThroughputRPS, 'f', 2, 64),
		m.CompletedAt.Local().Format(TimestampLayout),
	}
}
