package processor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// WindowResult reports the outcome of adding one reading. Sum and Index are
// set only when the reading closed a window; Index counts windows from 1.
type WindowResult struct {
	Closed bool
	Sum    float64
	Index  uint64
}

// Aggregator sums power readings in fixed-size windows
type Aggregator struct {
	mu         sync.Mutex
	windowSize int
	readings   []float64

	// totalWindows is only written under mu but may be read without it,
	// including from the benchmark callback which runs under mu.
	totalWindows atomic.Uint64

	benchmarkTarget uint64
	onBenchmark     func()
	benchmarkFired  bool
}

// NewAggregator creates an aggregator that closes a window every
// windowSize readings
func NewAggregator(windowSize int) (*Aggregator, error) {
	if windowSize < 1 {
		return nil, fmt.Errorf("window size must be at least 1, got %d", windowSize)
	}

	return &Aggregator{
		windowSize: windowSize,
		readings:   make([]float64, 0, windowSize),
	}, nil
}

// SetBenchmarkTarget registers callback to run once, when the total number
// of closed windows first reaches target. It must be called before readings
// start flowing. A zero target disables the callback.
func (a *Aggregator) SetBenchmarkTarget(target uint64, callback func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.benchmarkTarget = target
	a.onBenchmark = callback
}

// AddReading adds one power value. When the window fills, the sum is
// computed, the buffer is reset and the window counter advances in the same
// critical section. A due benchmark callback also runs inside it, so exactly
// one caller triggers it and it sees the reset state.
func (a *Aggregator) AddReading(power float64) WindowResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.readings = append(a.readings, power)
	if len(a.readings) < a.windowSize {
		return WindowResult{}
	}

	result := a.closeWindowLocked()
	a.checkBenchmarkLocked(result.Index)
	return result
}

// TotalWindows returns the number of windows closed so far
func (a *Aggregator) TotalWindows() uint64 {
	return a.totalWindows.Load()
}

// WindowSize returns the configured window size
func (a *Aggregator) WindowSize() int {
	return a.windowSize
}

// Pending returns the number of readings in the open window
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.readings)
}

func (a *Aggregator) closeWindowLocked() WindowResult {
	var sum float64
	for _, p := range a.readings {
		sum += p
	}

	a.readings = a.readings[:0]
	index := a.totalWindows.Add(1)

	return WindowResult{Closed: true, Sum: sum, Index: index}
}

func (a *Aggregator) checkBenchmarkLocked(total uint64) {
	if a.benchmarkFired || a.benchmarkTarget == 0 || a.onBenchmark == nil {
		return
	}
	if total >= a.benchmarkTarget {
		a.benchmarkFired = true
		a.onBenchmark()
	}
}
