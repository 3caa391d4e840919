package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/crypto"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/decoder"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/processor"
)

const (
	// maxAcceptDelay caps the backoff between failed accepts.
	maxAcceptDelay = time.Second

	// maxBacklog caps the accept backlog sized from the device count.
	maxBacklog = 1024
)

// EventSink receives closed windows and anomalies as they happen. Calls
// come from many workers at once.
type EventSink interface {
	PublishWindow(models.WindowSum)
	PublishAnomaly(models.Anomaly)
}

// MetricsSink receives the benchmark record when a benchmark completes.
type MetricsSink interface {
	WriteBenchmark(models.BenchmarkMetrics) error
}

// Options configures a Server.
type Options struct {
	Config       config.ServerConfig
	Logger       *slog.Logger
	EventSinks   []EventSink
	MetricsSinks []MetricsSink
}

// Server is the ingest orchestrator. It owns the listener, the shared key
// cache and aggregator, the worker pool and the global counters.
type Server struct {
	cfg        config.ServerConfig
	logger     *slog.Logger
	keys       *crypto.KeyCache
	decoder    *decoder.Decoder
	aggregator *processor.Aggregator
	pool       *processor.Pool
	events     []EventSink
	metrics    []MetricsSink
	now        func() time.Time

	listenMu sync.Mutex
	listener net.Listener

	totalReadings atomic.Uint64
	acceptedConns atomic.Uint64
	activeConns   atomic.Int64
	dropped       atomic.Uint64
	anomalies     atomic.Uint64

	// firstReading is the benchmark clock origin, set by the first
	// successfully decoded reading.
	firstReading atomic.Pointer[time.Time]

	// done gates the accept loop and all further message processing.
	done     atomic.Bool
	doneCh   chan struct{}
	doneOnce sync.Once

	// finalized is the complete-once gate for the benchmark.
	finalized atomic.Bool

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// New creates a server and starts its worker pool. Call Shutdown to stop
// the pool even if the server never listens.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg.WindowSize == 0 {
		cfg.WindowSize = cfg.ExpectedDevices
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = max(100, cfg.ExpectedDevices/100)
	}

	aggregator, err := processor.NewAggregator(cfg.WindowSize)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keys := crypto.NewKeyCache()
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		keys:       keys,
		decoder:    decoder.New(keys),
		aggregator: aggregator,
		pool:       processor.NewPool(cfg.WorkerCount, cfg.QueueSize),
		events:     opts.EventSinks,
		metrics:    opts.MetricsSinks,
		now:        time.Now,
		doneCh:     make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}

	if cfg.BenchmarkWindows > 0 {
		aggregator.SetBenchmarkTarget(cfg.BenchmarkWindows, s.Finalize)
	}

	logger.Info("power aggregator initialized",
		"window_size", cfg.WindowSize,
		"workers", s.pool.Workers(),
		"benchmark_readings", cfg.BenchmarkReadings,
		"benchmark_windows", cfg.BenchmarkWindows,
	)
	return s, nil
}

// Listen binds the server socket. A failure here means the server cannot
// start.
func (s *Server) Listen(ctx context.Context) error {
	if s.done.Load() {
		return errors.New("server is shut down")
	}

	addr := s.cfg.ListenAddr()
	ln, err := listenTCP(ctx, addr, acceptBacklog(s.cfg.ExpectedDevices))
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listenMu.Lock()
	if s.done.Load() {
		// Stopped while binding; stopAccepting saw no listener to close.
		s.listenMu.Unlock()
		ln.Close()
		return errors.New("server is shut down")
	}
	s.listener = ln
	s.listenMu.Unlock()

	workers := "auto"
	if s.cfg.WorkerCount > 0 {
		workers = fmt.Sprint(s.cfg.WorkerCount)
	}
	s.logger.Info("smart grid server listening",
		"addr", ln.Addr().String(),
		"expected_devices", s.cfg.ExpectedDevices,
		"threads", workers,
	)
	return nil
}

// acceptBacklog sizes the pending-connection queue so a whole fleet can
// connect at once, up to maxBacklog.
func acceptBacklog(devices int) int {
	return max(1, min(devices, maxBacklog))
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until the server stops accepting, either
// because a benchmark completed, Shutdown was called, or ctx was canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.listenMu.Lock()
	ln := s.listener
	s.listenMu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	go func() {
		select {
		case <-ctx.Done():
			s.stopAccepting("context canceled")
		case <-s.doneCh:
		}
	}()

	s.logger.Info("server running - waiting for connections")

	var delay time.Duration
	for !s.done.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if s.done.Load() || errors.Is(err, net.ErrClosed) {
				break
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			s.logger.Error("accept failed", "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if s.done.Load() {
			conn.Close()
			break
		}

		s.trackConn(conn)
		if !s.pool.Submit(func() { s.handleConn(conn) }) {
			s.releaseConn(conn)
		}
	}

	s.logger.Info("server stopped accepting connections")
	return nil
}

// Done is closed once the server stops accepting connections.
func (s *Server) Done() <-chan struct{} {
	return s.doneCh
}

// Shutdown stops accepting connections and waits for in-flight
// connections to finish. If ctx expires first, the remaining connections
// are closed and ctx's error is returned once the workers exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopAccepting("shutdown")

	drained := make(chan struct{})
	go func() {
		s.pool.Stop()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Info("all connections drained")
		return nil
	case <-ctx.Done():
		n := s.closeAllConns()
		s.logger.Warn("drain timed out, closing connections", "connections", n)
		<-drained
		return ctx.Err()
	}
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() models.Stats {
	total := s.totalReadings.Load()
	elapsed := s.elapsed()

	stats := models.Stats{
		TotalReadings:     total,
		TotalWindows:      s.aggregator.TotalWindows(),
		ActiveConnections: s.activeConns.Load(),
		AcceptedConns:     s.acceptedConns.Load(),
		DroppedMessages:   s.dropped.Load(),
		Anomalies:         s.anomalies.Load(),
		KnownDevices:      s.keys.Len(),
		Workers:           s.pool.Workers(),
		ElapsedSeconds:    elapsed,
		ShuttingDown:      s.done.Load(),
		BenchmarkComplete: s.finalized.Load(),
	}
	if elapsed > 0 {
		stats.ThroughputRPS = float64(total) / elapsed
	}
	return stats
}

// stopAccepting sets the shutdown flag and closes the listener so the
// accept loop exits. Only the first call has any effect.
func (s *Server) stopAccepting(reason string) {
	s.done.Store(true)
	s.doneOnce.Do(func() {
		s.listenMu.Lock()
		ln := s.listener
		s.listenMu.Unlock()

		if ln != nil {
			ln.Close()
		}
		close(s.doneCh)
		s.logger.Info("stopping accept loop", "reason", reason)
	})
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()

	s.acceptedConns.Add(1)
	s.activeConns.Add(1)
}

func (s *Server) releaseConn(conn net.Conn) {
	conn.Close()

	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()

	s.activeConns.Add(-1)
}

func (s *Server) closeAllConns() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	for conn := range s.conns {
		conn.Close()
	}
	return len(s.conns)
}
