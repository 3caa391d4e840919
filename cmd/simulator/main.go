// Command simulator drives the ingest server with simulated smart meters.
// Each device holds one persistent connection and sends an encrypted
// reading every interval.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/crypto"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/decoder"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/logging"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/wire"
)

const dialAttempts = 3

type options struct {
	host     string
	port     int
	devices  int
	interval time.Duration
	count    int
	logLevel string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	fs := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	fs.StringVar(&opts.host, "host", "127.0.0.1", "server host")
	fs.IntVarP(&opts.port, "port", "p", 8890, "server port")
	fs.IntVarP(&opts.devices, "devices", "d", 100, "number of simulated devices")
	fs.DurationVarP(&opts.interval, "interval", "i", time.Second, "time between readings per device")
	fs.IntVarP(&opts.count, "count", "n", 0, "readings per device (0 runs until interrupted)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.devices < 1 {
		return fmt.Errorf("devices must be at least 1, got %d", opts.devices)
	}

	logger, err := logging.New(config.LogConfig{Level: opts.logLevel, Format: "text"})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := &simulator{
		addr:   net.JoinHostPort(opts.host, fmt.Sprint(opts.port)),
		opts:   opts,
		keys:   crypto.NewKeyCache(),
		logger: logger,
	}
	return sim.run(ctx)
}

type simulator struct {
	addr   string
	opts   options
	keys   *crypto.KeyCache
	logger *slog.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

func (s *simulator) run(ctx context.Context) error {
	s.logger.Info("starting simulation",
		"devices", s.opts.devices,
		"server", s.addr,
		"interval", s.opts.interval,
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.devices; i++ {
		g.Go(func() error {
			return s.runDevice(gctx, i)
		})
	}

	err := g.Wait()
	elapsed := time.Since(start).Seconds()
	sent := s.sent.Load()
	s.logger.Info("simulation finished",
		"sent", sent,
		"failed_devices", s.failed.Load(),
		"seconds", elapsed,
		"messages_per_second", float64(sent)/elapsed,
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runDevice sends readings for one device over a single connection. A
// device whose connection fails stops; the rest keep running.
func (s *simulator) runDevice(ctx context.Context, index int) error {
	id := deviceID(index)
	// Derive before connecting so the first reading is not delayed.
	s.keys.GetOrCreateKey(id)

	conn, err := s.dial(ctx)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("device could not connect", "device_id", id, "error", err)
		return nil
	}
	defer conn.Close()

	ticker := time.NewTicker(s.opts.interval)
	defer ticker.Stop()

	gen := newGenerator(index)
	for n := 1; s.opts.count == 0 || n <= s.opts.count; n++ {
		reading := gen.next(time.Now())
		ciphertext, err := decoder.Encrypt(s.keys, id, reading)
		if err != nil {
			return err
		}
		if err := wire.WriteFrame(conn, id, ciphertext); err != nil {
			s.failed.Add(1)
			s.logger.Warn("device connection lost", "device_id", id, "sent", n-1, "error", err)
			return nil
		}
		s.sent.Add(1)

		if n%20 == 0 {
			s.logger.Debug("device progress", "device_id", id, "sent", n, "power", reading.Power)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *simulator) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	delay := 100 * time.Millisecond

	var err error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		var conn net.Conn
		dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		conn, err = d.DialContext(dialCtx, "tcp", s.addr)
		cancel()
		if err == nil {
			return conn, nil
		}

		if attempt < dialAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, err
}
