package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/api"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/influxdb"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/kafka"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/logging"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(f.set)
			return nil
		}
		return err
	}

	cfg, err := config.LoadFile(f.configFile())
	if err != nil {
		return err
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// Sinks close after the server has drained so late windows still land.
	defer sinks.close(logger)

	srv, err := server.New(server.Options{
		Config:       cfg.Server,
		Logger:       logger,
		EventSinks:   sinks.events,
		MetricsSinks: sinks.metrics,
	})
	if err != nil {
		return err
	}

	if err := srv.Listen(ctx); err != nil {
		srv.Shutdown(context.Background())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})

	var status *http.Server
	if cfg.Status.Addr != "" {
		status = api.NewHTTPServer(cfg.Status.Addr, srv, os.Stdout)
		g.Go(func() error {
			logger.Info("status endpoint listening", "addr", cfg.Status.Addr)
			if err := status.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status endpoint: %w", err)
			}
			return nil
		})
	}

	select {
	case <-gctx.Done():
		logger.Info("interrupted, shutting down")
	case <-srv.Done():
		logger.Info("server stopped accepting, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown timed out, connections were closed", "error", err)
	}
	if status != nil {
		if err := status.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status endpoint shutdown failed", "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats := srv.Stats()
	logger.Info("shutdown complete",
		"total_readings", stats.TotalReadings,
		"total_windows", stats.TotalWindows,
		"dropped_messages", stats.DroppedMessages,
		"anomalies", stats.Anomalies,
	)
	return nil
}

// sinks collects the optional outputs the server publishes to.
type sinks struct {
	events  []server.EventSink
	metrics []server.MetricsSink

	producer *kafka.Producer
	influx   *influxdb.Client
}

func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sinks, error) {
	s := &sinks{}

	if cfg.Metrics.File != "" {
		s.metrics = append(s.metrics, metrics.NewFileSink(cfg.Metrics.File))
		logger.Info("benchmark metrics enabled", "file", cfg.Metrics.File)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.NewClient(ctx, cfg.InfluxDB, logger)
		if err != nil {
			return nil, err
		}
		s.influx = client
		s.events = append(s.events, client)
		s.metrics = append(s.metrics, client)
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			s.close(logger)
			return nil, err
		}
		s.producer = producer
		s.events = append(s.events, producer)
	}

	return s, nil
}

func (s *sinks) close(logger *slog.Logger) {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			logger.Error("closing kafka producer", "error", err)
		}
	}
	if s.influx != nil {
		logger.Info("closing influxdb client")
		s.influx.Close()
	}
}
