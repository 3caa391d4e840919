package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/config"
)

// flags holds the command line. Only flags the user actually set
// override the loaded configuration.
type flags struct {
	set *pflag.FlagSet

	configPath        string
	port              int
	devices           int
	sumInterval       int
	benchmarkReadings uint64
	benchmarkWindows  uint64
	metricsFile       string
	threads           int
	quiet             bool
	statusAddr        string
	logLevel          string
}

// parseFlags parses args. On pflag.ErrHelp the returned flags are still
// usable for printing help.
func parseFlags(args []string) (*flags, error) {
	f := &flags{set: pflag.NewFlagSet("smart-grid-server", pflag.ContinueOnError)}
	fs := f.set

	fs.StringVar(&f.configPath, "config", "", "YAML configuration file (default $"+config.FileEnv+")")
	fs.IntVarP(&f.port, "port", "p", 8890, "TCP port to listen on")
	fs.IntVarP(&f.devices, "devices", "d", 100, "expected number of devices")
	fs.IntVarP(&f.sumInterval, "sum-interval", "s", 0, "readings per power sum window (default: devices)")
	fs.Uint64Var(&f.benchmarkReadings, "benchmark-readings", 0, "stop after this many readings (0 disables)")
	fs.Uint64Var(&f.benchmarkWindows, "benchmark-sums", 0, "stop after this many power sums (0 disables)")
	fs.StringVar(&f.metricsFile, "metrics", "", "append benchmark metrics to this file (.csv or .json)")
	fs.IntVar(&f.threads, "threads", 0, "worker threads (default: min(2*CPUs, 120))")
	fs.BoolVar(&f.quiet, "quiet", false, "suppress periodic throughput logs")
	fs.StringVar(&f.statusAddr, "status-addr", "", "serve /health and /stats on this address")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if help, _ := fs.GetBool("help"); help {
		return f, pflag.ErrHelp
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return f, nil
}

// configFile returns the --config path, falling back to the environment.
func (f *flags) configFile() string {
	if f.configPath != "" {
		return f.configPath
	}
	return os.Getenv(config.FileEnv)
}

func (f *flags) apply(cfg *config.Config) {
	fs := f.set
	if fs.Changed("port") {
		cfg.Server.Port = f.port
	}
	if fs.Changed("devices") {
		cfg.Server.ExpectedDevices = f.devices
	}
	if fs.Changed("sum-interval") {
		cfg.Server.WindowSize = f.sumInterval
	}
	if fs.Changed("benchmark-readings") {
		cfg.Server.BenchmarkReadings = f.benchmarkReadings
	}
	if fs.Changed("benchmark-sums") {
		cfg.Server.BenchmarkWindows = f.benchmarkWindows
	}
	if fs.Changed("metrics") {
		cfg.Metrics.File = f.metricsFile
	}
	if fs.Changed("threads") {
		cfg.Server.WorkerCount = f.threads
	}
	if fs.Changed("quiet") {
		cfg.Server.Quiet = f.quiet
	}
	if fs.Changed("status-addr") {
		cfg.Status.Addr = f.statusAddr
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `smart-grid-server ingests encrypted smart meter readings over TCP.

Each device keeps one connection open and sends messages framed as
"<deviceId>:<length>\n" followed by <length> bytes of ciphertext.

Usage:
  smart-grid-server [flags]

Examples:
  # Listen on the default port for 100 devices
  smart-grid-server

  # Benchmark 10k devices, stop after 1M readings and record the run
  smart-grid-server -d 10000 --benchmark-readings 1000000 --metrics runs.csv

Flags:
`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}
