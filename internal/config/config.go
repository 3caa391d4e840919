package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at an optional YAML file
const FileEnv = "GRIDSERVER_CONFIG"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Status   StatusConfig   `yaml:"status"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds ingest server configuration
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ExpectedDevices   int           `yaml:"expected_devices"`
	WindowSize        int           `yaml:"window_size"`
	BenchmarkReadings uint64        `yaml:"benchmark_readings"`
	BenchmarkWindows  uint64        `yaml:"benchmark_windows"`
	WorkerCount       int           `yaml:"worker_count"`
	QueueSize         int           `yaml:"queue_size"`
	LogInterval       int           `yaml:"log_interval"`
	Quiet             bool          `yaml:"quiet"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig holds benchmark metrics output configuration
type MetricsConfig struct {
	File string `yaml:"file"`
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Org           string        `yaml:"org"`
	Token         string        `yaml:"token"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// StatusConfig holds the status HTTP endpoint configuration
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8890,
			ExpectedDevices: 100,
			QueueSize:       4096,
			ShutdownTimeout: 30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			Topic:    "smart-grid-windows",
			ClientID: "smart-grid-ingest-server",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "smart-grid",
			Bucket:        "smart-grid-monitor",
			BatchSize:     5000,
			FlushInterval: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the defaults, then the YAML file named by
// GRIDSERVER_CONFIG if set, then environment variables
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("SERVER_HOST", s.Host)
	s.Port = getEnvInt("SERVER_PORT", s.Port)
	s.ExpectedDevices = getEnvInt("SERVER_EXPECTED_DEVICES", s.ExpectedDevices)
	s.WindowSize = getEnvInt("SERVER_WINDOW_SIZE", s.WindowSize)
	s.BenchmarkReadings = getEnvUint("SERVER_BENCHMARK_READINGS", s.BenchmarkReadings)
	s.BenchmarkWindows = getEnvUint("SERVER_BENCHMARK_WINDOWS", s.BenchmarkWindows)
	s.WorkerCount = getEnvInt("SERVER_WORKER_COUNT", s.WorkerCount)
	s.QueueSize = getEnvInt("SERVER_QUEUE_SIZE", s.QueueSize)
	s.LogInterval = getEnvInt("SERVER_LOG_INTERVAL", s.LogInterval)
	s.Quiet = getEnvBool("SERVER_QUIET", s.Quiet)
	s.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	c.Metrics.File = getEnv("METRICS_FILE", c.Metrics.File)

	k := &c.Kafka
	k.Enabled = getEnvBool("KAFKA_ENABLED", k.Enabled)
	k.Brokers = getEnvStringSlice("KAFKA_BROKERS", k.Brokers)
	k.Topic = getEnv("KAFKA_TOPIC", k.Topic)
	k.ClientID = getEnv("KAFKA_CLIENT_ID", k.ClientID)

	i := &c.InfluxDB
	i.Enabled = getEnvBool("INFLUXDB_ENABLED", i.Enabled)
	i.URL = getEnv("INFLUXDB_URL", i.URL)
	i.Org = getEnv("INFLUXDB_ORG", i.Org)
	i.Token = getEnv("INFLUX_TOKEN", i.Token)
	i.Bucket = getEnv("INFLUXDB_BUCKET", i.Bucket)
	i.BatchSize = getEnvInt("INFLUXDB_BATCH_SIZE", i.BatchSize)
	i.FlushInterval = getEnvDuration("INFLUXDB_FLUSH_INTERVAL", i.FlushInterval)

	c.Status.Addr = getEnv("STATUS_ADDR", c.Status.Addr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate checks the configuration and fills in values derived from
// other settings: the window size defaults to the expected device count
// and the log interval to max(100, devices/100).
func (c *Config) Validate() error {
	s := &c.Server
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.ExpectedDevices < 1 {
		return fmt.Errorf("expected devices must be at least 1, got %d", s.ExpectedDevices)
	}
	if s.WindowSize == 0 {
		s.WindowSize = s.ExpectedDevices
	}
	if s.WindowSize < 1 {
		return fmt.Errorf("window size must be at least 1, got %d", s.WindowSize)
	}
	if s.WorkerCount < 0 {
		return fmt.Errorf("worker count must not be negative, got %d", s.WorkerCount)
	}
	if s.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative, got %d", s.QueueSize)
	}
	if s.LogInterval == 0 {
		s.LogInterval = max(100, s.ExpectedDevices/100)
	}
	if s.LogInterval < 1 {
		return fmt.Errorf("log interval must be at least 1, got %d", s.LogInterval)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka enabled without brokers")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka enabled without a topic")
		}
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		return errors.New("influxdb enabled without a url")
	}
	return nil
}

// ListenAddr returns the host:port the ingest server binds
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value, exists := os.LookupEnv(key); exists {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.Split(value, ",")
	}
	return defaultValue
}
