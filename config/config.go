package config

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/pkg/tlsutil"
)

// Table back ends.
const (
	BackendNATS  = "nats"
	BackendRedis = "redis"
)

// Config is the process configuration of netpublish.
type Config struct {
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" toml:"pipeline"`
	Table    TableConfig    `json:"table" yaml:"table" toml:"table"`
	NATS     NATSConfig     `json:"nats" yaml:"nats" toml:"nats"`
	Redis    RedisConfig    `json:"redis" yaml:"redis" toml:"redis"`
	HTTP     HTTPConfig     `json:"http" yaml:"http" toml:"http"`
	ROS      ROSConfig      `json:"ros" yaml:"ros" toml:"ros"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" toml:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"` // json or text
}

// PipelineConfig controls the runner.
type PipelineConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval" toml:"interval"`
	// Headless hands start and stop to the table GRIP/run key.
	Headless bool   `json:"headless" yaml:"headless" toml:"headless"`
	Project  string `json:"project,omitempty" yaml:"project,omitempty" toml:"project,omitempty"`
}

// TableConfig configures the table back end.
type TableConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
	Backend      string        `json:"backend" yaml:"backend" toml:"backend"`
	Bucket       string        `json:"bucket" yaml:"bucket" toml:"bucket"`
	Prefix       string        `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	QueueSize    int           `json:"queue_size" yaml:"queue_size" toml:"queue_size"`
}

// NATSConfig holds the NATS connection settings shared by the table and
// robotics bus back ends.
type NATSConfig struct {
	URLs          []string      `json:"urls" yaml:"urls" toml:"urls"`
	Name          string        `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty" toml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"`
	MaxReconnects int           `json:"max_reconnects" yaml:"max_reconnects" toml:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait" yaml:"reconnect_wait" toml:"reconnect_wait"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls" toml:"tls"`
}

// RedisConfig configures the Redis table store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db" toml:"db"`
}

// HTTPConfig configures the HTTP back end server.
type HTTPConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr            string        `json:"addr" yaml:"addr" toml:"addr"`
	AllowedOrigins  []string      `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
	StreamRate      float64       `json:"stream_rate" yaml:"stream_rate" toml:"stream_rate"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	TLS tlsutil.ServerConfig `json:"tls" yaml:"tls" toml:"tls"`
}

// ROSConfig configures the robotics bus back end.
type ROSConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	Rate    float64 `json:"rate" yaml:"rate" toml:"rate"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Port    int    `json:"port" yaml:"port" toml:"port"`
	Path    string `json:"path" yaml:"path" toml:"path"`
}

// DefaultConfig returns the configuration used when no file sets a value.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Pipeline: PipelineConfig{
			Interval: 100 * time.Millisecond,
		},
		Table: TableConfig{
			Enabled:      true,
			Backend:      BackendNATS,
			Bucket:       "grip_table",
			PollInterval: 250 * time.Millisecond,
			QueueSize:    256,
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			Name:          "netpublish",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		HTTP: HTTPConfig{
			Enabled:         true,
			Addr:            ":2084",
			StreamRate:      10,
			ShutdownTimeout: 5 * time.Second,
		},
		ROS:     ROSConfig{Rate: 10},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
	bucketName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Validate checks the configuration for values no back end can work with.
func (c *Config) Validate() error {
	if c == nil {
		return invalid("config", "config is nil")
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		return invalid("log", "unknown level %q", c.Log.Level)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return invalid("log", "unknown format %q", c.Log.Format)
	}
	if c.Pipeline.Interval <= 0 {
		return invalid("pipeline", "interval must be positive, got %s", c.Pipeline.Interval)
	}
	if c.Table.Enabled {
		if err := c.validateTable(); err != nil {
			return err
		}
	}
	if c.UsesNATS() {
		if len(c.NATS.URLs) == 0 {
			return invalid("nats", "at least one url is required")
		}
		tls := c.NATS.TLS
		if tls.Enabled && (tls.CertFile == "") != (tls.KeyFile == "") {
			return invalid("nats", "tls cert_file and key_file must be set together")
		}
		if tls.Enabled && !tlsutil.ValidVersion(tls.MinVersion) {
			return invalid("nats", "unknown tls min_version %q", tls.MinVersion)
		}
	}
	if c.HTTP.Enabled {
		if c.HTTP.Addr == "" {
			return invalid("http", "addr is required")
		}
		if !positive(c.HTTP.StreamRate) {
			return invalid("http", "stream_rate must be positive, got %v", c.HTTP.StreamRate)
		}
		if tls := c.HTTP.TLS; tls.Enabled {
			if tls.CertFile == "" || tls.KeyFile == "" {
				return invalid("http", "tls needs cert_file and key_file")
			}
			if !tlsutil.ValidVersion(tls.MinVersion) {
				return invalid("http", "unknown tls min_version %q", tls.MinVersion)
			}
		}
	}
	if c.ROS.Enabled && !positive(c.ROS.Rate) {
		return invalid("ros", "rate must be positive, got %v", c.ROS.Rate)
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return invalid("metrics", "port %d out of range", c.Metrics.Port)
	}
	return nil
}

func (c *Config) validateTable() error {
	switch c.Table.Backend {
	case BackendNATS:
		if !bucketName.MatchString(c.Table.Bucket) {
			return invalid("table", "invalid bucket name %q", c.Table.Bucket)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return invalid("redis", "addr is required by the redis table back end")
		}
		if c.Table.PollInterval <= 0 {
			return invalid("table", "poll_interval must be positive, got %s", c.Table.PollInterval)
		}
	default:
		return invalid("table", "unknown backend %q", c.Table.Backend)
	}
	if c.Table.QueueSize < 1 {
		return invalid("table", "queue_size must be at least 1, got %d", c.Table.QueueSize)
	}
	return nil
}

// UsesNATS reports whether any enabled back end needs a NATS connection.
func (c *Config) UsesNATS() bool {
	return c.ROS.Enabled || (c.Table.Enabled && c.Table.Backend == BackendNATS)
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func invalid(section, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errors.WrapInvalid(fmt.Errorf("%w: %s: %s", errors.ErrInvalidConfig, section, msg),
		"Config", "Validate", "validate "+section)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.NATS.URLs = slices.Clone(c.NATS.URLs)
	clone.HTTP.AllowedOrigins = slices.Clone(c.HTTP.AllowedOrigins)
	clone.NATS.TLS = c.NATS.TLS.Clone()
	clone.HTTP.TLS = c.HTTP.TLS.Clone()
	return &clone
}

// String renders the configuration as JSON with credentials masked.
func (c *Config) String() string {
	redacted := c.Clone()
	for _, secret := range []*string{&redacted.NATS.Password, &redacted.NATS.Token, &redacted.Redis.Password} {
		if *secret != "" {
			*secret = "***"
		}
	}
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// SafeConfig guards a configuration shared between goroutines.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg. A nil cfg is replaced with the defaults.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SafeConfig{config: cfg.Clone()}
}

// Get returns a copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update replaces the configuration after validating it.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "update config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}
