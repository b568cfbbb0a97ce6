// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Record kinds configured by this package. They match tracking.Kind
// values.
const (
	KindEnemy = "enemy"
	KindFate  = "fate"
)

// Sink selects where batches are uploaded.
type Sink string

const (
	SinkHTTP  Sink = "http"
	SinkRedis Sink = "redis"
)

// DefaultAPIURL is the collection API base URL.
const DefaultAPIURL = "https://web.xivforays.com/api/forays/"

// Config is the agent configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Crowdsource is the user's consent to upload data. Nothing is
	// sampled or sent while it is false.
	Crowdsource bool `yaml:"crowdsource"`

	API   APIConfig   `yaml:"api"`
	Sink  Sink        `yaml:"sink"`
	Redis RedisConfig `yaml:"redis"`

	Enemies KindConfig `yaml:"enemies"`
	Fates   KindConfig `yaml:"fates"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Host      HostConfig      `yaml:"host"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// EnvironmentOverrides contains per-environment overrides, applied
	// after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the fields that can be overridden per
// environment. Zero values do not override.
type ConfigOverrides struct {
	Crowdsource *bool          `yaml:"crowdsource,omitempty"`
	API         *APIConfig     `yaml:"api,omitempty"`
	Sink        Sink           `yaml:"sink,omitempty"`
	Redis       *RedisConfig   `yaml:"redis,omitempty"`
	Metrics     *MetricsConfig `yaml:"metrics,omitempty"`
}

// APIConfig configures the HTTP sink.
type APIConfig struct {
	// URL is the base URL; endpoints are joined onto it.
	URL string `yaml:"url"`

	// Key is sent as X-API-Key. Usually "${FORAYS_API_KEY}".
	Key string `yaml:"key"`

	// Encoding is the request body format: json or cbor.
	Encoding string `yaml:"encoding"`

	// Compression is the request Content-Encoding: none, zstd, or lz4.
	Compression string `yaml:"compression"`

	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond and Burst bound the request rate across all
	// kinds. Zero RequestsPerSecond disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// Endpoints maps a record kind to its path under URL.
	Endpoints map[string]string `yaml:"endpoints"`
}

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// StreamPrefix is prepended to the kind to name the stream.
	StreamPrefix string `yaml:"stream_prefix"`

	// MaxLen caps each stream approximately. Zero means uncapped.
	MaxLen int64 `yaml:"max_len"`
}

// KindConfig configures sampling and upload for one record kind.
type KindConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	UploadInterval time.Duration `yaml:"upload_interval"`
	QueueCapacity  int           `yaml:"queue_capacity"`

	// MovementThreshold is the straight-line distance an entity must
	// move to be re-reported.
	MovementThreshold float64 `yaml:"movement_threshold"`
}

// SchedulerConfig configures the task scheduler.
type SchedulerConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// HostConfig configures the simulated host the binary drives.
type HostConfig struct {
	// FrameInterval is the host frame period. Primary tasks run at
	// most once per frame.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// Scenario is the JSONC scenario file replayed as world state.
	Scenario string `yaml:"scenario"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address for /metrics. Empty disables the server.
	Listen string `yaml:"listen"`
}

// Default returns the default configuration, used as the base before
// the config file is merged over it.
func Default() *Config {
	return &Config{
		Environment: Development,
		API: APIConfig{
			URL:         DefaultAPIURL,
			Encoding:    "json",
			Compression: "none",
			Timeout:     10 * time.Second,
			Burst:       1,
			Endpoints: map[string]string{
				KindEnemy: "enemyposition",
				KindFate:  "fateended",
			},
		},
		Sink: SinkHTTP,
		Redis: RedisConfig{
			StreamPrefix: "forays:",
			MaxLen:       10000,
		},
		Enemies: KindConfig{
			Enabled:           true,
			SampleInterval:    5 * time.Second,
			UploadInterval:    3 * time.Second,
			QueueCapacity:     10,
			MovementThreshold: 5,
		},
		Fates: KindConfig{
			Enabled:           false,
			SampleInterval:    500 * time.Millisecond,
			UploadInterval:    2500 * time.Millisecond,
			QueueCapacity:     10,
			MovementThreshold: 5,
		},
		Scheduler: SchedulerConfig{
			ShutdownTimeout: 5 * time.Second,
		},
		Host: HostConfig{
			FrameInterval: 100 * time.Millisecond,
		},
	}
}

// Load loads configuration from the FORAYS_CONFIG environment
// variable. If it is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("FORAYS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FORAYS_CONFIG environment variable not set; " +
			"set it to the path of your forays.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// Default, with environment overrides applied and variables expanded.
// The result is not validated.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Crowdsource != nil {
		c.Crowdsource = *overrides.Crowdsource
	}
	if overrides.Sink != "" {
		c.Sink = overrides.Sink
	}

	if api := overrides.API; api != nil {
		if api.URL != "" {
			c.API.URL = api.URL
		}
		if api.Key != "" {
			c.API.Key = api.Key
		}
		if api.Encoding != "" {
			c.API.Encoding = api.Encoding
		}
		if api.Compression != "" {
			c.API.Compression = api.Compression
		}
		if api.Timeout != 0 {
			c.API.Timeout = api.Timeout
		}
		if api.RequestsPerSecond != 0 {
			c.API.RequestsPerSecond = api.RequestsPerSecond
		}
		if api.Burst != 0 {
			c.API.Burst = api.Burst
		}
		for kind, endpoint := range api.Endpoints {
			c.API.Endpoints[kind] = endpoint
		}
	}

	if redis := overrides.Redis; redis != nil {
		if redis.Addr != "" {
			c.Redis.Addr = redis.Addr
		}
		if redis.Password != "" {
			c.Redis.Password = redis.Password
		}
		if redis.DB != 0 {
			c.Redis.DB = redis.DB
		}
		if redis.StreamPrefix != "" {
			c.Redis.StreamPrefix = redis.StreamPrefix
		}
		if redis.MaxLen != 0 {
			c.Redis.MaxLen = redis.MaxLen
		}
	}

	if overrides.Metrics != nil && overrides.Metrics.Listen != "" {
		c.Metrics.Listen = overrides.Metrics.Listen
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.API.URL = expandVars(c.API.URL, vars)
	c.API.Key = expandVars(c.API.Key, vars)
	c.Redis.Addr = expandVars(c.Redis.Addr, vars)
	c.Redis.Password = expandVars(c.Redis.Password, vars)
	c.Host.Scenario = expandVars(c.Host.Scenario, vars)
	c.Metrics.Listen = expandVars(c.Metrics.Listen, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Kind returns the configuration for a record kind. The boolean is
// false for unknown kinds.
func (c *Config) Kind(kind string) (KindConfig, bool) {
	switch kind {
	case KindEnemy:
		return c.Enemies, true
	case KindFate:
		return c.Fates, true
	default:
		return KindConfig{}, false
	}
}

// Enabled reports whether kind should be sampled and uploaded: the
// user has consented and the kind is switched on.
func (c *Config) Enabled(kind string) bool {
	kindConfig, ok := c.Kind(kind)
	return ok && c.Crowdsource && kindConfig.Enabled
}

// Endpoint returns the API path for kind, or kind itself when no
// endpoint is configured.
func (c *Config) Endpoint(kind string) string {
	if endpoint, ok := c.API.Endpoints[kind]; ok && endpoint != "" {
		return endpoint
	}
	return kind
}

var (
	encodings    = []string{"json", "cbor"}
	compressions = []string{"none", "zstd", "lz4"}
)

// Validate checks the configuration, reporting every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	switch c.Sink {
	case SinkHTTP:
		if c.API.URL == "" {
			errs = append(errs, errors.New("api.url is required for the http sink"))
		}
		if c.Environment == Production && c.API.Key == "" {
			errs = append(errs, errors.New("api.key is required in production"))
		}
	case SinkRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis sink"))
		}
		if c.Redis.MaxLen < 0 {
			errs = append(errs, errors.New("redis.max_len must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("sink must be one of: %v", []Sink{SinkHTTP, SinkRedis}))
	}

	if !slices.Contains(encodings, c.API.Encoding) {
		errs = append(errs, fmt.Errorf("api.encoding must be one of: %v", encodings))
	}
	if !slices.Contains(compressions, c.API.Compression) {
		errs = append(errs, fmt.Errorf("api.compression must be one of: %v", compressions))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("api.requests_per_second must not be negative"))
	}
	if c.API.RequestsPerSecond > 0 && c.API.Burst < 1 {
		errs = append(errs, errors.New("api.burst must be at least 1 when rate limiting"))
	}

	errs = append(errs, c.Enemies.validate("enemies")...)
	errs = append(errs, c.Fates.validate("fates")...)

	if c.Scheduler.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("scheduler.shutdown_timeout must be positive"))
	}
	if c.Host.FrameInterval <= 0 {
		errs = append(errs, errors.New("host.frame_interval must be positive"))
	}

	return errors.Join(errs...)
}

func (k KindConfig) validate(section string) []error {
	var errs []error
	if k.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s.sample_interval must be positive", section))
	}
	if k.UploadInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s.upload_interval must be positive", section))
	}
	if k.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%s.queue_capacity must be positive", section))
	}
	if k.MovementThreshold <= 0 {
		errs = append(errs, fmt.Errorf("%s.movement_threshold must be positive", section))
	}
	return errs
}
