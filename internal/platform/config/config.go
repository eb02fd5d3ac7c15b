// Package config provides configuration loading and management using koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override configuration.
// QUOTES_DB_DIR sets db.dir, QUOTES_POLL_SEEN_TTL sets poll.seen_ttl.
const EnvPrefix = "QUOTES_"

// DefaultConfigDir is where base.yaml and profile files are looked up.
const DefaultConfigDir = "configs"

// Default configuration values.
const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 8080

	// DefaultMaxRequestSize is the default maximum request body size (64KB).
	DefaultMaxRequestSize = 64 << 10

	// DefaultPollURL returns one random quote per request.
	DefaultPollURL = "https://zenquotes.io/api/random"

	// DefaultClientRetryMaxAttempts is the default number of attempts per fetch.
	DefaultClientRetryMaxAttempts = 3

	// DefaultClientRetryMultiplier is the default exponential backoff multiplier.
	DefaultClientRetryMultiplier = 2.0

	// DefaultClientRetryJitterFactor is the default jitter percentage (±25%).
	DefaultClientRetryJitterFactor = 0.25

	// DefaultClientCircuitMaxFailures is the default failures before circuit opens.
	DefaultClientCircuitMaxFailures = 5

	// DefaultClientCircuitHalfOpenLimit is the default successes to close circuit.
	DefaultClientCircuitHalfOpenLimit = 1

	// DefaultLogFileMaxSizeMB is the default max log file size in megabytes.
	DefaultLogFileMaxSizeMB = 10

	// DefaultLogFileMaxBackups is the default number of old log files to retain.
	DefaultLogFileMaxBackups = 3

	// DefaultLogFileMaxAgeDays is the default max days to retain old log files.
	DefaultLogFileMaxAgeDays = 28
)

// Storage backends.
const (
	BackendCSV = "csv"
	BackendSQL = "sql"
)

// Config is the root configuration structure.
type Config struct {
	App       AppConfig       `koanf:"app"       validate:"required"`
	Log       LogConfig       `koanf:"log"       validate:"required"`
	DB        DBConfig        `koanf:"db"        validate:"required"`
	SQL       SQLConfig       `koanf:"sql"`
	Poll      PollConfig      `koanf:"poll"      validate:"required"`
	Cache     CacheConfig     `koanf:"cache"`
	Client    ClientConfig    `koanf:"client"    validate:"required"`
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// DBConfig selects the storage backend and where the flat-file store lives.
type DBConfig struct {
	Backend string `koanf:"backend" validate:"required,oneof=csv sql"`

	// Dir holds the CSV table and the default SQLite file. Empty means the
	// working directory; ResolveDir fills it in.
	Dir   string `koanf:"dir"`
	Table string `koanf:"table" validate:"required"`
}

// SQLConfig configures the relational backend.
type SQLConfig struct {
	Driver string `koanf:"driver" validate:"required,oneof=sqlite3 postgres"`

	// DSN, when set, is used as is. Otherwise SQLite opens <db.dir>/<file> and
	// PostgreSQL is reached through the discrete parameters below.
	DSN          string `koanf:"dsn"`
	File         string `koanf:"file"           validate:"required"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"           validate:"omitempty,min=1,max=65535"`
	Name         string `koanf:"name"`
	SSLMode      string `koanf:"sslmode"        validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"min=0"`
}

// PollConfig configures remote quote ingestion.
type PollConfig struct {
	URL      string        `koanf:"url"      validate:"required,url"`
	Interval time.Duration `koanf:"interval" validate:"required,min=100ms"`
	SeenTTL  time.Duration `koanf:"seen_ttl" validate:"min=0"`
}

// CacheConfig configures the Redis cache that remembers ingested quotes.
type CacheConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"     validate:"required_if=Enabled true"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"       validate:"min=0"`
	Prefix   string        `koanf:"prefix"`
	Timeout  time.Duration `koanf:"timeout"  validate:"required_if=Enabled true"`
}

// ClientConfig contains HTTP client settings for the remote quote source.
type ClientConfig struct {
	Timeout        time.Duration        `koanf:"timeout"         validate:"required,min=100ms"`
	UserAgent      string               `koanf:"user_agent"`
	Retry          RetryConfig          `koanf:"retry"           validate:"required"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" validate:"required"`
}

// RetryConfig contains retry settings for HTTP clients.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=100ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`
	JitterFactor    float64       `koanf:"jitter_factor"    validate:"min=0,max=1"`
}

// CircuitBreakerConfig contains circuit breaker settings for HTTP clients.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

// ServerConfig contains HTTP server settings for the serve command.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	RequestTimeout  time.Duration `koanf:"request_timeout"  validate:"required,min=100ms"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "quotes",
		"app.version":     "dev",
		"app.environment": "local",

		"log.level":            "warn",
		"log.format":           "pretty",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/quotes.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"db.backend": BackendCSV,
		"db.dir":     "",
		"db.table":   "quotes",

		"sql.driver":         "sqlite3",
		"sql.dsn":            "",
		"sql.file":           "quotes.db",
		"sql.user":           "",
		"sql.password":       "",
		"sql.host":           "localhost",
		"sql.port":           5432,
		"sql.name":           "quotes",
		"sql.sslmode":        "",
		"sql.max_open_conns": 0,

		"poll.url":      DefaultPollURL,
		"poll.interval": "5s",
		"poll.seen_ttl": "24h",

		"cache.enabled":  false,
		"cache.addr":     "localhost:6379",
		"cache.password": "",
		"cache.db":       0,
		"cache.prefix":   "quotes:",
		"cache.timeout":  "3s",

		"client.timeout":                         "10s",
		"client.user_agent":                      "quotes",
		"client.retry.max_attempts":              DefaultClientRetryMaxAttempts,
		"client.retry.initial_interval":          "200ms",
		"client.retry.max_interval":              "5s",
		"client.retry.multiplier":                DefaultClientRetryMultiplier,
		"client.retry.jitter_factor":             DefaultClientRetryJitterFactor,
		"client.circuit_breaker.max_failures":    DefaultClientCircuitMaxFailures,
		"client.circuit_breaker.timeout":         "30s",
		"client.circuit_breaker.half_open_limit": DefaultClientCircuitHalfOpenLimit,

		"server.port":             DefaultServerPort,
		"server.host":             "127.0.0.1",
		"server.read_timeout":     "10s",
		"server.write_timeout":    "10s",
		"server.idle_timeout":     "60s",
		"server.shutdown_timeout": "10s",
		"server.request_timeout":  "5s",
		"server.max_request_size": DefaultMaxRequestSize,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "quotes",
		"telemetry.sampling_rate": 1.0,
	}
}

// Options controls where configuration is read from.
type Options struct {
	// Dir holds base.yaml and <profile>.yaml. Defaults to DefaultConfigDir.
	Dir string

	// Profile selects an extra overlay file. Empty means none.
	Profile string
}

// Load loads configuration from DefaultConfigDir. See LoadWith.
func Load(profile string) (*Config, error) {
	return LoadWith(Options{Profile: profile})
}

// LoadWith loads configuration with the following precedence (highest to lowest):
//  1. Environment variables (QUOTES_ prefix)
//  2. Profile config file ({dir}/{profile}.yaml)
//  3. Base config file ({dir}/base.yaml)
//  4. Default values
func LoadWith(opts Options) (*Config, error) {
	if opts.Dir == "" {
		opts.Dir = DefaultConfigDir
	}

	k := koanf.New(".")

	defs := defaults()

	if err := k.Load(confmap.Provider(defs, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if err := loadFileIfExists(k, filepath.Join(opts.Dir, "base.yaml")); err != nil {
		return nil, fmt.Errorf("loading base config: %w", err)
	}

	if opts.Profile != "" {
		if err := loadFileIfExists(k, filepath.Join(opts.Dir, opts.Profile+".yaml")); err != nil {
			return nil, fmt.Errorf("loading profile config %q: %w", opts.Profile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKeyMapper(defs)), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKeyMapper maps QUOTES_POLL_SEEN_TTL to poll.seen_ttl by matching against
// the known keys, so keys containing underscores survive. Unknown variables
// fall back to replacing every underscore with a dot.
func envKeyMapper(known map[string]any) func(string) string {
	lookup := make(map[string]string, len(known))
	for key := range known {
		lookup[strings.ReplaceAll(key, ".", "_")] = key
	}

	return func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key, ok := lookup[name]; ok {
			return key
		}

		return strings.ReplaceAll(name, "_", ".")
	}
}

// loadFileIfExists loads a YAML config file if it exists.
func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}

// ResolveDir fills an empty db.dir with the working directory and makes it absolute.
func (c *Config) ResolveDir() error {
	dir := c.DB.Dir
	if dir == "" {
		dir = "."
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving db.dir: %w", err)
	}

	c.DB.Dir = abs

	return nil
}

// SQLitePath returns the SQLite database file inside db.dir.
func (c *Config) SQLitePath() string {
	if filepath.IsAbs(c.SQL.File) {
		return c.SQL.File
	}

	return filepath.Join(c.DB.Dir, c.SQL.File)
}
