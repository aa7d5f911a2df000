// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Exclusion scopes.
const (
	ExclusionScopeKey    = "key"
	ExclusionScopeGlobal = "global"
)

// Store drivers.
const (
	StoreDriverMemory   = "memory"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Deezer    DeezerConfig    `yaml:"deezer"`
	Pool      PoolConfig      `yaml:"pool"`
	Selection SelectionConfig `yaml:"selection"`
	Daily     DailyConfig     `yaml:"daily"`
	Genres    []GenreConfig   `yaml:"genres" validate:"dive"`
	Artist    ArtistConfig    `yaml:"artist"`
	Rotation  RotationConfig  `yaml:"rotation"`
	Store     StoreConfig     `yaml:"store"`
	Guess     GuessConfig     `yaml:"guess"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr           string        `yaml:"addr" default:":3000"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"20s" validate:"gt=0"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	Hooks          HooksConfig   `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LogConfig represents logger configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	// Token is the shared secret required by the manual rotate trigger.
	Token string `yaml:"token" validate:"required"`
}

// DeezerConfig represents catalog API configuration.
type DeezerConfig struct {
	BaseURL    string        `yaml:"base_url" default:"https://api.deezer.com" validate:"url"`
	Timeout    time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" default:"3" validate:"gte=1,lte=10"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"500ms"`
}

// PoolConfig represents track pool cache configuration.
type PoolConfig struct {
	TTL time.Duration `yaml:"ttl" default:"6h" validate:"gt=0"`
}

// SelectionConfig represents free-play selection configuration.
type SelectionConfig struct {
	MaxAttempts    int    `yaml:"max_attempts" default:"10" validate:"gte=1,lte=50"`
	ExclusionScope string `yaml:"exclusion_scope" default:"key" validate:"oneof=key global"`
}

// DailyConfig represents the main daily-challenge context.
type DailyConfig struct {
	Playlists []int64 `yaml:"playlists" validate:"required,min=1"`
}

// GenreConfig represents a genre and its source playlists.
type GenreConfig struct {
	Name      string  `yaml:"name" validate:"required"`
	Playlists []int64 `yaml:"playlists" validate:"required,min=1"`
}

// ArtistConfig represents artist pool configuration.
type ArtistConfig struct {
	TopLimit int `yaml:"top_limit" default:"50" validate:"gte=1,lte=100"`
}

// RotationConfig represents daily rotation configuration.
type RotationConfig struct {
	Enabled     *bool  `yaml:"enabled" default:"true"`
	TimeOfDay   string `yaml:"time_of_day" default:"00:00" validate:"datetime=15:04"`
	Timezone    string `yaml:"timezone" default:"UTC"`
	RunOnStart  bool   `yaml:"run_on_start"`
	Parallelism int    `yaml:"parallelism" default:"4" validate:"gte=1"`
	MaxAttempts int    `yaml:"max_attempts" default:"10" validate:"gte=1,lte=50"`
}

// StoreConfig represents challenge store configuration.
type StoreConfig struct {
	Driver   string         `yaml:"driver" default:"memory" validate:"oneof=memory redis postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig represents the Redis challenge store.
type RedisConfig struct {
	Addr      string `yaml:"addr" default:"127.0.0.1:6379"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix" default:"muser:challenge"`
}

// PostgresConfig represents the SQL challenge store.
type PostgresConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLife  time.Duration `yaml:"conn_max_life" default:"1h"`
}

// GuessConfig represents guess scoring configuration.
type GuessConfig struct {
	Threshold float64 `yaml:"threshold" default:"0.85" validate:"gt=0,lte=1"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses, defaults and validates configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("DEEZER_BASE_URL"); v != "" {
		c.Deezer.BaseURL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Store.Postgres.DSN = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateGenres(); err != nil {
		return err
	}

	if _, err := time.LoadLocation(c.Rotation.Timezone); err != nil {
		return errors.Wrapf(err, "invalid rotation timezone %q", c.Rotation.Timezone)
	}

	if c.Store.Driver == StoreDriverPostgres && c.Store.Postgres.DSN == "" {
		return errors.New("store.postgres.dsn is required for the postgres driver")
	}

	return nil
}

// validateGenres checks that genre names are unique and do not shadow reserved path segments.
func (c *Config) validateGenres() error {
	seen := make(map[string]bool, len(c.Genres))
	for _, g := range c.Genres {
		if g.Name == "main" || g.Name == "artist" {
			return errors.Newf("genre name %q is reserved", g.Name)
		}
		if seen[g.Name] {
			return errors.Newf("duplicate genre %q", g.Name)
		}
		seen[g.Name] = true
	}
	return nil
}

// GenreNames returns the configured genre names in config order.
func (c *Config) GenreNames() []string {
	names := make([]string, len(c.Genres))
	for i, g := range c.Genres {
		names[i] = g.Name
	}
	return names
}

// GenrePlaylists returns the source playlists of a genre.
func (c *Config) GenrePlaylists(name string) ([]int64, bool) {
	for _, g := range c.Genres {
		if g.Name == name {
			return g.Playlists, true
		}
	}
	return nil, false
}

// RotationEnabled reports whether the daily scheduler should run.
// An absent value counts as enabled.
func (c *Config) RotationEnabled() bool {
	return c.Rotation.Enabled == nil || *c.Rotation.Enabled
}

// Location returns the rotation timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Rotation.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
