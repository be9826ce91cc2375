// Package config loads service settings from defaults, an optional YAML file
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port            string        `yaml:"port" validate:"required,numeric"`
	GinMode         string        `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // empty reflects any origin
}

type ClickHouseConfig struct {
	Host        string        `yaml:"host"`
	NativePort  int           `yaml:"native_port" validate:"gte=0,lte=65535"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout" validate:"gt=0"`
}

type StoreConfig struct {
	Backend      string           `yaml:"backend" validate:"oneof=memory clickhouse postgres"`
	Fallback     bool             `yaml:"fallback"` // use memory when the backend is unreachable at startup
	SnapshotPath string           `yaml:"snapshot_path"`
	WriteTimeout time.Duration    `yaml:"write_timeout" validate:"gt=0"`
	PostgresURL  string           `yaml:"postgres_url" validate:"required_if=Backend postgres"`
	ClickHouse   ClickHouseConfig `yaml:"clickhouse"`
}

type RateLimitConfig struct {
	MaxRequests   int           `yaml:"max_requests" validate:"min=1"`
	Window        time.Duration `yaml:"window" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gte=0"`
}

type SessionConfig struct {
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxEntries    int           `yaml:"max_entries" validate:"min=1"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the documented defaults: 20 requests per second per client,
// 60 minute sessions and eviction once more than 1000 sessions are held.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend:      "memory",
			WriteTimeout: 15 * time.Second,
			ClickHouse: ClickHouseConfig{
				NativePort:  9000,
				DialTimeout: 5 * time.Second,
			},
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   20,
			Window:        time.Second,
			SweepInterval: time.Minute,
		},
		Session: SessionConfig{
			Timeout:       60 * time.Minute,
			MaxEntries:    1000,
			SweepInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads .env (if any), the YAML file named by CONFIG_FILE (if set) and
// the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return LoadFrom(os.Getenv("CONFIG_FILE"), os.LookupEnv)
}

// LoadFrom builds a Config from defaults, the YAML file at path (skipped when
// empty) and the variables visible through lookup.
func LoadFrom(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and backend-specific requirements.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Backend == "clickhouse" {
		ch := c.Store.ClickHouse
		if ch.Host == "" || ch.NativePort == 0 || ch.Database == "" {
			return errors.New("invalid config: CLICKHOUSE_HOST, CLICKHOUSE_NATIVE_PORT and CLICKHOUSE_DB_NAME are required for the clickhouse backend")
		}
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = d
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = b
}

func (r *envReader) list(key string, dst *[]string) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	r := &envReader{lookup: lookup}

	r.str("PORT", &cfg.Server.Port)
	r.str("GIN_MODE", &cfg.Server.GinMode)
	r.duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	r.list("CORS_ALLOWED_ORIGINS", &cfg.Server.AllowedOrigins)

	r.str("STORE_BACKEND", &cfg.Store.Backend)
	r.boolean("STORE_FALLBACK", &cfg.Store.Fallback)
	r.str("STORE_SNAPSHOT_PATH", &cfg.Store.SnapshotPath)
	r.duration("STORE_WRITE_TIMEOUT", &cfg.Store.WriteTimeout)
	r.str("DATABASE_URL", &cfg.Store.PostgresURL)
	r.str("CLICKHOUSE_HOST", &cfg.Store.ClickHouse.Host)
	r.integer("CLICKHOUSE_NATIVE_PORT", &cfg.Store.ClickHouse.NativePort)
	r.str("CLICKHOUSE_DB_NAME", &cfg.Store.ClickHouse.Database)
	r.str("CLICKHOUSE_USERNAME", &cfg.Store.ClickHouse.Username)
	r.str("CLICKHOUSE_PASSWORD", &cfg.Store.ClickHouse.Password)

	r.integer("RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.MaxRequests)
	r.duration("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	r.duration("RATE_LIMIT_SWEEP_INTERVAL", &cfg.RateLimit.SweepInterval)

	r.duration("SESSION_TIMEOUT", &cfg.Session.Timeout)
	r.integer("SESSION_MAX_ENTRIES", &cfg.Session.MaxEntries)
	r.duration("SESSION_SWEEP_INTERVAL", &cfg.Session.SweepInterval)

	r.str("LOG_LEVEL", &cfg.Log.Level)
	r.boolean("LOG_PRETTY", &cfg.Log.Pretty)

	return errors.Join(r.errs...)
}
