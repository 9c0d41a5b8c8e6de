package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/utils"
)

type Config struct {
	Timezone  string          `koanf:"timezone"`
	Backend   string          `koanf:"backend"`
	Debug     bool            `koanf:"debug"`
	LogLevel  string          `koanf:"log_level"`
	Supabase  SupabaseConfig  `koanf:"supabase"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	SQLite    SQLiteConfig    `koanf:"sqlite"`
	Remote    RemoteConfig    `koanf:"remote"`
	Reminders RemindersConfig `koanf:"reminders"`
	Daemon    DaemonConfig    `koanf:"daemon"`

	// ConfigDir is the directory holding the config file, logs and local databases.
	ConfigDir string `koanf:"-"`
}

type SupabaseConfig struct {
	URL       string  `koanf:"url"`
	AnonKey   string  `koanf:"anon_key"`
	Schema    string  `koanf:"schema"`
	RateLimit float64 `koanf:"rate_limit"` // requests per second
	RateBurst int     `koanf:"rate_burst"`
}

type PostgresConfig struct {
	// ConnectionString must not embed a password; use .pgpass or the keyring.
	ConnectionString string `koanf:"connection_string"`
}

// SQLiteConfig locates the local database. It always holds the reminder
// registry and also holds habits when backend is sqlite.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RemoteConfig struct {
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

type RemindersConfig struct {
	// FilterByRecurrence suppresses deliveries on days the habit's rule does not select.
	FilterByRecurrence bool   `koanf:"filter_by_recurrence"`
	Sink               string `koanf:"sink"`
}

type DaemonConfig struct {
	MetricsAddr string `koanf:"metrics_addr"`
}

// Load merges defaults, the optional YAML file at configPath, a .env file in
// the working directory and HABITUAL_ environment variables, in that order.
// Nested keys use a double underscore: HABITUAL_SUPABASE__ANON_KEY.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}
	configPath = expandPath(configPath)

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(constants.EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigDir = filepath.Dir(configPath)
	cfg.SQLite.Path = expandPath(cfg.SQLite.Path)

	return &cfg, nil
}

// envKey maps HABITUAL_SUPABASE__ANON_KEY to supabase.anon_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, constants.EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	if !utils.ValidateTimezone(c.Timezone) {
		return fmt.Errorf("invalid timezone %q", c.Timezone)
	}

	switch constants.Backend(c.Backend) {
	case constants.BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			return fmt.Errorf("supabase backend requires supabase.url and supabase.anon_key (or HABITUAL_SUPABASE__URL / HABITUAL_SUPABASE__ANON_KEY)")
		}
		if c.Supabase.RateLimit <= 0 {
			return fmt.Errorf("supabase.rate_limit must be positive")
		}
	case constants.BackendPostgres:
		// The connection string may come from the keyring at open time.
	case constants.BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown backend: %s (supported: %s, %s, %s)",
			c.Backend, constants.BackendSupabase, constants.BackendPostgres, constants.BackendSQLite)
	}

	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote.max_retries cannot be negative")
	}

	switch constants.SinkType(c.Reminders.Sink) {
	case constants.SinkTray, constants.SinkStdout:
	default:
		return fmt.Errorf("unknown reminders.sink: %s (supported: %s, %s)",
			c.Reminders.Sink, constants.SinkTray, constants.SinkStdout)
	}

	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
