package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"

	"github.com/julianstephens/habitual/internal/constants"
)

// DefaultConfig returns the built-in settings as a flat koanf map.
func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"timezone":  constants.DefaultTimezone,
		"backend":   string(constants.BackendSupabase),
		"debug":     false,
		"log_level": "warn",

		"supabase.url":        "",
		"supabase.anon_key":   "",
		"supabase.schema":     "public",
		"supabase.rate_limit": constants.DefaultRateLimit,
		"supabase.rate_burst": constants.DefaultRateBurst,

		"postgres.connection_string": "",

		"sqlite.path": filepath.Join(constants.DefaultConfigDir, constants.DefaultDBName),

		"remote.timeout":     constants.DefaultRemoteTimeout.String(),
		"remote.max_retries": 3,

		"reminders.filter_by_recurrence": false,
		"reminders.sink":                 string(constants.SinkTray),

		"daemon.metrics_addr": constants.DefaultMetricsAddr,
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return filepath.Join(constants.DefaultConfigDir, constants.ConfigFileName)
}

// WriteDefault writes the built-in settings to path as YAML unless a file
// already exists there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	path = expandPath(path)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	k := koanf.New(".")
	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return false, fmt.Errorf("failed to load defaults: %w", err)
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return false, fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}
