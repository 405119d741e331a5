// Package config loads scheduler settings from defaults, an optional YAML
// file and SCHEDULER_ environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/example/conference-scheduler/internal/logging"
)

const (
	envPrefix = "SCHEDULER_"
	// EnvConfigFile names the variable holding the YAML config path.
	EnvConfigFile = "SCHEDULER_CONFIG"
)

// Config captures the settings of the scheduler CLI.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is json or text.
	LogFormat string `koanf:"log_format"`
	// SQLiteDSN locates the snapshot database.
	SQLiteDSN string `koanf:"sqlite_dsn"`
	// SeedFile is an optional YAML seed plan applied on start.
	SeedFile string `koanf:"seed_file"`
	// ActingUser is the username seed plans are applied as.
	ActingUser string `koanf:"acting_user"`
	// MetricsNamespace prefixes every exported metric.
	MetricsNamespace string `koanf:"metrics_namespace"`
	// MetricsFile, when set, receives the metrics in text exposition format on exit.
	MetricsFile string `koanf:"metrics_file"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:         "info",
		LogFormat:        "json",
		SQLiteDSN:        "file:scheduler.db",
		ActingUser:       "organizer",
		MetricsNamespace: "conference",
	}
}

// Load layers defaults, the YAML file at path (or $SCHEDULER_CONFIG when path
// is empty) and SCHEDULER_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigFile))
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// SCHEDULER_SQLITE_DSN -> sqlite_dsn
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid key at once.
func (c Config) Validate() error {
	invalid := make([]string, 0, 3)

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		invalid = append(invalid, "log_level")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		invalid = append(invalid, "log_format")
	}
	if strings.TrimSpace(c.SQLiteDSN) == "" {
		invalid = append(invalid, "sqlite_dsn")
	}
	if strings.TrimSpace(c.ActingUser) == "" {
		invalid = append(invalid, "acting_user")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("config: invalid values for %s", strings.Join(invalid, ", "))
	}
	return nil
}
