// Package config defines the configuration for brokeradm.
//
// Values are resolved in order: defaults (struct tags), config file,
// BROKERADM_* environment variables, then command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

const envPrefix = "BROKERADM"

// Configuration is the root configuration object.
type Configuration struct {
	LogLevel  string    `mapstructure:"log_level" default:"info"`
	LogFormat string    `mapstructure:"log_format" default:"console"`
	Broker    Broker    `mapstructure:"broker"`
	Installer Installer `mapstructure:"installer"`
	Journal   Journal   `mapstructure:"journal"`
}

// Broker configures access to the management controller.
type Broker struct {
	// AdminAddress is the controller host. "localhost" is substituted with
	// the actual machine name before use.
	AdminAddress string `mapstructure:"admin_address" default:"localhost"`
	// Port is the controller administration port used both for the
	// reachability probe and the API base URL.
	Port int `mapstructure:"port" default:"80"`
	// TokenFile optionally points to a bearer token for the controller API.
	TokenFile string `mapstructure:"token_file"`
	// ProbeAttempts bounds the TCP reachability probe.
	ProbeAttempts int `mapstructure:"probe_attempts" default:"3"`
	// ProbeIntervalSeconds is the constant wait between probe attempts.
	ProbeIntervalSeconds int `mapstructure:"probe_interval_seconds" default:"2"`
}

// Installer configures the package lifecycle procedure.
type Installer struct {
	// BaseLogDir is the root under which per-package log directories are
	// created.
	BaseLogDir string `mapstructure:"base_log_dir" default:"/var/log/brokeradm"`
	// VendorLogDir is where the vendor installer drops its own logs; they
	// are collected into the run's log directory afterwards.
	VendorLogDir string `mapstructure:"vendor_log_dir"`
	// StaleOutputDir is a known prior-run output directory removed before
	// each run when present.
	StaleOutputDir string `mapstructure:"stale_output_dir"`
}

// Journal configures the local action journal.
type Journal struct {
	// Path is the SQLite database file. Empty disables journaling.
	Path string `mapstructure:"path"`
}

// Load builds the configuration from defaults, an optional config file and
// the environment.
func Load(configFile string) (*Configuration, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so every
	// key is bound explicitly or Unmarshal would never see env-only values.
	for _, key := range []string{
		"log_level",
		"log_format",
		"broker.admin_address",
		"broker.port",
		"broker.token_file",
		"broker.probe_attempts",
		"broker.probe_interval_seconds",
		"installer.base_log_dir",
		"installer.vendor_log_dir",
		"installer.stale_output_dir",
		"journal.path",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %q: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", configFile, err)
		}
	}

	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply configuration defaults: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}
