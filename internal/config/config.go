// Package config loads application settings from defaults, an optional
// config file, and TRIALFIELD_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application settings.
type Config struct {
	// DBPath is the location of the local SQLite database.
	DBPath string `mapstructure:"db_path"`

	// APIBaseURL is the remote sync service endpoint.
	APIBaseURL string `mapstructure:"api_base_url"`

	// HTTPTimeout bounds every sync request.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// SyncInterval is the daemon's cycle period.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// DashboardPort is the WebSocket dashboard listen port.
	DashboardPort int `mapstructure:"dashboard_port"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// Dir returns the default application directory, ~/.trialfield.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".trialfield"
	}
	return filepath.Join(home, ".trialfield")
}

// Load reads configuration. cfgFile overrides the default search path
// (~/.trialfield/config.yaml); an absent file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", filepath.Join(Dir(), "trialfield.db"))
	v.SetDefault("api_base_url", "http://localhost:8080/api")
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("dashboard_port", 8090)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_file", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix("TRIALFIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// An explicit file must exist; the default path may not.
	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
