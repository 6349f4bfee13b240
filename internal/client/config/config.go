package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the fieldsync client
type Config struct {
	// RemoteURL is the base URL of the interview server (e.g., "https://field.example.org/api")
	RemoteURL string `mapstructure:"remote_url"`

	// ConfigPath is the path to the configuration file
	ConfigPath string `mapstructure:"-"`

	// Verbose enables debug logging
	Verbose bool `mapstructure:"verbose"`

	// Format specifies the output format (text, json, yaml)
	Format string `mapstructure:"format"`

	// DataDir is the directory holding the database and broadcast spool
	DataDir string `mapstructure:"data_dir"`

	// DBPath is the path to the local SQLite database
	DBPath string `mapstructure:"db_path"`

	// BroadcastDir is the spool directory for cross-process notifications
	BroadcastDir string `mapstructure:"broadcast_dir"`

	// DebounceInterval is the trailing window for coalescing interview writes
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	dataDir := filepath.Join(homeDir, ".fieldsync")

	return &Config{
		RemoteURL:        "http://localhost:8080",
		Verbose:          false,
		Format:           "text",
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "fieldsync.db"),
		BroadcastDir:     filepath.Join(dataDir, "broadcast"),
		DebounceInterval: 2 * time.Second,
	}
}

// Load loads configuration from file, environment variables, and CLI flags
// Priority (highest to lowest): CLI flags > Environment variables > Config file > Defaults
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
		}
		cfg.ConfigPath = configPath
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			dataDir := filepath.Join(homeDir, ".fieldsync")
			v.AddConfigPath(dataDir)
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			cfg.ConfigPath = filepath.Join(dataDir, "config.yaml")
		}
	}

	v.SetEnvPrefix("FIELDSYNC")
	v.AutomaticEnv()

	v.BindEnv("remote_url")
	v.BindEnv("verbose")
	v.BindEnv("format")
	v.BindEnv("data_dir")
	v.BindEnv("db_path")
	v.BindEnv("broadcast_dir")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.Debug("No config file found, using defaults")
	} else {
		logrus.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Paths not set explicitly follow the data directory.
	if !v.IsSet("db_path") && cfg.DataDir != "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "fieldsync.db")
	}
	if !v.IsSet("broadcast_dir") && cfg.DataDir != "" {
		cfg.BroadcastDir = filepath.Join(cfg.DataDir, "broadcast")
	}

	return cfg, nil
}

// EnsureDirectories ensures that all necessary directories exist
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.DBPath),
		c.BroadcastDir,
		filepath.Dir(c.ConfigPath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ValidateFormat validates the output format
func (c *Config) ValidateFormat() error {
	switch c.Format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("invalid format %q, must be one of: text, json, yaml", c.Format)
	}
}
