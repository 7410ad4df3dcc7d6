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

// Constants for default paths
const (
	appDirName = "transfer-sh-helper"
	configName = "transfer-helper-config"
	configType = "json"
	envPrefix  = "TRANSFERHELPER"
)

// Default values written to a fresh config file
const (
	defaultDatabaseFile = "transfer-sh-helper.db"
	defaultServer       = "https://transfer.sh/"
	defaultMaxSizeMiB   = 1536.0 // transfer.sh rejects anything from 1.5 GiB up
	defaultTimeout      = 30 * time.Minute
	defaultLogLevel     = "info"
)

// Keys lists the settings accepted by Set
var Keys = []string{"database_file", "server", "max_size_mib", "timeout", "log_level", "log_path"}

// Config represents the application configuration
type Config struct {
	Dir          string        `mapstructure:"-"`
	DatabaseFile string        `mapstructure:"database_file"` // Relative to Dir unless absolute
	Server       string        `mapstructure:"server"`        // Base URL of the transfer service
	MaxSize      float64       `mapstructure:"max_size_mib"`  // Uploads must be smaller than this
	Timeout      time.Duration `mapstructure:"timeout"`       // Per request timeout for the transfer client
	LogLevel     string        `mapstructure:"log_level"`
	LogPath      string        `mapstructure:"log_path"` // Empty means <Dir>/logs/transferhelper.log

	v *viper.Viper
}

// DefaultDir returns the per-user directory holding the config file and database
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// LoadConfig loads the configuration from dir, writing a default config file
// on first use. Environment variables prefixed with TRANSFERHELPER_ win over
// the file.
func LoadConfig(dir string) (*Config, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_file", defaultDatabaseFile)
	v.SetDefault("server", defaultServer)
	v.SetDefault("max_size_mib", defaultMaxSizeMiB)
	v.SetDefault("timeout", defaultTimeout.String())
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_path", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("invalid config file format: %w", err)
		}
		if err := v.SafeWriteConfigAs(filepath.Join(dir, configName+"."+configType)); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	cfg := &Config{Dir: dir, v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.DatabaseFile == "" {
		return fmt.Errorf("database_file must not be empty")
	}
	if c.Server == "" {
		return fmt.Errorf("server must not be empty")
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("max_size_mib must be greater than 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// DatabasePath returns where the registry store lives
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.DatabaseFile) {
		return c.DatabaseFile
	}
	return filepath.Join(c.Dir, c.DatabaseFile)
}

// LogFilePath returns where the rotating log file is written
func (c *Config) LogFilePath() string {
	if c.LogPath != "" {
		return c.LogPath
	}
	return filepath.Join(c.Dir, "logs", "transferhelper.log")
}

func (c *Config) MaxSizeToBytes() int64 {
	return int64(c.MaxSize * 1024 * 1024)
}

// ConfigFile returns the path of the backing config file
func (c *Config) ConfigFile() string {
	return filepath.Join(c.Dir, configName+"."+configType)
}

// Get returns the raw value of a setting as a string
func (c *Config) Get(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// Set persists a single setting to the config file. The in-memory Config is
// not refreshed; reload to pick the change up.
func (c *Config) Set(key, value string) error {
	if !isKnownKey(key) {
		return fmt.Errorf("unknown config key %q (available: %s)", key, strings.Join(Keys, ", "))
	}
	if c.v == nil {
		return fmt.Errorf("config was not loaded from a file")
	}
	c.v.Set(key, value)
	if err := c.v.WriteConfigAs(c.ConfigFile()); err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}
	return nil
}

func isKnownKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}
