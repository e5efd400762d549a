// Package config handles configuration management for notepadtt.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NOTEPADTT_SERVER_PORT.
const EnvPrefix = "NOTEPADTT"

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Watcher WatcherConfig `mapstructure:"watcher" yaml:"watcher"`
	Limits  LimitsConfig  `mapstructure:"limits" yaml:"limits"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	StaticDir   string `mapstructure:"static_dir" yaml:"static_dir"`     // Optional: web UI served at "/"
	ShowQR      bool   `mapstructure:"show_qr" yaml:"show_qr"`           // Print a QR code of the UI URL on startup
	ExternalURL string `mapstructure:"external_url" yaml:"external_url"` // Optional: public base URL advertised in the QR code

	// AllowedOrigins lists browser origins accepted on /ws and by CORS.
	// Entries are exact origins or "*.example.com". Empty allows every
	// origin unless the server binds to loopback.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// WebSocket deadlines. A client that sends nothing, not even a pong,
	// for read_timeout_sec is dropped.
	ReadTimeoutSec  int `mapstructure:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec int `mapstructure:"write_timeout_sec" yaml:"write_timeout_sec"`
}

// StorageConfig describes the data directory holding one file per tab.
type StorageConfig struct {
	DataDir         string   `mapstructure:"data_dir" yaml:"data_dir"`
	IncludePatterns []string `mapstructure:"include_patterns" yaml:"include_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	MaxFileSizeKB   int      `mapstructure:"max_file_size_kb" yaml:"max_file_size_kb"`
}

// WatcherConfig holds file watcher configuration.
type WatcherConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	DebounceMS        int  `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	MaxReadAttempts   int  `mapstructure:"max_read_attempts" yaml:"max_read_attempts"`
	RetryBaseMS       int  `mapstructure:"retry_base_ms" yaml:"retry_base_ms"`
	RetryStepMS       int  `mapstructure:"retry_step_ms" yaml:"retry_step_ms"`
	SelfWriteWindowMS int  `mapstructure:"self_write_window_ms" yaml:"self_write_window_ms"`
}

// LimitsConfig holds various limits.
type LimitsConfig struct {
	MaxContentKB int `mapstructure:"max_content_kb" yaml:"max_content_kb"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"` // Optional: also write logs here, rotated
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// ReadTimeout returns how long a WebSocket may stay silent.
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the deadline for one WebSocket write.
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSec) * time.Second
}

// Debounce returns the watcher debounce delay.
func (c WatcherConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// RetryBase returns the delay before the first read retry.
func (c WatcherConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

// RetryStep returns how much each further read retry waits longer.
func (c WatcherConfig) RetryStep() time.Duration {
	return time.Duration(c.RetryStepMS) * time.Millisecond
}

// SelfWriteWindow returns how long the server's own writes are attributed to it.
func (c WatcherConfig) SelfWriteWindow() time.Duration {
	return time.Duration(c.SelfWriteWindowMS) * time.Millisecond
}

// MaxContentBytes returns the largest accepted tab body in bytes.
func (c LimitsConfig) MaxContentBytes() int {
	return c.MaxContentKB * 1024
}

// MaxFileSizeBytes returns the largest file tracked as a tab, or 0 for no limit.
func (c StorageConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeKB) * 1024
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.notepadtt")
		v.AddConfigPath("/etc/notepadtt")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// A missing config file is fine; defaults and env apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.show_qr", false)
	v.SetDefault("server.external_url", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.read_timeout_sec", 90)
	v.SetDefault("server.write_timeout_sec", 15)

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.include_patterns", []string{})
	v.SetDefault("storage.exclude_patterns", DefaultExcludePatterns)
	v.SetDefault("storage.max_file_size_kb", 1024)

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounce_ms", 20)
	v.SetDefault("watcher.max_read_attempts", 5)
	v.SetDefault("watcher.retry_base_ms", 50)
	v.SetDefault("watcher.retry_step_ms", 150)
	v.SetDefault("watcher.self_write_window_ms", 1000)

	v.SetDefault("limits.max_content_kb", 200)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
}

// postProcess applies post-processing to configuration.
func postProcess(cfg *Config) error {
	if cfg.Storage.DataDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		cfg.Storage.DataDir = cwd
	}

	absPath, err := ResolvePath(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve storage.data_dir: %w", err)
	}
	cfg.Storage.DataDir = absPath

	if cfg.Server.StaticDir != "" {
		if cfg.Server.StaticDir, err = ResolvePath(cfg.Server.StaticDir); err != nil {
			return fmt.Errorf("failed to resolve server.static_dir: %w", err)
		}
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.File, err = ResolvePath(cfg.Logging.File); err != nil {
			return fmt.Errorf("failed to resolve logging.file: %w", err)
		}
	}

	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Server.ExternalURL = strings.TrimRight(cfg.Server.ExternalURL, "/")
	return nil
}

// ResolvePath expands a leading ~ and makes path absolute.
func ResolvePath(path string) (string, error) {
	return filepath.Abs(expandHome(path))
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GetConfigDir returns the user config directory for notepadtt.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".notepadtt"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
