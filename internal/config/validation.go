package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := validateWatcher(&cfg.Watcher); err != nil {
		return err
	}
	if err := validateLimits(&cfg.Limits); err != nil {
		return err
	}
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	if cfg.ReadTimeoutSec < 1 || cfg.WriteTimeoutSec < 1 {
		return fmt.Errorf("server.read_timeout_sec and server.write_timeout_sec must be at least 1")
	}

	if cfg.ExternalURL != "" {
		if err := validateExternalURL(cfg.ExternalURL, "server.external_url", []string{"http", "https"}); err != nil {
			return err
		}
	}

	for _, origin := range cfg.AllowedOrigins {
		if strings.HasPrefix(origin, "*.") {
			continue
		}
		if err := validateExternalURL(origin, "server.allowed_origins", []string{"http", "https"}); err != nil {
			return err
		}
	}

	// static_dir is checked at startup; a UI directory may be mounted later.
	return nil
}

// validateExternalURL validates that a URL is well-formed and uses an allowed scheme.
func validateExternalURL(rawURL, fieldName string, allowedSchemes []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}

	for _, scheme := range allowedSchemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of these schemes: %s", fieldName, strings.Join(allowedSchemes, ", "))
}

func validateStorage(cfg *StorageConfig) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("storage.data_dir cannot be empty")
	}

	// The directory is created on first write, but it must not be a file.
	info, err := os.Stat(cfg.DataDir)
	if err == nil && !info.IsDir() {
		return fmt.Errorf("storage.data_dir is not a directory: %s", cfg.DataDir)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error accessing storage.data_dir: %w", err)
	}

	for _, field := range []struct {
		name     string
		patterns []string
	}{
		{"storage.include_patterns", cfg.IncludePatterns},
		{"storage.exclude_patterns", cfg.ExcludePatterns},
	} {
		for _, p := range field.patterns {
			if _, err := filepath.Match(p, ""); err != nil {
				return fmt.Errorf("%s has invalid pattern %q: %w", field.name, p, err)
			}
		}
	}

	if cfg.MaxFileSizeKB < 0 {
		return fmt.Errorf("storage.max_file_size_kb cannot be negative")
	}
	return nil
}

func validateWatcher(cfg *WatcherConfig) error {
	if cfg.DebounceMS < 0 {
		return fmt.Errorf("watcher.debounce_ms cannot be negative")
	}
	if cfg.DebounceMS > 10000 {
		return fmt.Errorf("watcher.debounce_ms cannot exceed 10000ms")
	}
	if cfg.MaxReadAttempts < 1 {
		return fmt.Errorf("watcher.max_read_attempts must be at least 1")
	}
	if cfg.RetryBaseMS < 0 || cfg.RetryStepMS < 0 {
		return fmt.Errorf("watcher retry delays cannot be negative")
	}
	if cfg.SelfWriteWindowMS < 1 {
		return fmt.Errorf("watcher.self_write_window_ms must be at least 1")
	}
	return nil
}

func validateLimits(cfg *LimitsConfig) error {
	if cfg.MaxContentKB < 1 {
		return fmt.Errorf("limits.max_content_kb must be at least 1")
	}
	if cfg.MaxContentKB > 10240 { // 10MB max
		return fmt.Errorf("limits.max_content_kb cannot exceed 10240 (10MB)")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	if _, err := zerolog.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("logging.level %q is not a valid level", cfg.Level)
	}
	switch cfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}
	if cfg.File != "" && (cfg.MaxSizeMB < 1 || cfg.MaxBackups < 0) {
		return fmt.Errorf("logging.max_size_mb must be at least 1 and logging.max_backups cannot be negative")
	}
	return nil
}
