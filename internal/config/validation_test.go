package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestValidate(t *testing.T) {
	fileDir := t.TempDir()
	notADir := filepath.Join(fileDir, "file")
	if err := os.WriteFile(notADir, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 65536 }, "server.port"},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host"},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeoutSec = 0 }, "read_timeout_sec"},
		{"negative write timeout", func(c *Config) { c.Server.WriteTimeoutSec = -1 }, "write_timeout_sec"},
		{"external url without host", func(c *Config) { c.Server.ExternalURL = "https://" }, "must include a host"},
		{"external url bad scheme", func(c *Config) { c.Server.ExternalURL = "ftp://example.com" }, "schemes"},
		{"external url ok", func(c *Config) { c.Server.ExternalURL = "https://example.com" }, ""},
		{"data dir missing is fine", func(c *Config) { c.Storage.DataDir = filepath.Join(fileDir, "later") }, ""},
		{"data dir is a file", func(c *Config) { c.Storage.DataDir = notADir }, "not a directory"},
		{"bad include pattern", func(c *Config) { c.Storage.IncludePatterns = []string{"[abc"} }, "storage.include_patterns"},
		{"bad exclude pattern", func(c *Config) { c.Storage.ExcludePatterns = []string{"[abc"} }, "storage.exclude_patterns"},
		{"negative file size", func(c *Config) { c.Storage.MaxFileSizeKB = -1 }, "max_file_size_kb"},
		{"negative debounce", func(c *Config) { c.Watcher.DebounceMS = -1 }, "debounce_ms"},
		{"huge debounce", func(c *Config) { c.Watcher.DebounceMS = 10001 }, "debounce_ms"},
		{"no read attempts", func(c *Config) { c.Watcher.MaxReadAttempts = 0 }, "max_read_attempts"},
		{"negative retry", func(c *Config) { c.Watcher.RetryStepMS = -5 }, "retry"},
		{"zero self write window", func(c *Config) { c.Watcher.SelfWriteWindowMS = 0 }, "self_write_window_ms"},
		{"zero content limit", func(c *Config) { c.Limits.MaxContentKB = 0 }, "max_content_kb"},
		{"huge content limit", func(c *Config) { c.Limits.MaxContentKB = 10241 }, "max_content_kb"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log file without size", func(c *Config) {
			c.Logging.File = filepath.Join(fileDir, "app.log")
			c.Logging.MaxSizeMB = 0
		}, "max_size_mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
