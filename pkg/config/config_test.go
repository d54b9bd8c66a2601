package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Twitter.PollInterval != 5*time.Second {
		t.Errorf("Expected default poll interval to be 5s, got %s", config.Twitter.PollInterval)
	}

	if config.Twitter.PageSize != 50 {
		t.Errorf("Expected default page size to be 50, got %d", config.Twitter.PageSize)
	}

	if config.Download.ConcurrentDownloads != 4 {
		t.Errorf("Expected default concurrent downloads to be 4, got %d", config.Download.ConcurrentDownloads)
	}

	if config.Storage.Directory != "./pic" {
		t.Errorf("Expected default storage directory to be ./pic, got %s", config.Storage.Directory)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LIKESYNC_BEARER_TOKEN", "env-token")
	t.Setenv("LIKESYNC_USERNAMES", "@alice, bob ,")
	t.Setenv("LIKESYNC_POLL_INTERVAL", "30s")
	t.Setenv("LIKESYNC_REQUESTS_PER_MINUTE", "30")
	t.Setenv("LIKESYNC_OUTPUT_DIR", "/tmp/test-pic")
	t.Setenv("LIKESYNC_CONCURRENT_DOWNLOADS", "8")
	t.Setenv("LIKESYNC_LOG_LEVEL", "debug")
	t.Setenv("LIKESYNC_METRICS_ADDR", ":9100")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.Twitter.BearerToken != "env-token" {
		t.Errorf("Expected bearer token to be env-token, got %s", config.Twitter.BearerToken)
	}

	if len(config.Twitter.Usernames) != 2 || config.Twitter.Usernames[0] != "@alice" || config.Twitter.Usernames[1] != "bob" {
		t.Errorf("Expected usernames [@alice bob], got %v", config.Twitter.Usernames)
	}

	if config.Twitter.PollInterval != 30*time.Second {
		t.Errorf("Expected poll interval to be 30s, got %s", config.Twitter.PollInterval)
	}

	if config.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("Expected requests per minute to be 30, got %d", config.RateLimit.RequestsPerMinute)
	}

	if config.Storage.Directory != "/tmp/test-pic" {
		t.Errorf("Expected storage directory to be /tmp/test-pic, got %s", config.Storage.Directory)
	}

	if config.Download.ConcurrentDownloads != 8 {
		t.Errorf("Expected concurrent downloads to be 8, got %d", config.Download.ConcurrentDownloads)
	}

	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}

	if config.Metrics.Address != ":9100" {
		t.Errorf("Expected metrics address to be :9100, got %s", config.Metrics.Address)
	}
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("LIKESYNC_POLL_INTERVAL", "often")
	t.Setenv("LIKESYNC_PAGE_SIZE", "many")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	if err == nil {
		t.Fatal("Expected error for invalid environment values")
	}
	if !strings.Contains(err.Error(), "LIKESYNC_POLL_INTERVAL") || !strings.Contains(err.Error(), "LIKESYNC_PAGE_SIZE") {
		t.Errorf("Expected both variables to be reported, got %v", err)
	}
	if config.Twitter.PollInterval != 5*time.Second {
		t.Errorf("Expected poll interval to stay at default, got %s", config.Twitter.PollInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
	}{
		{
			name:      "valid config",
			modify:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "zero poll interval",
			modify:    func(c *Config) { c.Twitter.PollInterval = 0 },
			wantError: true,
		},
		{
			name:      "too many concurrent downloads",
			modify:    func(c *Config) { c.Download.ConcurrentDownloads = MaxConcurrentDownloads + 1 },
			wantError: true,
		},
		{
			name:      "missing storage directory",
			modify:    func(c *Config) { c.Storage.Directory = "" },
			wantError: true,
		},
		{
			name:      "invalid log level",
			modify:    func(c *Config) { c.Logging.Level = "invalid" },
			wantError: true,
		},
		{
			name:      "credentials are not checked",
			modify:    func(c *Config) { c.Twitter.BearerToken = "" },
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	config := DefaultConfig()
	config.RateLimit.RequestsPerMinute = 0
	config.Download.Timeout = 0

	err := config.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "requests per minute") || !strings.Contains(msg, "download timeout") {
		t.Errorf("Expected both problems in %q", msg)
	}
}

func TestRequireCredentials(t *testing.T) {
	config := DefaultConfig()
	if err := config.RequireCredentials(); err == nil {
		t.Error("Expected error without token and usernames")
	}

	config.Twitter.BearerToken = "token"
	config.Twitter.Usernames = []string{"@alice"}
	if err := config.RequireCredentials(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()

	flags := map[string]interface{}{
		"user":       []string{"@carol"},
		"interval":   time.Minute,
		"output":     "/flag/output",
		"concurrent": 7,
		"log-level":  "error",
		// zero values must not clobber
		"bearer-token": "",
	}
	config.Twitter.BearerToken = "keep-me"

	config.MergeCommandLineFlags(flags)

	if config.Twitter.BearerToken != "keep-me" {
		t.Errorf("Expected bearer token to be kept, got %s", config.Twitter.BearerToken)
	}

	if len(config.Twitter.Usernames) != 1 || config.Twitter.Usernames[0] != "@carol" {
		t.Errorf("Expected usernames [@carol], got %v", config.Twitter.Usernames)
	}

	if config.Twitter.PollInterval != time.Minute {
		t.Errorf("Expected poll interval to be 1m, got %s", config.Twitter.PollInterval)
	}

	if config.Storage.Directory != "/flag/output" {
		t.Errorf("Expected storage directory to be /flag/output, got %s", config.Storage.Directory)
	}

	if config.Download.ConcurrentDownloads != 7 {
		t.Errorf("Expected concurrent downloads to be 7, got %d", config.Download.ConcurrentDownloads)
	}

	if config.Logging.Level != "error" {
		t.Errorf("Expected log level to be error, got %s", config.Logging.Level)
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := DefaultConfig()
	config.Twitter.BearerToken = "save-test-token"
	config.Twitter.Usernames = []string{"@N_ever2_give_up"}
	config.Download.ConcurrentDownloads = 8

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Failed to stat config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected config permissions 0600, got %v", info.Mode().Perm())
	}

	loadedConfig := DefaultConfig()
	if err := loadedConfig.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loadedConfig.Twitter.BearerToken != "save-test-token" {
		t.Errorf("Expected loaded token to be save-test-token, got %s", loadedConfig.Twitter.BearerToken)
	}

	if len(loadedConfig.Twitter.Usernames) != 1 || loadedConfig.Twitter.Usernames[0] != "@N_ever2_give_up" {
		t.Errorf("Expected loaded usernames, got %v", loadedConfig.Twitter.Usernames)
	}

	if loadedConfig.Download.ConcurrentDownloads != 8 {
		t.Errorf("Expected loaded concurrent downloads to be 8, got %d", loadedConfig.Download.ConcurrentDownloads)
	}
}

func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := WriteExample(path, false); err != nil {
		t.Fatalf("Failed to write example: %v", err)
	}

	if err := WriteExample(path, false); err == nil {
		t.Error("Expected error when the file already exists")
	}

	if err := WriteExample(path, true); err != nil {
		t.Errorf("Expected force to overwrite, got %v", err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(path); err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Expected example config to validate, got %v", err)
	}
	if config.Twitter.PollInterval != 5*time.Second {
		t.Errorf("Expected example poll interval 5s, got %s", config.Twitter.PollInterval)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	t.Setenv("HOME", dir)

	path := filepath.Join(dir, "config.yaml")
	content := "storage:\n  directory: /from/file\ndownload:\n  concurrent_downloads: 2\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIKESYNC_CONCURRENT_DOWNLOADS", "6")

	config, err := Load(path, map[string]interface{}{"log-level": "warn"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Storage.Directory != "/from/file" {
		t.Errorf("Expected file value, got %s", config.Storage.Directory)
	}
	if config.Download.ConcurrentDownloads != 6 {
		t.Errorf("Expected env to override file, got %d", config.Download.ConcurrentDownloads)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("Expected flag to override, got %s", config.Logging.Level)
	}
}
