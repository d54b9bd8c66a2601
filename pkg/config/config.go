package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxConcurrentDownloads caps the download worker pool size
const MaxConcurrentDownloads = 32

// Config holds all configuration options for likesync
type Config struct {
	// X API credentials and tracked accounts
	Twitter TwitterConfig `yaml:"twitter" json:"twitter"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Where downloaded media lands
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// TwitterConfig holds X API configuration
type TwitterConfig struct {
	BearerToken    string        `yaml:"bearer_token" json:"bearer_token"`
	Usernames      []string      `yaml:"usernames" json:"usernames"`
	PollInterval   time.Duration `yaml:"poll_interval" json:"poll_interval"`
	PageSize       int           `yaml:"page_size" json:"page_size"`
	APIBaseURL     string        `yaml:"api_base_url" json:"api_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// StorageConfig holds output directory configuration
type StorageConfig struct {
	Directory       string `yaml:"directory" json:"directory"`
	CreateDirectory bool   `yaml:"create_directory" json:"create_directory"`
	WriteManifest   bool   `yaml:"write_manifest" json:"write_manifest"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// MetricsConfig holds the metrics listener address; empty disables it
type MetricsConfig struct {
	Address string `yaml:"address" json:"address"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			PollInterval:   5 * time.Second,
			PageSize:       50,
			APIBaseURL:     "https://api.twitter.com/2",
			RequestTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         5,
			MaxRetries:        3,
			RetryDelay:        time.Second,
		},
		Storage: StorageConfig{
			Directory:       "./pic",
			CreateDirectory: false,
			WriteManifest:   true,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 4,
			Timeout:             60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from LIKESYNC_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if token := os.Getenv("LIKESYNC_BEARER_TOKEN"); token != "" {
		c.Twitter.BearerToken = token
	}
	if usernames := os.Getenv("LIKESYNC_USERNAMES"); usernames != "" {
		c.Twitter.Usernames = splitList(usernames)
	}
	if baseURL := os.Getenv("LIKESYNC_API_BASE_URL"); baseURL != "" {
		c.Twitter.APIBaseURL = baseURL
	}
	if interval := os.Getenv("LIKESYNC_POLL_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("LIKESYNC_POLL_INTERVAL: %w", err))
		} else {
			c.Twitter.PollInterval = d
		}
	}
	if pageSize := os.Getenv("LIKESYNC_PAGE_SIZE"); pageSize != "" {
		if val, err := strconv.Atoi(pageSize); err != nil {
			errs = append(errs, fmt.Errorf("LIKESYNC_PAGE_SIZE: %w", err))
		} else {
			c.Twitter.PageSize = val
		}
	}

	if rpm := os.Getenv("LIKESYNC_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err != nil {
			errs = append(errs, fmt.Errorf("LIKESYNC_REQUESTS_PER_MINUTE: %w", err))
		} else if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	if outputDir := os.Getenv("LIKESYNC_OUTPUT_DIR"); outputDir != "" {
		c.Storage.Directory = outputDir
	}

	if concurrent := os.Getenv("LIKESYNC_CONCURRENT_DOWNLOADS"); concurrent != "" {
		if val, err := strconv.Atoi(concurrent); err != nil {
			errs = append(errs, fmt.Errorf("LIKESYNC_CONCURRENT_DOWNLOADS: %w", err))
		} else if val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}

	if logLevel := os.Getenv("LIKESYNC_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("LIKESYNC_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}
	if addr := os.Getenv("LIKESYNC_METRICS_ADDR"); addr != "" {
		c.Metrics.Address = addr
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for a config file in the standard locations
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".likesync.yaml",
		".likesync.yml",
		"config.yaml",
		filepath.Join(home, ".config", "likesync", "config.yaml"),
		filepath.Join(home, ".config", "likesync", "config.yml"),
		filepath.Join(home, ".likesync.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// DefaultConfigPath is where `config init` writes when no path is given
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "likesync", "config.yaml")
}

// Validate checks if the configuration is valid. Credentials are checked
// separately by RequireCredentials because they may come from the keyring.
func (c *Config) Validate() error {
	var errs []error

	if c.Twitter.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Twitter.APIBaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}
	if c.Twitter.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > MaxConcurrentDownloads {
		errs = append(errs, fmt.Errorf("concurrent downloads should not exceed %d", MaxConcurrentDownloads))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.Storage.Directory == "" {
		errs = append(errs, errors.New("storage directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// RequireCredentials reports whether a token and at least one tracked
// username are configured
func (c *Config) RequireCredentials() error {
	var errs []error
	if c.Twitter.BearerToken == "" {
		errs = append(errs, errors.New("bearer token is required (config, LIKESYNC_BEARER_TOKEN or `likesync auth login`)"))
	}
	if len(c.Twitter.Usernames) == 0 {
		errs = append(errs, errors.New("at least one username to track is required"))
	}
	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are ignored so unset flags never clobber other sources.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if token, ok := flags["bearer-token"].(string); ok && token != "" {
		c.Twitter.BearerToken = token
	}
	if users, ok := flags["user"].([]string); ok && len(users) > 0 {
		c.Twitter.Usernames = users
	}
	if interval, ok := flags["interval"].(time.Duration); ok && interval > 0 {
		c.Twitter.PollInterval = interval
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Storage.Directory = outputDir
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.Address = addr
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".likesync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// ExampleYAML is the template written by `likesync config init`
const ExampleYAML = `# likesync configuration
twitter:
  # App bearer token; can also come from LIKESYNC_BEARER_TOKEN or the keyring
  bearer_token: ""
  # Accounts whose likes are mirrored
  usernames:
    - "@elonmusk"
  poll_interval: 5s
  page_size: 50
  api_base_url: https://api.twitter.com/2
  request_timeout: 30s

rate_limit:
  requests_per_minute: 60
  burst_size: 5
  max_retries: 3
  retry_delay: 1s

storage:
  directory: ./pic
  create_directory: false
  write_manifest: true

download:
  concurrent_downloads: 4
  timeout: 60s

logging:
  level: info
  file: ""

metrics:
  # e.g. ":9090"; empty disables the endpoint
  address: ""
`

// WriteExample writes ExampleYAML to path, refusing to overwrite unless force
func WriteExample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(ExampleYAML), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
