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

	"nestsync/pkg/logger"
)

// Config holds all configuration options for nestsync
type Config struct {
	// Local application data (SQLite store)
	Store StoreConfig `yaml:"store"`

	// Remote activity feed settings
	Feed FeedConfig `yaml:"feed"`

	// Media download settings
	Download DownloadConfig `yaml:"download"`

	// Auth token storage preferences
	Auth AuthConfig `yaml:"auth"`

	// External EXIF tagging tool
	Exif ExifConfig `yaml:"exif"`

	// Logging configuration
	Logging logger.Config `yaml:"logging"`
}

// StoreConfig holds the local store location
type StoreConfig struct {
	Path string `yaml:"path"`
}

// FeedConfig holds remote feed client configuration
type FeedConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	ClientVersion string        `yaml:"client_version"`
	PageSize      int           `yaml:"page_size"`
	// RequestsPerMinute caps API requests; 0 disables throttling
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// DownloadConfig holds media download configuration
type DownloadConfig struct {
	Directory     string        `yaml:"directory"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	// Concurrency is the number of parallel media downloads
	Concurrency int `yaml:"concurrency"`
}

// AuthConfig holds token storage preferences
type AuthConfig struct {
	// UseKeyring mirrors tokens into the system keychain when available
	UseKeyring bool `yaml:"use_keyring"`
	// EncryptedFile, when set, mirrors tokens into an encrypted file at
	// this path (passphrase from NESTSYNC_TOKEN_KEY)
	EncryptedFile string `yaml:"encrypted_file"`
}

// ExifConfig holds external tagging tool configuration
type ExifConfig struct {
	Binary string `yaml:"binary"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Feed: FeedConfig{
			BaseURL:       "https://schools.mybrightwheel.com/api/v1",
			Timeout:       30 * time.Second,
			UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			ClientVersion: "106",
			PageSize:      25,
			// Roughly a browser session's request rate
			RequestsPerMinute: 60,
		},
		Download: DownloadConfig{
			Directory:     "./media",
			Timeout:       60 * time.Second,
			RetryAttempts: 3,
			Concurrency:   3,
		},
		Auth: AuthConfig{
			UseKeyring: true,
		},
		Exif: ExifConfig{
			Binary: "exiftool",
		},
		Logging: logger.Config{
			Level: "info",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nestsync/app.db"
	}
	return filepath.Join(home, ".nestsync", "app.db")
}

// LoadFromEnv loads configuration overrides from environment variables
func (c *Config) LoadFromEnv() error {
	if path := os.Getenv("NESTSYNC_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if baseURL := os.Getenv("NESTSYNC_FEED_URL"); baseURL != "" {
		c.Feed.BaseURL = baseURL
	}
	if userAgent := os.Getenv("NESTSYNC_USER_AGENT"); userAgent != "" {
		c.Feed.UserAgent = userAgent
	}
	if dir := os.Getenv("NESTSYNC_DOWNLOAD_DIR"); dir != "" {
		c.Download.Directory = dir
	}
	if retries := os.Getenv("NESTSYNC_RETRY_ATTEMPTS"); retries != "" {
		val, err := strconv.Atoi(retries)
		if err != nil || val < 0 {
			return fmt.Errorf("invalid NESTSYNC_RETRY_ATTEMPTS: %q", retries)
		}
		c.Download.RetryAttempts = val
	}
	if concurrency := os.Getenv("NESTSYNC_CONCURRENCY"); concurrency != "" {
		val, err := strconv.Atoi(concurrency)
		if err != nil || val < 1 {
			return fmt.Errorf("invalid NESTSYNC_CONCURRENCY: %q", concurrency)
		}
		c.Download.Concurrency = val
	}
	if rpm := os.Getenv("NESTSYNC_REQUESTS_PER_MINUTE"); rpm != "" {
		val, err := strconv.Atoi(rpm)
		if err != nil || val < 0 {
			return fmt.Errorf("invalid NESTSYNC_REQUESTS_PER_MINUTE: %q", rpm)
		}
		c.Feed.RequestsPerMinute = val
	}
	if keyring := os.Getenv("NESTSYNC_USE_KEYRING"); keyring != "" {
		c.Auth.UseKeyring = strings.ToLower(keyring) == "true"
	}
	if bin := os.Getenv("NESTSYNC_EXIFTOOL"); bin != "" {
		c.Exif.Binary = bin
	}
	if level := os.Getenv("NESTSYNC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("NESTSYNC_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. An empty path falls
// back to well-known locations; a missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile looks for a config file in standard locations
func (c *Config) findConfigFile() string {
	candidates := []string{
		".nestsync.yaml",
		".nestsync.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".nestsync.yaml"),
			filepath.Join(home, ".config", "nestsync", "config.yaml"),
		)
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// MergeCommandLineFlags applies command line flag overrides
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "app-data":
			if v, ok := value.(string); ok && v != "" {
				c.Store.Path = v
			}
		case "dl-dir":
			if v, ok := value.(string); ok && v != "" {
				c.Download.Directory = v
			}
		case "log-level":
			if v, ok := value.(string); ok && v != "" {
				c.Logging.Level = v
			}
		case "exiftool":
			if v, ok := value.(string); ok && v != "" {
				c.Exif.Binary = v
			}
		case "concurrent":
			if v, ok := value.(int); ok && v > 0 {
				c.Download.Concurrency = v
			}
		}
	}
}

// Validate checks the final configuration for consistency
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	if c.Feed.BaseURL == "" {
		errs = append(errs, errors.New("feed base URL is required"))
	}
	if c.Feed.Timeout <= 0 {
		errs = append(errs, errors.New("feed timeout must be positive"))
	}
	if c.Feed.PageSize <= 0 {
		errs = append(errs, errors.New("feed page size must be positive"))
	}
	if c.Download.Directory == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts < 0 {
		errs = append(errs, errors.New("retry attempts cannot be negative"))
	}
	if c.Download.Concurrency < 1 {
		errs = append(errs, errors.New("download concurrency must be at least 1"))
	}
	if c.Feed.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.Exif.Binary == "" {
		errs = append(errs, errors.New("exiftool binary is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true, "": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", c.Logging.Level))
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load builds the effective configuration: defaults, then config file, then
// environment variables, then command line flags, each layer overriding the
// previous one.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Load .env files if present (ignore missing)
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".nestsync.env"))
	}

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
