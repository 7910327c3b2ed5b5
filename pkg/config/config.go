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

	"zsxqsync/pkg/dataset"
)

// Config holds all configuration options for zsxqsync
type Config struct {
	// Remote API endpoints and transport settings
	API APIConfig `yaml:"api" json:"api"`

	// Groups to backfill, in run order
	Groups []GroupConfig `yaml:"groups" json:"groups"`

	// Request headers sent with every API call
	Headers map[string]string `yaml:"headers" json:"headers"`

	// Optional legacy headers file with one "Key: Value" per line
	HeadersFile string `yaml:"headers_file" json:"headers_file"`

	// Where assets, datasets and run state live
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Pagination and pacing
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Asset download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds the feed and file endpoints. Both URLs are fmt templates
// taking the group id and the file id respectively.
type APIConfig struct {
	TopicsURL       string        `yaml:"topics_url" json:"topics_url"`
	FileDownloadURL string        `yaml:"file_download_url" json:"file_download_url"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent       string        `yaml:"user_agent" json:"user_agent"`
	Account         string        `yaml:"account" json:"account"`
}

// GroupConfig describes one group. LastDownloadTime is either a timestamp
// or the literal "beginning".
type GroupConfig struct {
	ID               string `yaml:"id" json:"id"`
	Name             string `yaml:"name" json:"name"`
	LastDownloadTime string `yaml:"last_download_time" json:"last_download_time"`
}

// StorageConfig holds output locations
type StorageConfig struct {
	ImageRoot     string `yaml:"image_root" json:"image_root"`
	FileRoot      string `yaml:"file_root" json:"file_root"`
	DatasetDir    string `yaml:"dataset_dir" json:"dataset_dir"`
	DatasetFormat string `yaml:"dataset_format" json:"dataset_format"`
	StateDir      string `yaml:"state_dir" json:"state_dir"`
}

// SyncConfig holds backfill loop settings
type SyncConfig struct {
	PacingMin        time.Duration `yaml:"pacing_min" json:"pacing_min"`
	PacingMax        time.Duration `yaml:"pacing_max" json:"pacing_max"`
	MaxEmptyRetries  int           `yaml:"max_empty_retries" json:"max_empty_retries"`
	ConcurrentGroups int           `yaml:"concurrent_groups" json:"concurrent_groups"`
	Timezone         string        `yaml:"timezone" json:"timezone"`
}

// DownloadConfig holds asset download settings
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	RetryAttempts       int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay          time.Duration `yaml:"retry_delay" json:"retry_delay"`
	RequestsPerMinute   int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

const (
	FormatSQLite = dataset.FormatSQLite
	FormatXLSX   = dataset.FormatXLSX
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			TopicsURL:       "https://api.zsxq.com/v2/groups/%s/topics?scope=all&count=20",
			FileDownloadURL: "https://api.zsxq.com/v2/files/%s/download_url",
			Timeout:         60 * time.Second,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		Headers: map[string]string{},
		Storage: StorageConfig{
			ImageRoot:     "./images",
			FileRoot:      "./files",
			DatasetDir:    ".",
			DatasetFormat: FormatSQLite,
			StateDir:      "./.zsxqsync",
		},
		Sync: SyncConfig{
			PacingMin:        10 * time.Second,
			PacingMax:        20 * time.Second,
			MaxEmptyRetries:  3,
			ConcurrentGroups: 1,
			Timezone:         "Asia/Shanghai",
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 4,
			RetryAttempts:       3,
			RetryDelay:          2 * time.Second,
			RequestsPerMinute:   120,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("ZSXQSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ZSXQSYNC_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("ZSXQSYNC_DATASET_FORMAT"); v != "" {
		c.Storage.DatasetFormat = v
	}
	if v := os.Getenv("ZSXQSYNC_STATE_DIR"); v != "" {
		c.Storage.StateDir = v
	}
	if v := os.Getenv("ZSXQSYNC_HEADERS_FILE"); v != "" {
		c.HeadersFile = v
	}
	if v := os.Getenv("ZSXQSYNC_ACCOUNT"); v != "" {
		c.API.Account = v
	}

	if v := os.Getenv("ZSXQSYNC_CONCURRENT_DOWNLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ZSXQSYNC_CONCURRENT_DOWNLOADS: %w", err)
		}
		c.Download.ConcurrentDownloads = n
	}

	for name, target := range map[string]*time.Duration{
		"ZSXQSYNC_PACING_MIN": &c.Sync.PacingMin,
		"ZSXQSYNC_PACING_MAX": &c.Sync.PacingMax,
	} {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*target = d
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		"zsxqsync.yaml",
		"zsxqsync.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "zsxqsync", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "zsxqsync", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Location resolves the configured timezone used to normalize timestamps
func (c *Config) Location() (*time.Location, error) {
	if c.Sync.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Sync.Timezone)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if !strings.Contains(c.API.TopicsURL, "%s") {
		errs = append(errs, errors.New("api.topics_url must contain a %s placeholder for the group id"))
	}
	if !strings.Contains(c.API.FileDownloadURL, "%s") {
		errs = append(errs, errors.New("api.file_download_url must contain a %s placeholder for the file id"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api timeout must be positive"))
	}

	if len(c.Groups) == 0 {
		errs = append(errs, errors.New("at least one group is required"))
	}
	seen := make(map[string]bool)
	datasets := make(map[string]string)
	for i, g := range c.Groups {
		if g.ID == "" {
			errs = append(errs, fmt.Errorf("groups[%d]: id is required", i))
		}
		if g.Name == "" {
			errs = append(errs, fmt.Errorf("groups[%d]: name is required", i))
		}
		if strings.TrimSpace(g.LastDownloadTime) == "" {
			errs = append(errs, fmt.Errorf("groups[%d]: last_download_time is required (a timestamp or \"beginning\")", i))
		}
		if seen[g.ID] {
			errs = append(errs, fmt.Errorf("groups[%d]: duplicate id %s", i, g.ID))
		}
		seen[g.ID] = true

		if g.Name != "" {
			key := dataset.Key(g.Name, c.Storage.DatasetFormat)
			if other, ok := datasets[key]; ok {
				errs = append(errs, fmt.Errorf("groups[%d]: name %q maps to the same dataset file as group %s", i, g.Name, other))
			} else {
				datasets[key] = g.ID
			}
		}
	}

	if c.Sync.PacingMin < 0 || c.Sync.PacingMax < c.Sync.PacingMin {
		errs = append(errs, errors.New("sync pacing must satisfy 0 <= pacing_min <= pacing_max"))
	}
	if c.Sync.MaxEmptyRetries <= 0 {
		errs = append(errs, errors.New("max empty retries must be positive"))
	}
	if c.Sync.ConcurrentGroups <= 0 {
		errs = append(errs, errors.New("concurrent groups must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone: %w", err))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 16 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 16"))
	}
	if c.Download.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}
	if c.Download.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Storage.ImageRoot == "" || c.Storage.FileRoot == "" || c.Storage.DatasetDir == "" || c.Storage.StateDir == "" {
		errs = append(errs, errors.New("storage directories are required"))
	}
	switch strings.ToLower(c.Storage.DatasetFormat) {
	case FormatSQLite, FormatXLSX:
	default:
		errs = append(errs, fmt.Errorf("invalid dataset format %q", c.Storage.DatasetFormat))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
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

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if level, ok := flags["log-level"].(string); ok && level != "" {
		c.Logging.Level = level
	}
	if format, ok := flags["dataset-format"].(string); ok && format != "" {
		c.Storage.DatasetFormat = format
	}
	if n, ok := flags["concurrent-groups"].(int); ok && n > 0 {
		c.Sync.ConcurrentGroups = n
	}
	if n, ok := flags["concurrent-downloads"].(int); ok && n > 0 {
		c.Download.ConcurrentDownloads = n
	}
	if d, ok := flags["pacing-min"].(time.Duration); ok {
		c.Sync.PacingMin = d
	}
	if d, ok := flags["pacing-max"].(time.Duration); ok {
		c.Sync.PacingMax = d
	}
	if account, ok := flags["account"].(string); ok && account != "" {
		c.API.Account = account
	}
	if ids, ok := flags["groups"].([]string); ok && len(ids) > 0 {
		c.Groups = c.filterGroups(ids)
	}
}

// filterGroups keeps the configured groups whose id or name is listed
func (c *Config) filterGroups(ids []string) []GroupConfig {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []GroupConfig
	for _, g := range c.Groups {
		if want[g.ID] || want[g.Name] {
			out = append(out, g)
		}
	}
	return out
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".zsxqsync.env"))

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
