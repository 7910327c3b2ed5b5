package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "zsxqsync/pkg/errors"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Groups = []GroupConfig{
		{ID: "51122858222824", Name: "investing", LastDownloadTime: "2024-01-01T00:00:00.000000"},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 10*time.Second, config.Sync.PacingMin)
	assert.Equal(t, 20*time.Second, config.Sync.PacingMax)
	assert.Equal(t, 3, config.Sync.MaxEmptyRetries)
	assert.Equal(t, FormatSQLite, config.Storage.DatasetFormat)
	assert.Equal(t, "./images", config.Storage.ImageRoot)
	assert.Contains(t, config.API.TopicsURL, "%s")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ZSXQSYNC_LOG_LEVEL", "debug")
	t.Setenv("ZSXQSYNC_DATASET_FORMAT", "xlsx")
	t.Setenv("ZSXQSYNC_CONCURRENT_DOWNLOADS", "8")
	t.Setenv("ZSXQSYNC_PACING_MIN", "1s")
	t.Setenv("ZSXQSYNC_PACING_MAX", "2s")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, FormatXLSX, config.Storage.DatasetFormat)
	assert.Equal(t, 8, config.Download.ConcurrentDownloads)
	assert.Equal(t, time.Second, config.Sync.PacingMin)
	assert.Equal(t, 2*time.Second, config.Sync.PacingMax)
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("ZSXQSYNC_CONCURRENT_DOWNLOADS", "many")

	err := DefaultConfig().LoadFromEnv()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{"valid config", func(*Config) {}, false},
		{"beginning sentinel", func(c *Config) { c.Groups[0].LastDownloadTime = "beginning" }, false},
		{"no groups", func(c *Config) { c.Groups = nil }, true},
		{"missing watermark", func(c *Config) { c.Groups[0].LastDownloadTime = "" }, true},
		{"missing name", func(c *Config) { c.Groups[0].Name = "" }, true},
		{"duplicate group", func(c *Config) { c.Groups = append(c.Groups, c.Groups[0]) }, true},
		{"shared name", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{ID: "2", Name: "investing", LastDownloadTime: "beginning"})
		}, true},
		{"name differs only in case", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{ID: "2", Name: "Investing", LastDownloadTime: "beginning"})
		}, true},
		{"names collapse to one file", func(c *Config) {
			c.Groups[0].Name = "a/b"
			c.Groups = append(c.Groups, GroupConfig{ID: "2", Name: "a_b", LastDownloadTime: "beginning"})
		}, true},
		{"distinct names", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{ID: "2", Name: "history", LastDownloadTime: "beginning"})
		}, false},
		{"inverted pacing", func(c *Config) { c.Sync.PacingMin = 30 * time.Second }, true},
		{"bad template", func(c *Config) { c.API.TopicsURL = "https://example.com/topics" }, true},
		{"bad timezone", func(c *Config) { c.Sync.Timezone = "Mars/Olympus" }, true},
		{"bad format", func(c *Config) { c.Storage.DatasetFormat = "csv" }, true},
		{"zero downloads", func(c *Config) { c.Download.ConcurrentDownloads = 0 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `
groups:
  - id: "1001"
    name: alpha
    last_download_time: "2024-01-01T00:00:00.000000"
  - id: "1002"
    name: beta
    last_download_time: beginning
headers:
  Cookie: "zsxq_access_token=abc"
storage:
  dataset_format: xlsx
sync:
  pacing_min: 1s
  pacing_max: 3s
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	config := DefaultConfig()
	require.NoError(t, config.LoadFromFile(configPath))

	require.Len(t, config.Groups, 2)
	assert.Equal(t, "beta", config.Groups[1].Name)
	assert.Equal(t, "beginning", config.Groups[1].LastDownloadTime)
	assert.Equal(t, "zsxq_access_token=abc", config.Headers["Cookie"])
	assert.Equal(t, FormatXLSX, config.Storage.DatasetFormat)
	assert.Equal(t, 3*time.Second, config.Sync.PacingMax)
	// untouched defaults survive
	assert.Equal(t, "./images", config.Storage.ImageRoot)
	assert.NoError(t, config.Validate())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	original := validConfig()
	require.NoError(t, original.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, original.Groups, loaded.Groups)
	assert.Equal(t, original.Sync, loaded.Sync)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := validConfig()
	cfg.Groups = append(cfg.Groups, GroupConfig{ID: "2", Name: "second", LastDownloadTime: "beginning"})

	cfg.MergeCommandLineFlags(map[string]interface{}{
		"log-level":         "warn",
		"concurrent-groups": 2,
		"groups":            []string{"second"},
		"pacing-min":        time.Duration(0),
		"pacing-max":        time.Duration(0),
	})

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Sync.ConcurrentGroups)
	require.Len(t, cfg.Groups, 1)
	assert.Equal(t, "2", cfg.Groups[0].ID)
	assert.Zero(t, cfg.Sync.PacingMax)
}

func TestLoadHeadersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headers.txt")
	content := "# captured from the browser\nCookie: zsxq_access_token=abc; other=1\n\nUser-Agent: test-agent\nX-Timestamp : 123\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	headers, err := LoadHeadersFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Cookie":      "zsxq_access_token=abc; other=1",
		"User-Agent":  "test-agent",
		"X-Timestamp": "123",
	}, headers)
}

func TestLoadHeadersFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headers.txt")
	require.NoError(t, os.WriteFile(path, []byte("no separator here\n"), 0600))

	_, err := LoadHeadersFile(path)
	assert.Error(t, err)
}

func TestRequestHeadersPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headers.txt")
	require.NoError(t, os.WriteFile(path, []byte("Cookie: from-file\nAccept: application/json\n"), 0600))

	cfg := validConfig()
	cfg.HeadersFile = path
	cfg.Headers = map[string]string{"Cookie": "inline"}

	headers, err := cfg.RequestHeaders()
	require.NoError(t, err)
	assert.Equal(t, "inline", headers["Cookie"])
	assert.Equal(t, "application/json", headers["Accept"])
	assert.Equal(t, cfg.API.UserAgent, headers["User-Agent"])
	assert.True(t, HasCookie(headers))
	assert.False(t, HasCookie(map[string]string{"Accept": "x"}))
}

func TestSources(t *testing.T) {
	cfg := validConfig()
	cfg.Groups = append(cfg.Groups, GroupConfig{ID: "2", Name: "history", LastDownloadTime: "beginning"})

	sources, err := cfg.Sources(time.UTC)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "investing", sources[0].Name)
	assert.False(t, sources[0].Watermark.FromBeginning)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), sources[0].Watermark.At)
	assert.True(t, sources[1].Watermark.FromBeginning)

	cfg.Groups[0].LastDownloadTime = "yesterday"
	_, err = cfg.Sources(time.UTC)
	require.Error(t, err)
	assert.True(t, errs.IsParseError(err))
	assert.Contains(t, err.Error(), "51122858222824")
}
