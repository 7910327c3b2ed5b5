package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"invalid level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "sync.log"), MaxSize: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestFileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	logger, err := New(&config.LoggingConfig{Level: "info", File: path, MaxSize: 1})
	require.NoError(t, err)

	logger.WithField("group", "alpha").Info("page fetched")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"group":"alpha"`)
	assert.Contains(t, string(data), `"message":"page fetched"`)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.WarnLevel)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	base := logger.WithField("run_id", "r-1")
	base.WithFields(map[string]interface{}{"group": "alpha", "page": 2}).Info("chained")
	base.Info("parent unchanged")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"run_id":"r-1"`)
	assert.Contains(t, lines[0], `"group":"alpha"`)
	assert.Contains(t, lines[0], `"page":2`)
	assert.NotContains(t, lines[1], `"group"`)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	assert.Same(t, logger, logger.WithError(nil))

	logger.WithError(errors.New("boom")).Error("failed")
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	logger.InfoWithFields("typed", map[string]interface{}{
		"int64":    int64(456),
		"duration": 5 * time.Second,
		"strings":  []string{"a", "b"},
		"custom":   struct{ Name string }{Name: "x"},
	})

	out := buf.String()
	assert.Contains(t, out, `"int64":456`)
	assert.Contains(t, out, `"strings":["a","b"]`)
	assert.Contains(t, out, `"custom":{"Name":"x"}`)
}

func TestTestLoggerCapturesChildren(t *testing.T) {
	logger := NewTestLogger()

	logger.WithField("group", "alpha").WithError(errors.New("status 404")).Error("image download failed")
	logger.Info("done")

	msgs := logger.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "alpha", msgs[0].Fields["group"])
	assert.Equal(t, "status 404", msgs[0].Error)
	assert.True(t, logger.HasError())
	assert.True(t, logger.HasMessage("done"))

	logger.Clear()
	assert.Empty(t, logger.GetMessages())
}
