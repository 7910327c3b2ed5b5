package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/dataset"
	"zsxqsync/pkg/models"
	"zsxqsync/pkg/watermark"
)

func statusConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DatasetDir = dir
	cfg.Storage.StateDir = filepath.Join(dir, "state")
	cfg.Groups = []config.GroupConfig{
		{ID: "111", Name: "alpha", LastDownloadTime: "2024-01-01T00:00:00.000000"},
		{ID: "222", Name: "beta", LastDownloadTime: "beginning"},
	}
	return cfg
}

func TestCollectStatus(t *testing.T) {
	cfg := statusConfig(t)

	store, err := watermark.NewStore(cfg.Storage.StateDir, nil)
	require.NoError(t, err)
	_, err = store.Advance("111", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), watermark.Note{GroupName: "alpha"})
	require.NoError(t, err)

	ds, err := dataset.Open(cfg.Storage.DatasetDir, "alpha", cfg.Storage.DatasetFormat)
	require.NoError(t, err)
	for _, id := range []int64{1, 2} {
		_, err := ds.Append(context.Background(), &models.Topic{TopicID: id, Date: "2024-02-01T10:00:00.000+0800"})
		require.NoError(t, err)
	}
	require.NoError(t, ds.Close())

	rows, err := collectStatus(cfg, store)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "stored", rows[0].Source)
	assert.Equal(t, "2024-03-01T12:00:00.000000", rows[0].Watermark)
	assert.Equal(t, 2, rows[0].Topics)

	assert.Equal(t, "config", rows[1].Source)
	assert.Equal(t, "beginning", rows[1].Watermark)
	assert.Equal(t, -1, rows[1].Topics)

	var out bytes.Buffer
	renderStatus(&out, rows)
	assert.Contains(t, out.String(), "alpha")
	assert.Contains(t, out.String(), "beginning")
}

func TestFindGroup(t *testing.T) {
	cfg := statusConfig(t)

	g, ok := findGroup(cfg, "222")
	require.True(t, ok)
	assert.Equal(t, "beta", g.Name)

	g, ok = findGroup(cfg, "ALPHA")
	require.True(t, ok)
	assert.Equal(t, "111", g.ID)

	_, ok = findGroup(cfg, "gamma")
	assert.False(t, ok)
}

func TestReadSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"line", "abc123\n", "abc123"},
		{"no trailing newline", "  abc123 ", "abc123"},
		{"only first line", "first\nsecond\n", "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readSecret(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := readSecret(strings.NewReader(""))
	assert.Error(t, err)
}

func TestResetGroupFallsBackToConfig(t *testing.T) {
	cfg := statusConfig(t)

	store, err := watermark.NewStore(cfg.Storage.StateDir, nil)
	require.NoError(t, err)
	_, err = store.Advance("111", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), watermark.Note{GroupName: "alpha"})
	require.NoError(t, err)

	require.NoError(t, resetGroup(store, cfg.Groups[0]))
	require.NoError(t, resetGroup(store, cfg.Groups[1]), "a group without a stored watermark is a no-op")

	rows, err := collectStatus(cfg, store)
	require.NoError(t, err)
	assert.Equal(t, "config", rows[0].Source)
	assert.Equal(t, "2024-01-01T00:00:00.000000", rows[0].Watermark)
}
