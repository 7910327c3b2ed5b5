// Package dataset persists translated topics, one dataset per group, with
// de-duplication by topic id.
package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"zsxqsync/pkg/models"
)

// Columns is the persisted row layout
var Columns = []string{"topic_id", "author", "title", "date", "content", "images", "files"}

const (
	FormatSQLite = "sqlite"
	FormatXLSX   = "xlsx"
)

// Dataset is the append-only topic table of one group. Append skips ids
// already present, including those written by earlier runs.
type Dataset interface {
	Has(topicID int64) bool
	Append(ctx context.Context, t *models.Topic) (bool, error)
	// Flush makes appended rows durable
	Flush() error
	Count() int
	Topics(ctx context.Context) ([]models.Topic, error)
	Path() string
	Close() error
}

// FileName returns zsxq-<group>.<ext> for the format
func FileName(groupName, format string) string {
	ext := "db"
	if strings.EqualFold(format, FormatXLSX) {
		ext = "xlsx"
	}
	return fmt.Sprintf("zsxq-%s.%s", safeName(groupName), ext)
}

// Key identifies the dataset file of a group regardless of letter case, so
// two groups with the same Key would write the same file.
func Key(groupName, format string) string {
	return strings.ToLower(FileName(groupName, format))
}

// Open opens or creates the dataset of a group in dir
func Open(dir, groupName, format string) (Dataset, error) {
	path := filepath.Join(dir, FileName(groupName, format))
	switch strings.ToLower(format) {
	case FormatSQLite, "":
		return OpenSQLite(path)
	case FormatXLSX:
		return OpenXLSX(path)
	default:
		return nil, fmt.Errorf("unknown dataset format %q", format)
	}
}

func safeName(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(name))
}

func row(t *models.Topic) []interface{} {
	return []interface{}{
		fmt.Sprintf("%d", t.TopicID),
		t.Author,
		t.Title,
		t.Date,
		t.Content,
		t.ImageList(),
		t.FileList(),
	}
}
