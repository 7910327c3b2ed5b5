package storage

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
)

// DefaultImageExt is used when an image URL carries no extension
const DefaultImageExt = ".jpg"

// Manager lays out downloaded assets on disk and writes them atomically.
// Every path is a pure function of (group, topic, index, locator), so an
// existing file is proof of a previous successful download.
type Manager struct {
	imageRoot string
	fileRoot  string
	saved     atomic.Int64
	bytes     atomic.Int64
}

// NewManager creates a new storage manager
func NewManager(imageRoot, fileRoot string) (*Manager, error) {
	for _, dir := range []string{imageRoot, fileRoot} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	return &Manager{imageRoot: imageRoot, fileRoot: fileRoot}, nil
}

// ImagePath returns <image_root>/<group>/<topic_id>/<index><ext>, taking the
// extension from the URL path.
func (m *Manager) ImagePath(group string, topicID int64, index int, imageURL string) string {
	return filepath.Join(m.imageRoot, safeName(group), strconv.FormatInt(topicID, 10), strconv.Itoa(index)+imageExt(imageURL))
}

// FilePath returns <file_root>/<group>/<topic_id>/<index>_<name>
func (m *Manager) FilePath(group string, topicID int64, index int, name string) string {
	return filepath.Join(m.fileRoot, safeName(group), strconv.FormatInt(topicID, 10), fmt.Sprintf("%d_%s", index, safeName(name)))
}

// Exists reports whether a completed asset is present at p
func (m *Manager) Exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Save streams r into dst through a temporary file in the same directory and
// renames it into place. On any failure dst is left untouched.
func (m *Manager) Save(dst string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create asset directory: %w", err)
	}

	out, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to write asset data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, dst); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.saved.Add(1)
	m.bytes.Add(n)
	return n, nil
}

// SavedCount returns the number of assets written by this manager
func (m *Manager) SavedCount() int64 {
	return m.saved.Load()
}

// SavedBytes returns the number of bytes written by this manager
func (m *Manager) SavedBytes() int64 {
	return m.bytes.Load()
}

func imageExt(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return DefaultImageExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 6 {
		return DefaultImageExt
	}
	return ext
}

// safeName keeps a remote-provided name inside its parent directory
func safeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
