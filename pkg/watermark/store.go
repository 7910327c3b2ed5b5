package watermark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/models"
)

// FileName is the store file inside the state directory
const FileName = "watermarks.json"

const storeVersion = 1

// Entry is the persisted watermark of one group
type Entry struct {
	GroupID   string    `json:"group_id"`
	GroupName string    `json:"group_name,omitempty"`
	Watermark string    `json:"watermark"`
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type document struct {
	Version int               `json:"version"`
	Groups  map[string]*Entry `json:"groups"`
}

// Note describes the run that produced a watermark
type Note struct {
	GroupName string
	RunID     string
}

// Store keeps one watermark per group in a JSON file that is replaced
// atomically on every write.
type Store struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// NewStore creates a store under stateDir
func NewStore(stateDir string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{path: filepath.Join(stateDir, FileName), logger: log}, nil
}

// Path returns the store file path
func (s *Store) Path() string {
	return s.path
}

// Get returns the stored watermark of a group. ok is false when the group
// has never completed a run.
func (s *Store) Get(groupID string) (models.Watermark, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return models.Watermark{}, false, err
	}
	entry, ok := doc.Groups[groupID]
	if !ok {
		return models.Watermark{}, false, nil
	}

	wm, err := models.ParseWatermark(entry.Watermark, time.UTC)
	if err != nil {
		return models.Watermark{}, false, fmt.Errorf("stored watermark of group %s: %w", groupID, err)
	}
	return wm, true, nil
}

// Entries returns every stored entry sorted by group id
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(doc.Groups))
	for _, e := range doc.Groups {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].GroupID < entries[j].GroupID })
	return entries, nil
}

// Advance moves a group's watermark forward to `to`. It never moves it
// backwards: advanced is false and nothing is written when `to` is not
// after the stored value.
func (s *Store) Advance(groupID string, to time.Time, note Note) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}

	if entry, ok := doc.Groups[groupID]; ok {
		current, err := models.ParseWatermark(entry.Watermark, time.UTC)
		if err == nil && !current.FromBeginning && !to.After(current.At) {
			s.logger.WarnWithFields("refusing to move watermark backwards", map[string]interface{}{
				"group_id": groupID,
				"stored":   entry.Watermark,
				"proposed": models.At(to).String(),
			})
			return false, nil
		}
	}

	doc.Groups[groupID] = &Entry{
		GroupID:   groupID,
		GroupName: note.GroupName,
		Watermark: models.At(to).String(),
		RunID:     note.RunID,
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.save(doc); err != nil {
		return false, err
	}

	s.logger.DebugWithFields("watermark saved", map[string]interface{}{
		"group_id":  groupID,
		"watermark": models.At(to).String(),
	})
	return true, nil
}

// Reset forgets a group's watermark so the next run falls back to the
// configured seed.
func (s *Store) Reset(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Groups[groupID]; !ok {
		return nil
	}
	delete(doc.Groups, groupID)
	return s.save(doc)
}

func (s *Store) load() (*document, error) {
	doc := &document{Version: storeVersion, Groups: map[string]*Entry{}}

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to open watermark file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode watermark file: %w", err)
	}
	if doc.Groups == nil {
		doc.Groups = map[string]*Entry{}
	}
	return doc, nil
}

// save writes doc to a temporary file, syncs it and renames it over the
// store file.
func (s *Store) save(doc *document) error {
	doc.Version = storeVersion

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary watermark file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode watermarks: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync watermark file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close watermark file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace watermark file: %w", err)
	}
	return nil
}
