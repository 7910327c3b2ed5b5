package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"zsxqsync/pkg/models"
)

// Migration is a single schema migration step
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "topics table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS topics (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id INTEGER UNIQUE NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    images TEXT NOT NULL DEFAULT '',
    files TEXT NOT NULL DEFAULT '',
    stored_at TEXT DEFAULT (datetime('now'))
);`)
			return err
		},
	},
	{
		Version:     2,
		Description: "created_at column for range queries",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`ALTER TABLE topics ADD COLUMN created_at TEXT NOT NULL DEFAULT ''`); err != nil {
				return err
			}
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_topics_created_at ON topics(created_at)`)
			return err
		},
	},
}

const createdAtLayout = "2006-01-02T15:04:05.000000"

// SQLite is a Dataset stored in a SQLite file. Each Append commits on its
// own, so Flush is a no-op.
type SQLite struct {
	conn *sql.DB
	path string

	mu  sync.Mutex
	ids map[int64]struct{}
}

// OpenSQLite creates or opens a dataset at path and loads its topic ids
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	s := &SQLite{conn: conn, path: path, ids: make(map[int64]struct{})}
	if err := s.loadIDs(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func migrate(conn *sql.DB) error {
	var current int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not apply user_version inside a transaction
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *SQLite) loadIDs() error {
	rows, err := s.conn.Query("SELECT topic_id FROM topics")
	if err != nil {
		return fmt.Errorf("loading topic ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning topic id: %w", err)
		}
		s.ids[id] = struct{}{}
	}
	return rows.Err()
}

// Has reports whether topicID is already stored
func (s *SQLite) Has(topicID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[topicID]
	return ok
}

// Append stores t unless its id is already present
func (s *SQLite) Append(ctx context.Context, t *models.Topic) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[t.TopicID]; ok {
		return false, nil
	}

	res, err := s.conn.ExecContext(ctx, `
INSERT OR IGNORE INTO topics (topic_id, author, title, date, created_at, content, images, files)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TopicID, t.Author, t.Title, t.Date, formatCreatedAt(t.CreatedAt), t.Content, t.ImageList(), t.FileList())
	if err != nil {
		return false, fmt.Errorf("inserting topic %d: %w", t.TopicID, err)
	}
	s.ids[t.TopicID] = struct{}{}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting topic %d: %w", t.TopicID, err)
	}
	return n > 0, nil
}

// Flush is a no-op; rows are committed by Append
func (s *SQLite) Flush() error { return nil }

// Count returns the number of stored topics
func (s *SQLite) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Topics returns every stored topic in insertion order
func (s *SQLite) Topics(ctx context.Context) ([]models.Topic, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT topic_id, author, title, date, created_at, content, images, files
FROM topics ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	var topics []models.Topic
	for rows.Next() {
		var t models.Topic
		var createdAt, images, files string
		if err := rows.Scan(&t.TopicID, &t.Author, &t.Title, &t.Date, &createdAt, &t.Content, &images, &files); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		if createdAt != "" {
			if parsed, err := time.Parse(createdAtLayout, createdAt); err == nil {
				t.CreatedAt = parsed
			}
		}
		t.Images = models.SplitList(images)
		t.Files = models.SplitList(files)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// Path returns the database file path
func (s *SQLite) Path() string { return s.path }

// Close closes the database connection
func (s *SQLite) Close() error { return s.conn.Close() }

func formatCreatedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(createdAtLayout)
}
