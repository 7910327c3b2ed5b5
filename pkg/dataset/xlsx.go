package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"zsxqsync/pkg/models"
)

// SheetName is the worksheet holding the topic table
const SheetName = "Sheet1"

// XLSX is a Dataset kept in a spreadsheet. Rows are buffered in memory and
// the whole workbook is rewritten atomically by Flush.
type XLSX struct {
	path string

	mu      sync.Mutex
	file    *excelize.File
	ids     map[int64]struct{}
	nextRow int
	dirty   bool
}

// OpenXLSX opens the workbook at path, or starts a new one with a header
// row when it does not exist yet.
func OpenXLSX(path string) (*XLSX, error) {
	x := &XLSX{path: path, ids: make(map[int64]struct{})}

	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening workbook: %w", err)
		}
		x.file = f
		if err := x.loadIDs(); err != nil {
			f.Close()
			return nil, err
		}
		return x, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking workbook: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}

	x.file = excelize.NewFile()
	for i, h := range Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := x.file.SetCellValue(SheetName, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}
	x.nextRow = 2
	x.dirty = true
	return x, nil
}

func (x *XLSX) loadIDs() error {
	rows, err := x.file.GetRows(SheetName)
	if err != nil {
		return fmt.Errorf("reading rows: %w", err)
	}
	x.nextRow = len(rows) + 1
	if x.nextRow < 2 {
		x.nextRow = 2
	}

	for i, r := range rows {
		if i == 0 || len(r) == 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(r[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("row %d: invalid topic_id %q", i+1, r[0])
		}
		x.ids[id] = struct{}{}
	}
	return nil
}

// Has reports whether topicID is already stored
func (x *XLSX) Has(topicID int64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.ids[topicID]
	return ok
}

// Append adds a row for t unless its id is already present. The row is not
// on disk until Flush.
func (x *XLSX) Append(ctx context.Context, t *models.Topic) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.ids[t.TopicID]; ok {
		return false, nil
	}

	cell, err := excelize.CoordinatesToCellName(1, x.nextRow)
	if err != nil {
		return false, err
	}
	r := row(t)
	if err := x.file.SetSheetRow(SheetName, cell, &r); err != nil {
		return false, fmt.Errorf("writing topic %d: %w", t.TopicID, err)
	}

	x.ids[t.TopicID] = struct{}{}
	x.nextRow++
	x.dirty = true
	return true, nil
}

// Flush writes the workbook to a temporary file and renames it into place
func (x *XLSX) Flush() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.dirty {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(x.path), "."+filepath.Base(x.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary workbook: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := x.file.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing workbook: %w", err)
	}
	if err := os.Rename(tmpPath, x.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing workbook: %w", err)
	}

	x.dirty = false
	return nil
}

// Count returns the number of stored topics
func (x *XLSX) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.ids)
}

// Topics returns every row in sheet order. CreatedAt is left zero since
// the sheet only keeps the original date text.
func (x *XLSX) Topics(ctx context.Context) ([]models.Topic, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.file.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	var topics []models.Topic
	for i, r := range rows {
		if i == 0 || len(r) == 0 {
			continue
		}
		cols := make([]string, len(Columns))
		copy(cols, r)

		id, err := strconv.ParseInt(strings.TrimSpace(cols[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid topic_id %q", i+1, cols[0])
		}
		topics = append(topics, models.Topic{
			TopicID: id,
			Author:  cols[1],
			Title:   cols[2],
			Date:    cols[3],
			Content: cols[4],
			Images:  models.SplitList(cols[5]),
			Files:   models.SplitList(cols[6]),
		})
	}
	return topics, nil
}

// Path returns the workbook path
func (x *XLSX) Path() string { return x.path }

// Close flushes pending rows and releases the workbook
func (x *XLSX) Close() error {
	flushErr := x.Flush()
	if err := x.file.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}
