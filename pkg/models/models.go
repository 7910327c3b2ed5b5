package models

import (
	"strings"
	"time"
)

// WatermarkBeginning is the configuration sentinel for "no prior run":
// the group is backfilled over its whole history.
const WatermarkBeginning = "beginning"

// Watermark marks the most recent content already captured for a group.
type Watermark struct {
	At            time.Time
	FromBeginning bool
}

// Beginning returns the full-history watermark.
func Beginning() Watermark {
	return Watermark{FromBeginning: true}
}

// At returns a watermark at the given instant.
func At(t time.Time) Watermark {
	return Watermark{At: t}
}

// Reached reports whether a page whose earliest topic was created at t has
// caught up with previously captured history.
func (w Watermark) Reached(t time.Time) bool {
	if w.FromBeginning {
		return false
	}
	return !t.After(w.At)
}

func (w Watermark) String() string {
	if w.FromBeginning {
		return WatermarkBeginning
	}
	return w.At.Format("2006-01-02T15:04:05.000000")
}

// Source is one group being backfilled.
type Source struct {
	ID        string
	Name      string
	Watermark Watermark
}

// Topic is one persisted post. Images and Files hold local paths of the
// assets that were stored successfully, in their original order.
type Topic struct {
	TopicID   int64
	Author    string
	Title     string
	CreatedAt time.Time
	// Date is the create_time as the API reported it.
	Date    string
	Content string
	Images  []string
	Files   []string
}

// ImageList returns the comma-joined image paths as stored in the dataset.
func (t *Topic) ImageList() string {
	return strings.Join(t.Images, ",")
}

// FileList returns the comma-joined file paths as stored in the dataset.
func (t *Topic) FileList() string {
	return strings.Join(t.Files, ",")
}

// SplitList reverses ImageList/FileList.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
