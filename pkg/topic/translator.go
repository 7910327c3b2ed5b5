// Package topic turns raw feed entries into persisted topics, downloading
// their embedded images and files on the way.
package topic

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"zsxqsync/internal/downloader"
	errs "zsxqsync/pkg/errors"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/models"
	"zsxqsync/pkg/zsxq"
)

// Batcher runs a topic's downloads and waits for all of them
type Batcher interface {
	Batch(ctx context.Context, jobs []downloader.Job) []downloader.Result
}

// Layout assigns deterministic local paths to assets
type Layout interface {
	ImagePath(group string, topicID int64, index int, imageURL string) string
	FilePath(group string, topicID int64, index int, name string) string
}

// Stats counts asset outcomes across every topic a Translator handled
type Stats struct {
	AssetsStored  int64
	AssetsSkipped int64
	AssetsFailed  int64
	TopicsSkipped int64
}

// Translator materializes talk topics. It is not tied to one group, but its
// Stats are only meaningful when it serves a single group run.
type Translator struct {
	pool     Batcher
	layout   Layout
	location *time.Location
	logger   logger.Logger

	stored  atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
	ignored atomic.Int64
}

// NewTranslator creates a Translator
func NewTranslator(pool Batcher, layout Layout, loc *time.Location, log logger.Logger) *Translator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Translator{pool: pool, layout: layout, location: loc, logger: log}
}

// Translate converts raw into a Topic. Entries without a talk payload yield
// (nil, false, nil) and trigger no downloads. A failed asset is logged and
// left out of the topic; only cancellation or an unparseable create_time
// fail the call.
func (t *Translator) Translate(ctx context.Context, src models.Source, raw zsxq.Topic) (*models.Topic, bool, error) {
	if raw.Talk == nil {
		t.ignored.Add(1)
		t.logger.DebugWithFields("skipping non-talk topic", map[string]interface{}{
			"topic_id": raw.TopicID,
			"type":     raw.Type,
		})
		return nil, false, nil
	}

	createdAt, err := models.ParseTimestamp(raw.CreateTime, t.location)
	if err != nil {
		return nil, false, err
	}

	jobs := t.jobs(src, raw)
	results := t.pool.Batch(ctx, jobs)

	out := &models.Topic{
		TopicID:   raw.TopicID,
		Author:    raw.Talk.Owner.Name,
		Title:     raw.Title,
		CreatedAt: createdAt,
		Date:      raw.CreateTime,
		Content:   raw.Talk.Text,
	}

	for _, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
				return nil, false, r.Err
			}
			t.failed.Add(1)
			t.logFailure(src, r)
			continue
		}

		if r.Skipped {
			t.skipped.Add(1)
		} else {
			t.stored.Add(1)
		}
		switch r.Job.Kind {
		case downloader.KindFile:
			out.Files = append(out.Files, r.Path)
		default:
			out.Images = append(out.Images, r.Path)
		}
	}

	return out, true, nil
}

// jobs lists the downloads of raw in image-then-file order, each addressed
// by its position in the original list. Images without an original URL and
// files without an id or name are dropped.
func (t *Translator) jobs(src models.Source, raw zsxq.Topic) []downloader.Job {
	var jobs []downloader.Job

	for i, img := range raw.Talk.Images {
		url := img.OriginalURL()
		if url == "" {
			continue
		}
		jobs = append(jobs, downloader.Job{
			Kind:    downloader.KindImage,
			URL:     url,
			Dest:    t.layout.ImagePath(src.Name, raw.TopicID, i, url),
			TopicID: raw.TopicID,
			Index:   i,
		})
	}

	for i, f := range raw.Talk.Files {
		if f.FileID == 0 || f.Name == "" {
			continue
		}
		jobs = append(jobs, downloader.Job{
			Kind:    downloader.KindFile,
			FileID:  f.FileID,
			Dest:    t.layout.FilePath(src.Name, raw.TopicID, i, f.Name),
			TopicID: raw.TopicID,
			Index:   i,
		})
	}

	return jobs
}

func (t *Translator) logFailure(src models.Source, r downloader.Result) {
	fields := map[string]interface{}{
		"group_id": src.ID,
		"topic_id": r.Job.TopicID,
		"kind":     string(r.Job.Kind),
		"locator":  r.Job.Locator(),
		"index":    r.Job.Index,
	}
	var ae *errs.AssetError
	if errors.As(r.Err, &ae) {
		fields["stage"] = string(ae.Stage)
		fields["status"] = ae.Status
	}
	t.logger.WithError(r.Err).ErrorWithFields("asset download failed", fields)
}

// Stats returns the counters accumulated so far
func (t *Translator) Stats() Stats {
	return Stats{
		AssetsStored:  t.stored.Load(),
		AssetsSkipped: t.skipped.Load(),
		AssetsFailed:  t.failed.Load(),
		TopicsSkipped: t.ignored.Load(),
	}
}
