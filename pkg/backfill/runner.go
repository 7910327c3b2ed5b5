package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/models"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/topic"
	"zsxqsync/pkg/watermark"
)

// SinkOpener opens the dataset a group's topics are appended to
type SinkOpener func(src models.Source) (GroupSink, error)

// GroupSink is a Sink owned by one group run
type GroupSink interface {
	Sink
	Close() error
}

// WatermarkStore persists watermarks between runs
type WatermarkStore interface {
	Get(groupID string) (models.Watermark, bool, error)
	Advance(groupID string, to time.Time, note watermark.Note) (bool, error)
}

// Options configures a Runner
type Options struct {
	Fetcher    PageFetcher
	Assets     topic.Batcher
	Layout     topic.Layout
	Store      WatermarkStore
	OpenSink   SinkOpener
	Pacer      retry.Pacer
	Location   *time.Location
	Logger     logger.Logger

	MaxEmptyRetries  int
	ConcurrentGroups int

	// Now returns the run start instant; defaults to the wall clock in Location
	Now func() time.Time

	// SinkKey names the dataset OpenSink would open for a source. Sources
	// that map to the same key are not run side by side; every one after
	// the first is aborted. Defaults to the source name.
	SinkKey func(src models.Source) string
}

// Runner backfills a set of groups
type Runner struct {
	opts   Options
	logger logger.Logger
}

// NewRunner creates a Runner
func NewRunner(opts Options) *Runner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.ConcurrentGroups <= 0 {
		opts.ConcurrentGroups = 1
	}
	if opts.SinkKey == nil {
		opts.SinkKey = func(src models.Source) string { return src.Name }
	}
	if opts.Now == nil {
		loc := opts.Location
		opts.Now = func() time.Time { return models.NowIn(loc) }
	}
	return &Runner{opts: opts, logger: opts.Logger}
}

// RunAll backfills every source, at most ConcurrentGroups at a time. A
// failing group does not stop the others. The returned error joins the
// errors of every group that did not complete.
func (r *Runner) RunAll(ctx context.Context, sources []models.Source) ([]*Result, error) {
	runID := uuid.NewString()
	log := r.logger.WithField("run_id", runID)

	log.InfoWithFields("run started", map[string]interface{}{
		"groups":     len(sources),
		"concurrent": r.opts.ConcurrentGroups,
	})

	results := make([]*Result, len(sources))
	var g errgroup.Group
	g.SetLimit(r.opts.ConcurrentGroups)

	owners := make(map[string]models.Source, len(sources))
	for i, src := range sources {
		key := r.opts.SinkKey(src)
		if owner, taken := owners[key]; taken {
			results[i] = r.conflict(runID, src, owner, key, log)
			continue
		}
		owners[key] = src

		g.Go(func() error {
			results[i] = r.runGroup(ctx, runID, src, log)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	completed := 0
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, fmt.Errorf("group %s (%s): %w", res.GroupName, res.GroupID, res.Err))
			continue
		}
		completed++
	}

	log.InfoWithFields("run finished", map[string]interface{}{
		"groups":    len(sources),
		"completed": completed,
		"failed":    len(failed),
	})

	return results, errors.Join(failed...)
}

// conflict reports a source whose dataset is already claimed by owner in
// this run. Its watermark is left alone.
func (r *Runner) conflict(runID string, src, owner models.Source, key string, log logger.Logger) *Result {
	err := fmt.Errorf("dataset %s is shared with group %s (%s)", key, owner.Name, owner.ID)
	log.WithFields(map[string]interface{}{
		"group_id":   src.ID,
		"group_name": src.Name,
	}).WithError(err).Error("group skipped")
	return &Result{
		GroupID:   src.ID,
		GroupName: src.Name,
		RunID:     runID,
		Outcome:   OutcomeAborted,
		StartedAt: time.Now(),
		Watermark: src.Watermark,
		Err:       err,
	}
}

// RunGroup backfills a single source under a fresh run id
func (r *Runner) RunGroup(ctx context.Context, src models.Source) *Result {
	runID := uuid.NewString()
	return r.runGroup(ctx, runID, src, r.logger.WithField("run_id", runID))
}

func (r *Runner) runGroup(ctx context.Context, runID string, src models.Source, runLog logger.Logger) *Result {
	log := runLog.WithFields(map[string]interface{}{
		"group_id":   src.ID,
		"group_name": src.Name,
	})

	startedAt := r.opts.Now()

	failed := func(err error) *Result {
		log.WithError(err).Error("group run failed before backfill")
		return &Result{
			GroupID:   src.ID,
			GroupName: src.Name,
			RunID:     runID,
			Outcome:   OutcomeAborted,
			Watermark: src.Watermark,
			Err:       err,
		}
	}

	seeded, err := r.seed(src)
	if err != nil {
		return failed(err)
	}
	src = seeded

	sink, err := r.opts.OpenSink(src)
	if err != nil {
		return failed(fmt.Errorf("open dataset: %w", err))
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Error("failed to close dataset")
		}
	}()

	translator := topic.NewTranslator(r.opts.Assets, r.opts.Layout, r.opts.Location, log)
	controller := NewController(r.opts.Fetcher, translator, r.opts.Pacer, r.opts.MaxEmptyRetries, log)

	result, err := controller.Run(ctx, src, sink)
	result.RunID = runID
	if err != nil {
		return result
	}

	advanced, err := r.opts.Store.Advance(src.ID, startedAt, watermark.Note{GroupName: src.Name, RunID: runID})
	if err != nil {
		log.WithError(err).Error("failed to save watermark")
		result.Err = fmt.Errorf("save watermark: %w", err)
		return result
	}
	result.Advanced = advanced
	if advanced {
		result.Watermark = models.At(startedAt)
	}

	log.InfoWithFields("watermark updated", map[string]interface{}{
		"watermark": result.Watermark.String(),
		"advanced":  advanced,
	})
	return result
}

// seed picks the watermark a group starts from: a stored one wins over the
// configured value.
func (r *Runner) seed(src models.Source) (models.Source, error) {
	stored, ok, err := r.opts.Store.Get(src.ID)
	if err != nil {
		return src, fmt.Errorf("load watermark: %w", err)
	}
	if ok {
		src.Watermark = stored
	}
	return src, nil
}
