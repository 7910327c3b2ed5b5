package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "zsxqsync/pkg/errors"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/models"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/topic"
	"zsxqsync/pkg/zsxq"
)

// DefaultMaxEmptyRetries is how many empty pages in a row end a run
const DefaultMaxEmptyRetries = 3

// Outcome is how a group's backfill ended
type Outcome string

const (
	// OutcomeCompleted means the watermark was reached, or the full history
	// was read for a group without one.
	OutcomeCompleted Outcome = "completed"
	// OutcomeAborted means a page could not be fetched or parsed, or the run
	// was cancelled.
	OutcomeAborted Outcome = "aborted"
	// OutcomeGaveUp means the feed kept answering with empty pages.
	OutcomeGaveUp Outcome = "gave_up"
)

// Result summarizes one group's backfill
type Result struct {
	GroupID   string
	GroupName string
	RunID     string
	Outcome   Outcome

	Pages      int
	Requests   int
	Appended   int
	Duplicates int
	Assets     topic.Stats

	// LastCursor is the cursor of the last request made
	LastCursor string
	StartedAt  time.Time
	Duration   time.Duration

	// Watermark is the group's watermark after the run, and Advanced tells
	// whether this run moved it.
	Watermark models.Watermark
	Advanced  bool

	Err error
}

type state int

const (
	stateRequest state = iota
	stateEmpty
	stateTranslate
	stateDecide
	stateDone
)

// Controller runs the pagination state machine for one group
type Controller struct {
	fetcher    PageFetcher
	translator Translator
	pacer      retry.Pacer
	maxEmpty   int
	logger     logger.Logger
}

// NewController creates a Controller. A nil pacer disables pacing.
func NewController(fetcher PageFetcher, translator Translator, pacer retry.Pacer, maxEmptyRetries int, log logger.Logger) *Controller {
	if pacer == nil {
		pacer = retry.NoPacer{}
	}
	if maxEmptyRetries <= 0 {
		maxEmptyRetries = DefaultMaxEmptyRetries
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Controller{
		fetcher:    fetcher,
		translator: translator,
		pacer:      pacer,
		maxEmpty:   maxEmptyRetries,
		logger:     log,
	}
}

// run is the mutable state of one Run call
type run struct {
	src    models.Source
	sink   Sink
	cursor zsxq.Cursor
	page   *zsxq.Page
	empty  int
	result *Result
}

// Run backfills src into sink. The returned Result is never nil; err is set
// for every outcome except OutcomeCompleted. Topics appended before a
// failure stay in the sink.
func (c *Controller) Run(ctx context.Context, src models.Source, sink Sink) (*Result, error) {
	r := &run{
		src:  src,
		sink: sink,
		result: &Result{
			GroupID:   src.ID,
			GroupName: src.Name,
			StartedAt: time.Now(),
			Watermark: src.Watermark,
		},
	}

	c.logger.InfoWithFields("backfill started", map[string]interface{}{
		"group_id":  src.ID,
		"watermark": src.Watermark.String(),
	})

	st := stateRequest
	for st != stateDone {
		switch st {
		case stateRequest:
			st = c.request(ctx, r)
		case stateEmpty:
			st = c.emptyPage(r)
		case stateTranslate:
			st = c.translate(ctx, r)
		case stateDecide:
			st = c.decide(r)
		}
	}

	r.result.Assets = c.translator.Stats()
	r.result.Duration = time.Since(r.result.StartedAt)

	fields := map[string]interface{}{
		"group_id":   src.ID,
		"outcome":    string(r.result.Outcome),
		"pages":      r.result.Pages,
		"requests":   r.result.Requests,
		"appended":   r.result.Appended,
		"duplicates": r.result.Duplicates,
		"cursor":     r.cursor.String(),
		"duration":   r.result.Duration.String(),
	}
	if r.result.Err != nil {
		c.logger.WithError(r.result.Err).ErrorWithFields("backfill ended early", fields)
	} else {
		c.logger.InfoWithFields("backfill completed", fields)
	}

	return r.result, r.result.Err
}

func (c *Controller) request(ctx context.Context, r *run) state {
	if r.result.Requests > 0 {
		if err := c.pacer.Wait(ctx, r.empty); err != nil {
			return c.abort(r, OutcomeAborted, err)
		}
	}

	r.result.Requests++
	r.result.LastCursor = r.cursor.Raw

	c.logger.DebugWithFields("requesting page", map[string]interface{}{
		"group_id": r.src.ID,
		"cursor":   r.cursor.String(),
		"request":  r.result.Requests,
	})

	page, err := c.fetcher.FetchPage(ctx, r.src.ID, r.cursor)
	if err != nil {
		return c.abort(r, OutcomeAborted, err)
	}
	r.page = page

	if page.Empty() {
		return stateEmpty
	}
	return stateTranslate
}

// emptyPage re-requests the same cursor until maxEmpty empty pages were seen
// in a row. For a full-history backfill an empty page after real content is
// the end of the feed.
func (c *Controller) emptyPage(r *run) state {
	r.empty++

	c.logger.WarnWithFields("empty page", map[string]interface{}{
		"group_id": r.src.ID,
		"cursor":   r.cursor.String(),
		"attempt":  r.empty,
		"max":      c.maxEmpty,
	})

	if r.empty < c.maxEmpty {
		return stateRequest
	}

	if r.src.Watermark.FromBeginning && r.result.Pages > 0 {
		c.logger.InfoWithFields("reached the start of the feed", map[string]interface{}{
			"group_id": r.src.ID,
			"cursor":   r.cursor.String(),
		})
		r.result.Outcome = OutcomeCompleted
		return stateDone
	}

	return c.abort(r, OutcomeGaveUp, &errs.EmptyPageError{
		GroupID:  r.src.ID,
		Cursor:   r.cursor.Raw,
		Attempts: r.empty,
	})
}

// translate appends every topic of the page in order. Ids already in the
// sink are counted as duplicates without downloading their assets again.
func (c *Controller) translate(ctx context.Context, r *run) state {
	r.empty = 0
	r.result.Pages++

	for _, raw := range r.page.Topics {
		if r.sink.Has(raw.TopicID) {
			r.result.Duplicates++
			continue
		}

		t, ok, err := c.translator.Translate(ctx, r.src, raw)
		if err != nil {
			return c.abort(r, OutcomeAborted, fmt.Errorf("topic %d: %w", raw.TopicID, err))
		}
		if !ok {
			continue
		}

		added, err := r.sink.Append(ctx, t)
		if err != nil {
			return c.abort(r, OutcomeAborted, fmt.Errorf("append topic %d: %w", raw.TopicID, err))
		}
		if added {
			r.result.Appended++
		} else {
			r.result.Duplicates++
		}
	}

	if err := r.sink.Flush(); err != nil {
		return c.abort(r, OutcomeAborted, fmt.Errorf("flush dataset: %w", err))
	}

	return stateDecide
}

// decide continues with the page's earliest topic as the next cursor while
// that topic is still newer than the watermark.
func (c *Controller) decide(r *run) state {
	earliest := r.page.Earliest

	fields := map[string]interface{}{
		"group_id":  r.src.ID,
		"earliest":  earliest.String(),
		"watermark": r.src.Watermark.String(),
		"topics":    len(r.page.Topics),
	}

	if r.src.Watermark.Reached(earliest.At) {
		c.logger.InfoWithFields("watermark reached", fields)
		r.result.Outcome = OutcomeCompleted
		return stateDone
	}

	c.logger.DebugWithFields("continuing past page", fields)
	r.cursor = earliest
	return stateRequest
}

func (c *Controller) abort(r *run, outcome Outcome, err error) state {
	var fe *errs.FetchError
	if errors.As(err, &fe) && fe.GroupID == "" {
		fe.GroupID = r.src.ID
	}
	r.result.Outcome = outcome
	r.result.Err = err
	return stateDone
}
