package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zsxqsync/internal/downloader"
	"zsxqsync/pkg/models"
	"zsxqsync/pkg/zsxq"
)

// scriptedFetcher answers FetchPage calls from a fixed script and records
// the cursor of every request. Requests past the end of the script get an
// empty page.
type scriptedFetcher struct {
	mu      sync.Mutex
	steps   []step
	cursors []string
}

type step struct {
	page *zsxq.Page
	err  error
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, groupID string, cursor zsxq.Cursor) (*zsxq.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.cursors)
	f.cursors = append(f.cursors, cursor.Raw)
	if n >= len(f.steps) {
		return &zsxq.Page{}, nil
	}
	return f.steps[n].page, f.steps[n].err
}

func (f *scriptedFetcher) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cursors...)
}

func talk(id int64, createTime string) zsxq.Topic {
	return zsxq.Topic{
		TopicID:    id,
		Type:       "talk",
		CreateTime: createTime,
		Talk:       &zsxq.Talk{Owner: zsxq.Owner{Name: "alice"}, Text: "hello"},
	}
}

func pageOf(t *testing.T, topics ...zsxq.Topic) *zsxq.Page {
	t.Helper()
	page := &zsxq.Page{Topics: topics}
	if len(topics) > 0 {
		earliest, err := zsxq.CursorAt(topics[len(topics)-1].CreateTime, shanghai)
		require.NoError(t, err)
		page.Earliest = earliest
	}
	return page
}

var shanghai = time.FixedZone("CST", 8*3600)

// memSink is an in-memory dataset
type memSink struct {
	mu      sync.Mutex
	topics  []models.Topic
	ids     map[int64]bool
	flushes int
	closed  bool
}

func newMemSink(ids ...int64) *memSink {
	s := &memSink{ids: map[int64]bool{}}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s
}

func (s *memSink) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}

func (s *memSink) Append(ctx context.Context, t *models.Topic) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[t.TopicID] {
		return false, nil
	}
	s.ids[t.TopicID] = true
	s.topics = append(s.topics, *t)
	return true, nil
}

func (s *memSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) appendedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.topics))
	for _, t := range s.topics {
		ids = append(ids, t.TopicID)
	}
	return ids
}

// countingBatcher succeeds every job without touching the network
type countingBatcher struct {
	mu   sync.Mutex
	jobs int
}

func (b *countingBatcher) Batch(ctx context.Context, jobs []downloader.Job) []downloader.Result {
	b.mu.Lock()
	b.jobs += len(jobs)
	b.mu.Unlock()

	results := make([]downloader.Result, len(jobs))
	for i, j := range jobs {
		results[i] = downloader.Result{Job: j, Path: j.Dest}
	}
	return results
}

type flatLayout struct{}

func (flatLayout) ImagePath(group string, topicID int64, index int, imageURL string) string {
	return group + "/image"
}

func (flatLayout) FilePath(group string, topicID int64, index int, name string) string {
	return group + "/" + name
}

// countingPacer records every Wait call
type countingPacer struct {
	mu       sync.Mutex
	attempts []int
}

func (p *countingPacer) Wait(ctx context.Context, attempt int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, attempt)
	return ctx.Err()
}

func mustWatermark(t *testing.T, s string) models.Watermark {
	t.Helper()
	wm, err := models.ParseWatermark(s, shanghai)
	require.NoError(t, err)
	return wm
}
