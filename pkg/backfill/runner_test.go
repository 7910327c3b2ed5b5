package backfill

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "zsxqsync/pkg/errors"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/models"
	"zsxqsync/pkg/watermark"
	"zsxqsync/pkg/zsxq"
)

// groupFetcher routes requests to one script per group
type groupFetcher map[string]*scriptedFetcher

func (g groupFetcher) FetchPage(ctx context.Context, groupID string, cursor zsxq.Cursor) (*zsxq.Page, error) {
	return g[groupID].FetchPage(ctx, groupID, cursor)
}

type sinks struct {
	mu  sync.Mutex
	byG map[string]*memSink
}

func (s *sinks) open(src models.Source) (GroupSink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byG == nil {
		s.byG = map[string]*memSink{}
	}
	sink, ok := s.byG[src.Name]
	if !ok {
		sink = newMemSink()
		s.byG[src.Name] = sink
	}
	return sink, nil
}

func newTestRunner(t *testing.T, fetcher PageFetcher, store *watermark.Store, out *sinks, start time.Time) *Runner {
	t.Helper()
	return NewRunner(Options{
		Fetcher:          fetcher,
		Assets:           &countingBatcher{},
		Layout:           flatLayout{},
		Store:            store,
		OpenSink:         out.open,
		Location:         shanghai,
		Logger:           logger.NewTestLogger(),
		ConcurrentGroups: 2,
		Now:              func() time.Time { return start },
	})
}

func TestRunnerAdvancesWatermarkToRunStart(t *testing.T) {
	store, err := watermark.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	fetcher := &scriptedFetcher{steps: []step{
		{page: pageOf(t, talk(1, "2024-01-05T09:00:00.000+0800"), talk(2, "2024-01-04T09:00:00.000+0800"))},
		{page: pageOf(t, talk(3, "2024-01-03T09:00:00.000+0800"), talk(4, "2023-12-31T09:00:00.000+0800"))},
	}}
	out := &sinks{}
	start := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)
	runner := newTestRunner(t, fetcher, store, out, start)

	src := models.Source{ID: "555", Name: "alpha", Watermark: mustWatermark(t, "2024-01-01T00:00:00.000000")}
	results, err := runner.RunAll(context.Background(), []models.Source{src})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.True(t, res.Advanced)
	assert.Equal(t, start, res.Watermark.At)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []int64{1, 2, 3, 4}, out.byG["alpha"].appendedIDs())
	assert.True(t, out.byG["alpha"].closed)

	stored, ok, err := store.Get("555")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, start, stored.At)
}

func TestRunnerKeepsWatermarkOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		steps   []step
		outcome Outcome
	}{
		{
			name: "fetch error on page two",
			steps: []step{
				{page: pageOf(t, talk(1, "2024-01-05T00:00:00.000+0800"))},
				{err: &errs.FetchError{GroupID: "555", Status: 502}},
			},
			outcome: OutcomeAborted,
		},
		{
			name:    "always empty",
			outcome: OutcomeGaveUp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := watermark.NewStore(t.TempDir(), nil)
			require.NoError(t, err)
			previous := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			_, err = store.Advance("555", previous, watermark.Note{})
			require.NoError(t, err)

			fetcher := &scriptedFetcher{steps: tt.steps}
			runner := newTestRunner(t, fetcher, store, &sinks{}, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

			res := runner.RunGroup(context.Background(), models.Source{ID: "555", Name: "alpha", Watermark: models.Beginning()})
			require.Error(t, res.Err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.False(t, res.Advanced)

			stored, _, err := store.Get("555")
			require.NoError(t, err)
			assert.Equal(t, previous, stored.At)
		})
	}
}

func TestRunnerStoredWatermarkWins(t *testing.T) {
	store, err := watermark.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = store.Advance("555", time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC), watermark.Note{})
	require.NoError(t, err)

	fetcher := &scriptedFetcher{steps: []step{
		{page: pageOf(t, talk(1, "2024-01-05T09:00:00.000+0800"), talk(2, "2024-01-04T09:00:00.000+0800"))},
		{page: pageOf(t, talk(3, "2024-01-03T09:00:00.000+0800"))},
	}}
	out := &sinks{}
	runner := newTestRunner(t, fetcher, store, out, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))

	// the configured value alone would walk back to 2023
	src := models.Source{ID: "555", Name: "alpha", Watermark: mustWatermark(t, "2023-01-01T00:00:00")}
	res := runner.RunGroup(context.Background(), src)
	require.NoError(t, res.Err)

	assert.Len(t, fetcher.requests(), 1)
	assert.Equal(t, []int64{1, 2}, out.byG["alpha"].appendedIDs())
}

func TestRunnerWatermarkNeverMovesBack(t *testing.T) {
	store, err := watermark.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.Advance("555", future, watermark.Note{})
	require.NoError(t, err)

	fetcher := &scriptedFetcher{steps: []step{
		{page: pageOf(t, talk(1, "2024-01-05T09:00:00.000+0800"))},
	}}
	runner := newTestRunner(t, fetcher, store, &sinks{}, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))

	res := runner.RunGroup(context.Background(), models.Source{ID: "555", Name: "alpha", Watermark: models.Beginning()})
	require.NoError(t, res.Err)
	assert.False(t, res.Advanced)

	stored, _, err := store.Get("555")
	require.NoError(t, err)
	assert.Equal(t, future, stored.At)
}

func TestRunnerIsolatesGroups(t *testing.T) {
	store, err := watermark.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	fetcher := groupFetcher{
		"1": {steps: []step{{page: pageOf(t, talk(10, "2023-12-01T00:00:00.000+0800"))}}},
		"2": {steps: []step{{err: &errs.FetchError{GroupID: "2", Status: 500}}}},
	}
	out := &sinks{}
	runner := newTestRunner(t, fetcher, store, out, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))

	watermarkAt := mustWatermark(t, "2024-01-01T00:00:00")
	results, err := runner.RunAll(context.Background(), []models.Source{
		{ID: "1", Name: "one", Watermark: watermarkAt},
		{ID: "2", Name: "two", Watermark: watermarkAt},
	})
	require.Error(t, err)

	var fe *errs.FetchError
	assert.True(t, errors.As(err, &fe))
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeCompleted, results[0].Outcome)
	assert.Equal(t, OutcomeAborted, results[1].Outcome)
	assert.Equal(t, results[0].RunID, results[1].RunID)

	_, ok, _ := store.Get("1")
	assert.True(t, ok)
	_, ok, _ = store.Get("2")
	assert.False(t, ok)
}

func TestRunnerReportsOpenFailure(t *testing.T) {
	store, err := watermark.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	runner := NewRunner(Options{
		Fetcher: &scriptedFetcher{},
		Store:   store,
		OpenSink: func(models.Source) (GroupSink, error) {
			return nil, errors.New("disk full")
		},
	})

	res := runner.RunGroup(context.Background(), models.Source{ID: "555", Name: "alpha", Watermark: models.Beginning()})
	require.Error(t, res.Err)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Contains(t, res.Err.Error(), "disk full")
}

func TestRunnerSkipsGroupsSharingASink(t *testing.T) {
	store, err := watermark.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	fetcher := groupFetcher{
		"1": {steps: []step{{page: pageOf(t, talk(11, "2023-12-01T00:00:00.000+0800"))}}},
		"2": {steps: []step{{page: pageOf(t, talk(22, "2023-12-01T00:00:00.000+0800"))}}},
		"3": {steps: []step{{page: pageOf(t, talk(33, "2023-12-01T00:00:00.000+0800"))}}},
	}
	out := &sinks{}
	runner := newTestRunner(t, fetcher, store, out, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))

	watermarkAt := mustWatermark(t, "2024-01-01T00:00:00")
	results, err := runner.RunAll(context.Background(), []models.Source{
		{ID: "1", Name: "same", Watermark: watermarkAt},
		{ID: "2", Name: "same", Watermark: watermarkAt},
		{ID: "3", Name: "other", Watermark: watermarkAt},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared with group same (1)")

	require.Len(t, results, 3)
	assert.Equal(t, OutcomeCompleted, results[0].Outcome)
	assert.Equal(t, OutcomeAborted, results[1].Outcome)
	assert.Equal(t, OutcomeCompleted, results[2].Outcome)
	assert.Empty(t, fetcher["2"].cursors, "a skipped group sends no requests")

	require.Len(t, out.byG["same"].topics, 1)
	assert.Equal(t, int64(11), out.byG["same"].topics[0].TopicID)

	_, ok, _ := store.Get("1")
	assert.True(t, ok)
	_, ok, _ = store.Get("2")
	assert.False(t, ok)
	_, ok, _ = store.Get("3")
	assert.True(t, ok)
}
