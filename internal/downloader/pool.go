package downloader

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/ratelimit"
)

// ErrPoolStopped is returned for jobs submitted after Stop
var ErrPoolStopped = errors.New("worker pool is shutting down")

// Kind distinguishes direct-URL images from id-addressed files
type Kind string

const (
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// Job is a single asset download
type Job struct {
	Kind Kind
	// URL is set for images
	URL string
	// FileID is set for files
	FileID int64
	// Dest is the deterministic local path
	Dest    string
	TopicID int64
	Index   int
}

// Locator names the remote side of the job for logs
func (j Job) Locator() string {
	if j.Kind == KindFile {
		return "file:" + strconv.FormatInt(j.FileID, 10)
	}
	return j.URL
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Path     string
	Skipped  bool
	Err      error
	Duration time.Duration
}

// AssetFetcher performs the actual download
type AssetFetcher interface {
	FetchImage(ctx context.Context, url, dst string) (string, error)
	FetchFile(ctx context.Context, fileID int64, dst string) (string, error)
}

// AssetStorage reports already completed downloads
type AssetStorage interface {
	Exists(path string) bool
}

type task struct {
	ctx   context.Context
	index int
	job   Job
	reply chan<- indexedResult
}

type indexedResult struct {
	index  int
	result Result
}

// WorkerPool bounds the number of asset downloads in flight across every
// topic and group of a run.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan task
	wg          sync.WaitGroup
	mu          sync.RWMutex
	stopped     bool
	fetcher     AssetFetcher
	storage     AssetStorage
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool
func NewWorkerPool(
	numWorkers int,
	fetcher AssetFetcher,
	storage AssetStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan task, numWorkers*2),
		fetcher:     fetcher,
		storage:     storage,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish and shuts the workers down
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.logger.Debug("worker pool stopped")
}

// Batch runs jobs on the pool and blocks until every one of them has
// returned. Results are in job order. Jobs that could not be queued because
// ctx ended or the pool stopped carry that error.
func (wp *WorkerPool) Batch(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	reply := make(chan indexedResult, len(jobs))
	submitted := 0

	wp.mu.RLock()
	for i, job := range jobs {
		if wp.stopped {
			results[i] = Result{Job: job, Err: ErrPoolStopped}
			continue
		}
		select {
		case wp.jobQueue <- task{ctx: ctx, index: i, job: job, reply: reply}:
			submitted++
		case <-ctx.Done():
			results[i] = Result{Job: job, Err: ctx.Err()}
		}
	}
	wp.mu.RUnlock()

	for ; submitted > 0; submitted-- {
		r := <-reply
		results[r.index] = r.result
	}
	return results
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for t := range wp.jobQueue {
		result := wp.processJob(t.ctx, t.job, id)
		t.reply <- indexedResult{index: t.index, result: result}
	}
}

// processJob handles a single download job
func (wp *WorkerPool) processJob(ctx context.Context, job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	if wp.storage != nil && wp.storage.Exists(job.Dest) {
		result.Path = job.Dest
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	if err := wp.rateLimiter.Wait(ctx); err != nil {
		result.Err = err
		return result
	}

	var err error
	switch job.Kind {
	case KindFile:
		result.Path, err = wp.fetcher.FetchFile(ctx, job.FileID, job.Dest)
	default:
		result.Path, err = wp.fetcher.FetchImage(ctx, job.URL, job.Dest)
	}
	result.Err = err
	result.Duration = time.Since(start)

	wp.logger.DebugWithFields("asset job finished", map[string]interface{}{
		"worker_id": workerID,
		"topic_id":  job.TopicID,
		"kind":      string(job.Kind),
		"locator":   job.Locator(),
		"ok":        err == nil,
		"duration":  result.Duration,
	})

	return result
}
