package backfill

import (
	"fmt"
	"time"

	"zsxqsync/internal/downloader"
	"zsxqsync/pkg/assets"
	"zsxqsync/pkg/config"
	"zsxqsync/pkg/dataset"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/models"
	"zsxqsync/pkg/ratelimit"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/storage"
	"zsxqsync/pkg/watermark"
	"zsxqsync/pkg/zsxq"
)

// Service is a Runner wired to the real API, disk storage and watermark
// store. Close stops its download workers.
type Service struct {
	*Runner
	Client  *zsxq.Client
	Store   *watermark.Store
	Storage *storage.Manager

	pool *downloader.WorkerPool
}

// New assembles a Service from configuration. headers are sent with every
// API request.
func New(cfg *config.Config, headers map[string]string, log logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	client := zsxq.NewClient(zsxq.Options{
		Timeout: cfg.API.Timeout,
		Headers: headers,
		Endpoints: zsxq.Endpoints{
			TopicsURL:       cfg.API.TopicsURL,
			FileDownloadURL: cfg.API.FileDownloadURL,
		},
		Location: loc,
		Logger:   log,
	})

	storageManager, err := storage.NewManager(cfg.Storage.ImageRoot, cfg.Storage.FileRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	store, err := watermark.NewStore(cfg.Storage.StateDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open watermark store: %w", err)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Download.RetryAttempts
	if cfg.Download.RetryDelay > 0 {
		backoff := retry.DefaultExponentialBackoff()
		backoff.BaseDelay = cfg.Download.RetryDelay
		retryCfg.Backoff = backoff
	}

	fetcher := assets.NewFetcher(client, storageManager, retryCfg, log)
	pool := downloader.NewWorkerPool(
		cfg.Download.ConcurrentDownloads,
		fetcher,
		storageManager,
		ratelimit.PerMinute(cfg.Download.RequestsPerMinute),
		log,
	)
	pool.Start()

	datasetDir := cfg.Storage.DatasetDir
	format := cfg.Storage.DatasetFormat

	runner := NewRunner(Options{
		Fetcher:  client,
		Assets:   pool,
		Layout:   storageManager,
		Store:    store,
		OpenSink: func(src models.Source) (GroupSink, error) {
			return dataset.Open(datasetDir, src.Name, format)
		},
		SinkKey: func(src models.Source) string {
			return dataset.Key(src.Name, format)
		},
		Pacer:            pacerFor(cfg.Sync.PacingMin, cfg.Sync.PacingMax),
		Location:         loc,
		Logger:           log,
		MaxEmptyRetries:  cfg.Sync.MaxEmptyRetries,
		ConcurrentGroups: cfg.Sync.ConcurrentGroups,
	})

	return &Service{Runner: runner, Client: client, Store: store, Storage: storageManager, pool: pool}, nil
}

// Close stops the download workers
func (s *Service) Close() {
	s.pool.Stop()
}

func pacerFor(min, max time.Duration) retry.Pacer {
	if max <= 0 {
		return retry.NoPacer{}
	}
	return retry.NewUniformPacer(min, max)
}
