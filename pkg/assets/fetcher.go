// Package assets downloads the images and files embedded in topics.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	errs "zsxqsync/pkg/errors"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/retry"
)

// Remote is the network side of an asset download
type Remote interface {
	ResolveFileURL(ctx context.Context, fileID int64) (string, error)
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Storage persists completed downloads
type Storage interface {
	Exists(path string) bool
	Save(dst string, r io.Reader) (int64, error)
}

// Fetcher downloads one asset to a deterministic destination. A destination
// that already exists is returned without touching the network.
type Fetcher struct {
	remote  Remote
	storage Storage
	retry   *retry.Config
	logger  logger.Logger
}

// NewFetcher creates a Fetcher. A nil retry config means a single attempt.
func NewFetcher(remote Remote, storage Storage, retryCfg *retry.Config, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if retryCfg == nil {
		retryCfg = &retry.Config{MaxAttempts: 1}
	}
	cfg := *retryCfg
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	return &Fetcher{remote: remote, storage: storage, retry: &cfg, logger: log}
}

// FetchImage streams an image URL to dst
func (f *Fetcher) FetchImage(ctx context.Context, url, dst string) (string, error) {
	if f.storage.Exists(dst) {
		return dst, nil
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		return f.stream(ctx, url, url, dst)
	}, f.retry)
	if err != nil {
		return "", unwrapAsset(err, url)
	}
	return dst, nil
}

// FetchFile resolves a file id to a download URL and streams it to dst. The
// download URL is short-lived, so every attempt resolves it again.
func (f *Fetcher) FetchFile(ctx context.Context, fileID int64, dst string) (string, error) {
	if f.storage.Exists(dst) {
		return dst, nil
	}

	locator := "file:" + strconv.FormatInt(fileID, 10)
	err := retry.Do(ctx, func(ctx context.Context) error {
		downloadURL, err := f.remote.ResolveFileURL(ctx, fileID)
		if err != nil {
			return assetError(locator, errs.StageResolve, err)
		}
		return f.stream(ctx, locator, downloadURL, dst)
	}, f.retry)
	if err != nil {
		return "", unwrapAsset(err, locator)
	}
	return dst, nil
}

func (f *Fetcher) stream(ctx context.Context, locator, url, dst string) error {
	body, err := f.remote.Open(ctx, url)
	if err != nil {
		return assetError(locator, errs.StageStream, err)
	}
	defer body.Close()

	src := &trackingReader{r: body}
	if _, err := f.storage.Save(dst, src); err != nil {
		if src.err != nil {
			return assetError(locator, errs.StageStream, src.err)
		}
		return assetError(locator, errs.StageWrite, err)
	}
	return nil
}

// trackingReader remembers read failures so they can be told apart from
// local write failures.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

func assetError(locator string, stage errs.AssetStage, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	ae := &errs.AssetError{Locator: locator, Stage: stage, Cause: cause}
	var apiErr *errs.Error
	if errors.As(cause, &apiErr) {
		ae.Status = apiErr.Code
	}
	return ae
}

// unwrapAsset strips the retry wrapper so callers always see an
// *errors.AssetError or a context error.
func unwrapAsset(err error, locator string) error {
	var ae *errs.AssetError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &errs.AssetError{Locator: locator, Stage: errs.StageStream, Cause: fmt.Errorf("download failed: %w", err)}
}
