// Package retry provides backoff strategies, bounded retries for transient
// asset download failures, and the pacing used between feed requests.
//
// Retrying an asset download:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetcher.stream(ctx, url, dst)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		Logger:      log,
//	})
//
// Pacing feed requests with a random 10 to 20 second pause:
//
//	pacer := retry.NewUniformPacer(10*time.Second, 20*time.Second)
//	if err := pacer.Wait(ctx, emptyRetries); err != nil {
//		return err // cancelled
//	}
package retry
