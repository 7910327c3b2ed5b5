// Package ratelimit throttles asset downloads so that images and files
// fetched alongside a page do not burst against the CDN.
//
// The feed itself is paced by retry.Pacer; this package only guards the
// download worker pool:
//
//	limiter := ratelimit.PerMinute(cfg.Download.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
