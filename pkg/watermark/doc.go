// Package watermark persists, per group, the instant up to which the topic
// history has been captured.
//
// A watermark is only written after a clean backfill and only ever moves
// forward. The value written is the wall-clock time at which that run
// started, so topics created while the run was in progress are fetched again
// next time rather than skipped.
package watermark
