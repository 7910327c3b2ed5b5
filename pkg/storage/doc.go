// Package storage decides where downloaded images and files live and writes
// them atomically.
//
// Layout:
//
//	<image_root>/<group_name>/<topic_id>/<index><ext>
//	<file_root>/<group_name>/<topic_id>/<index>_<file name>
//
// Because a path depends only on the group, topic id, position and locator,
// the asset fetcher uses Exists as its idempotency check.
package storage
