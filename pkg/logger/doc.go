// Package logger provides the structured logging interface used across zsxqsync.
//
// It wraps zerolog. Loggers are created once in main and passed down to every
// component; there is no package-level instance. Each group run derives a
// scoped logger carrying run_id and group fields.
//
//	log, err := logger.New(&cfg.Logging)
//	groupLog := log.WithFields(map[string]interface{}{
//	    "run_id": runID,
//	    "group":  group.Name,
//	})
//	groupLog.WithError(err).Error("page fetch failed")
//
// When Logging.File is set, JSON lines are also written to a rotating file
// managed by lumberjack (MaxSize in MB, MaxBackups, MaxAge in days, Compress).
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
