// Package logger provides structured logging for nestsync.
//
// It wraps zerolog behind a small Logger interface with leveled methods,
// field chaining, and a process-wide instance initialized once from
// configuration:
//
//	logger.Initialize(&logger.Config{Level: "info"})
//	logger.WithField("student_id", id).Info("sync started")
//
// Console output goes to stderr in a human-readable format; setting
// Config.File switches to JSON lines appended to that file. TestLogger
// captures messages in memory for assertions in tests.
package logger
