// Package logger provides structured logging for likesync.
//
// It wraps zerolog behind the Logger interface so that packages can log with
// fields without depending on zerolog directly, and so that tests can swap
// in NewNopLogger or NewTestLogger.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//
//	logger.Info("likesync starting")
//	logger.WithField("username", "werifu_").Info("tracking user")
//	logger.WithError(err).Error("failed to fetch liked posts")
//
// Structured fields:
//
//	log := logger.GetLogger().WithField("component", "downloader")
//	log.InfoWithFields("media downloaded", map[string]interface{}{
//	    "filename": name,
//	    "size":     len(data),
//	})
//
// Configuration options:
//   - Level: debug, info, warn, error or disabled
//   - File: path to a log file; when set, output goes to both the console
//     and the file
package logger
