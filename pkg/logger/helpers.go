package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs an API request outcome at a level matching its status
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration":    duration,
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogCycleStart logs the start of a poll cycle
func LogCycleStart(l Logger, cycle int, users int) {
	l.InfoWithFields("Poll cycle started", map[string]interface{}{
		"cycle": cycle,
		"users": users,
	})
}

// LogLikes logs how many liked posts and candidates were resolved for a user
func LogLikes(l Logger, username string, likes, resolved, candidates int) {
	l.InfoWithFields("Liked posts resolved", map[string]interface{}{
		"username":   username,
		"likes":      likes,
		"resolved":   resolved,
		"candidates": candidates,
	})
}

// LogDownload logs a single download outcome
func LogDownload(l Logger, username, filename string, size int, err error) {
	fields := map[string]interface{}{
		"username": username,
		"filename": filename,
	}

	if err != nil {
		l.WithFields(fields).WithError(err).Error("Download failed")
		return
	}
	fields["size"] = size
	l.InfoWithFields("Download completed", fields)
}

// LogFatalAuth logs the unrecoverable credential rejection
func LogFatalAuth(l Logger, err error) {
	l.WithError(err).WithField("action", "fatal_auth").
		Error("API rejected the credentials; check the bearer token")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
