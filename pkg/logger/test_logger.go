package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// TestLogger is a logger implementation for testing that captures all log messages.
// Child loggers created with WithField(s) share the parent's message list.
type TestLogger struct {
	store  *messageStore
	fields map[string]interface{}
}

type messageStore struct {
	mu       sync.Mutex
	messages []LogMessage
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	return &TestLogger{store: &messageStore{}}
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

// WithField adds a field to the logger context
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields adds multiple fields to the logger context
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{store: l.store, fields: merged}
}

// WithError adds an error to the logger context
func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// WithContext is a no-op for the test logger
func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l
}

// GetZerolog returns a disabled zerolog instance
func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.messages = append(l.store.messages, LogMessage{
		Level:   level,
		Message: msg,
		Fields:  merged,
	})
}

// GetMessages returns all captured log messages
func (l *TestLogger) GetMessages() []LogMessage {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	messages := make([]LogMessage, len(l.store.messages))
	copy(messages, l.store.messages)
	return messages
}

// GetMessagesByLevel returns all messages of a specific level
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	var filtered []LogMessage
	for _, msg := range l.GetMessages() {
		if msg.Level == level {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// HasMessage checks if a message containing text was logged
func (l *TestLogger) HasMessage(text string) bool {
	for _, msg := range l.GetMessages() {
		if strings.Contains(msg.Message, text) {
			return true
		}
	}
	return false
}

// Clear clears all captured messages
func (l *TestLogger) Clear() {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.messages = nil
}
