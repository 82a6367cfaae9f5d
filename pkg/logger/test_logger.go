package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger is a Logger implementation for tests that captures messages
type TestLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	fields   map[string]interface{}
	zerolog  *zerolog.Logger
}

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	nopLogger := zerolog.Nop()
	return &TestLogger{
		fields:  make(map[string]interface{}),
		zerolog: &nopLogger,
	}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.messages = append(l.messages, LogMessage{Level: level, Message: msg, Fields: merged})
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg, nil) }

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

// WithField returns a logger carrying an extra field
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger carrying extra fields
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &TestLogger{
		fields:  make(map[string]interface{}, len(l.fields)+len(fields)),
		zerolog: l.zerolog,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	// Share the message slice through the parent
	child.messages = l.messages
	return &chainedTestLogger{parent: l, fields: child.fields}
}

// WithError adds an error field
func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// GetZerolog returns a no-op zerolog instance
func (l *TestLogger) GetZerolog() *zerolog.Logger {
	return l.zerolog
}

// Messages returns a copy of the captured messages
func (l *TestLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// HasMessage reports whether a message at the given level containing the
// given text was logged
func (l *TestLogger) HasMessage(level, contains string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m.Level == level && containsSubstring(m.Message, contains) {
			return true
		}
	}
	return false
}

func containsSubstring(s, sub string) bool {
	if sub == "" {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// chainedTestLogger writes through to its parent so captured messages stay
// visible from the root TestLogger
type chainedTestLogger struct {
	parent *TestLogger
	fields map[string]interface{}
}

func (c *chainedTestLogger) log(level, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	c.parent.log(level, msg, merged)
}

func (c *chainedTestLogger) Debug(msg string) { c.log("DEBUG", msg, nil) }
func (c *chainedTestLogger) Info(msg string)  { c.log("INFO", msg, nil) }
func (c *chainedTestLogger) Warn(msg string)  { c.log("WARN", msg, nil) }
func (c *chainedTestLogger) Error(msg string) { c.log("ERROR", msg, nil) }
func (c *chainedTestLogger) Fatal(msg string) { c.log("FATAL", msg, nil) }

func (c *chainedTestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	c.log("DEBUG", msg, fields)
}

func (c *chainedTestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	c.log("INFO", msg, fields)
}

func (c *chainedTestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	c.log("WARN", msg, fields)
}

func (c *chainedTestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	c.log("ERROR", msg, fields)
}

func (c *chainedTestLogger) WithField(key string, value interface{}) Logger {
	return c.WithFields(map[string]interface{}{key: value})
}

func (c *chainedTestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &chainedTestLogger{parent: c.parent, fields: merged}
}

func (c *chainedTestLogger) WithError(err error) Logger {
	if err == nil {
		return c
	}
	return c.WithField("error", err.Error())
}

func (c *chainedTestLogger) GetZerolog() *zerolog.Logger {
	return c.parent.zerolog
}
