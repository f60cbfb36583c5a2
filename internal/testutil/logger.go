// Package testutil holds test helpers shared across packages.
package testutil

import (
	"context"
	"sync"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

// Entry is one captured log call.
type Entry struct {
	Level   string
	Logger  string
	Message string
	Fields  []logging.Field
}

// Field returns the value of the first field named key.
func (e Entry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

type sink struct {
	mu      sync.Mutex
	entries []Entry
}

// RecordingLogger implements logging.Logger and keeps every entry in memory.
// Children created by With and Named write to the same sink.
type RecordingLogger struct {
	sink   *sink
	name   string
	fields []logging.Field
}

// NewRecordingLogger returns an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{sink: &sink{}}
}

func (l *RecordingLogger) record(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, Entry{Level: level, Logger: l.name, Message: msg, Fields: all})
}

func (l *RecordingLogger) Debug(msg string, fields ...logging.Field) { l.record(logging.LevelDebug, msg, fields) }
func (l *RecordingLogger) Info(msg string, fields ...logging.Field)  { l.record(logging.LevelInfo, msg, fields) }
func (l *RecordingLogger) Warn(msg string, fields ...logging.Field)  { l.record(logging.LevelWarn, msg, fields) }
func (l *RecordingLogger) Error(msg string, fields ...logging.Field) { l.record(logging.LevelError, msg, fields) }

// Fatal records the entry without exiting.
func (l *RecordingLogger) Fatal(msg string, fields ...logging.Field) { l.record("fatal", msg, fields) }

func (l *RecordingLogger) With(fields ...logging.Field) logging.Logger {
	child := *l
	child.fields = append(append([]logging.Field(nil), l.fields...), fields...)
	return &child
}

func (l *RecordingLogger) WithContext(context.Context) logging.Logger { return l }

func (l *RecordingLogger) WithError(err error) logging.Logger {
	return l.With(logging.Err(err))
}

func (l *RecordingLogger) Named(name string) logging.Logger {
	child := *l
	if child.name == "" {
		child.name = name
	} else {
		child.name += "." + name
	}
	return &child
}

func (l *RecordingLogger) Sync() error { return nil }

// Entries returns a copy of everything recorded so far.
func (l *RecordingLogger) Entries() []Entry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return append([]Entry(nil), l.sink.entries...)
}

// Filter returns the entries logged at level.
func (l *RecordingLogger) Filter(level string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether msg was logged at level.
func (l *RecordingLogger) Has(level, msg string) bool {
	for _, e := range l.Filter(level) {
		if e.Message == msg {
			return true
		}
	}
	return false
}

var _ logging.Logger = (*RecordingLogger)(nil)
