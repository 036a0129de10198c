package monitoring

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1999AZZAR/wikipedia-mcp-server-sub001/internal/ringbuf"
)

// Level orders log records by severity.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Record is one structured log entry retained for the dashboard.
type Record struct {
	Level   Level
	Message string
	Fields  map[string]interface{}
	At      time.Time
}

// LogStore keeps a bounded window of structured log records and forwards each
// one to a zap logger. The ring drops its oldest records once full; nothing
// here ever blocks a caller. It is safe for concurrent use.
type LogStore struct {
	mu      sync.Mutex
	records *ringbuf.Buffer[Record]
	forward *zap.Logger
}

// NewLogStore creates a store keeping at most capacity records. Every record
// is also forwarded to the given zap logger; a nil logger disables
// forwarding.
func NewLogStore(capacity int, forward *zap.Logger) *LogStore {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if forward == nil {
		forward = zap.NewNop()
	}
	return &LogStore{
		records: ringbuf.New[Record](capacity),
		forward: forward,
	}
}

// Debug records a debug-level entry.
func (l *LogStore) Debug(msg string, fields map[string]interface{}) {
	l.log(LevelDebug, msg, fields)
}

// Info records an info-level entry.
func (l *LogStore) Info(msg string, fields map[string]interface{}) {
	l.log(LevelInfo, msg, fields)
}

// Warn records a warn-level entry.
func (l *LogStore) Warn(msg string, fields map[string]interface{}) {
	l.log(LevelWarn, msg, fields)
}

// Error records an error-level entry.
func (l *LogStore) Error(msg string, fields map[string]interface{}) {
	l.log(LevelError, msg, fields)
}

func (l *LogStore) log(level Level, msg string, fields map[string]interface{}) {
	rec := Record{
		Level:   level,
		Message: msg,
		Fields:  fields,
		At:      time.Now(),
	}

	l.mu.Lock()
	l.records.Append(rec)
	l.mu.Unlock()

	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	switch level {
	case LevelDebug:
		l.forward.Debug(msg, zapFields...)
	case LevelInfo:
		l.forward.Info(msg, zapFields...)
	case LevelWarn:
		l.forward.Warn(msg, zapFields...)
	case LevelError:
		l.forward.Error(msg, zapFields...)
	}
}

// Recent returns the retained records at or above minLevel recorded after
// since, oldest first. A positive limit keeps only the newest limit records;
// zero means no limit.
func (l *LogStore) Recent(minLevel Level, since time.Time, limit int) []Record {
	l.mu.Lock()
	records := l.records.Snapshot()
	l.mu.Unlock()

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Level < minLevel {
			continue
		}
		if !since.IsZero() && rec.At.Before(since) {
			continue
		}
		out = append(out, rec)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// RecentErrors returns the newest error-level records, oldest first.
func (l *LogStore) RecentErrors(limit int) []Record {
	return l.Recent(LevelError, time.Time{}, limit)
}

// Len returns the number of records currently retained.
func (l *LogStore) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records.Len()
}
