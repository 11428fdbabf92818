package mocks

import (
	"sync"

	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// LogCall represents a captured log call
type LogCall struct {
	Level   string
	Message string
	Fields  []ports.Field
}

// RecordingLogger captures log calls so tests can assert on them
type RecordingLogger struct {
	mu    sync.Mutex
	calls []LogCall
}

// NewRecordingLogger creates an empty recording logger
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) record(level, msg string, fields []ports.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, LogCall{Level: level, Message: msg, Fields: fields})
}

func (l *RecordingLogger) Info(msg string, fields ...ports.Field)  { l.record("info", msg, fields) }
func (l *RecordingLogger) Error(msg string, fields ...ports.Field) { l.record("error", msg, fields) }
func (l *RecordingLogger) Warn(msg string, fields ...ports.Field)  { l.record("warn", msg, fields) }
func (l *RecordingLogger) Debug(msg string, fields ...ports.Field) { l.record("debug", msg, fields) }

// Messages returns the messages logged at level
func (l *RecordingLogger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, c := range l.calls {
		if c.Level == level {
			out = append(out, c.Message)
		}
	}
	return out
}
