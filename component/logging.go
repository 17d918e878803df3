package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// LogEntry is the wire form of one runtime log record. Entries are
// published to the `logs.{cmp-id}` NATS subject when the component was
// constructed with a connection, so an operations dashboard can follow a
// running system without scraping process output.
type LogEntry struct {
	Timestamp string `json:"timestamp"` // RFC3339 format
	Level     string `json:"level"`
	CmpID     string `json:"cmp_id"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// Logger is the component runtime's logger: structured local logging via
// slog, plus optional streaming of every entry to NATS. All of the
// runtime's own events (handler panics, dropped emits, dropped snapshot
// publications) flow through it.
type Logger struct {
	cmpID  string
	nc     *nats.Conn
	logger *slog.Logger
}

// NewLogger creates a component logger. Entries are streamed to NATS only
// when a connection is provided.
func NewLogger(cmpID string, nc *nats.Conn, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		cmpID:  cmpID,
		nc:     nc,
		logger: logger,
	}
}

// Debug logs a debug-level entry with optional slog attributes.
func (cl *Logger) Debug(msg string, args ...any) {
	cl.log(slog.LevelDebug, msg, nil, args)
}

// Info logs an info-level entry with optional slog attributes.
func (cl *Logger) Info(msg string, args ...any) {
	cl.log(slog.LevelInfo, msg, nil, args)
}

// Warn logs a warning-level entry with optional slog attributes.
func (cl *Logger) Warn(msg string, args ...any) {
	cl.log(slog.LevelWarn, msg, nil, args)
}

// Error logs an error-level entry. err may be nil when the failure is
// described by the message and attributes alone.
func (cl *Logger) Error(msg string, err error, args ...any) {
	cl.log(slog.LevelError, msg, err, args)
}

func (cl *Logger) log(level slog.Level, msg string, err error, args []any) {
	attrs := append([]any{"cmp_id", cl.cmpID}, args...)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	cl.logger.Log(context.Background(), level, msg, attrs...)

	cl.stream(level, msg, err)
}

// stream publishes one entry to NATS; failures fall back to local logging
// and never propagate.
func (cl *Logger) stream(level slog.Level, msg string, err error) {
	nc := cl.nc
	if nc == nil {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		CmpID:     cl.cmpID,
		Message:   msg,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		cl.logger.Error("Failed to marshal log entry", "error", marshalErr)
		return
	}

	subject := fmt.Sprintf("logs.%s", cl.cmpID)
	if pubErr := nc.Publish(subject, data); pubErr != nil {
		cl.logger.Error("Failed to publish log to NATS", "error", pubErr, "subject", subject)
	}
}
