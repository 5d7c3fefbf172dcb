// Package storage persists bus telemetry: a JSONL event log per transcript and an
// in-memory usage summary of the run.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dohr-michael/groqlink/internal/events"
)

// EventLogger appends bus events as JSONL to dir, one file per transcript and
// _global.jsonl for events outside a transcript.
type EventLogger struct {
	dir    string
	redact bool

	mu          sync.Mutex
	files       map[string]*os.File
	unsubscribe func()
}

// EventLoggerOptions configures an EventLogger.
type EventLoggerOptions struct {
	// RedactPrompts drops prompt text from prompt.submitted events.
	RedactPrompts bool
}

// NewEventLogger subscribes to every event on bus.
func NewEventLogger(dir string, bus *events.Bus, opts EventLoggerOptions) *EventLogger {
	el := &EventLogger{
		dir:    dir,
		redact: opts.RedactPrompts,
		files:  make(map[string]*os.File),
	}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes and closes open log files.
func (el *EventLogger) Close() error {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	var firstErr error
	for key, f := range el.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(el.files, key)
	}
	return firstErr
}

func (el *EventLogger) handleEvent(e events.Event) {
	if el.redact && e.Type == events.EventPromptSubmitted {
		e.Payload = map[string]any{"redacted": true}
	}
	if err := el.write(e); err != nil {
		slog.Debug("event log write failed", "type", e.Type, "error", err)
	}
}

func (el *EventLogger) write(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	f, err := el.fileFor(e.SessionID)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

func (el *EventLogger) fileFor(sessionID string) (*os.File, error) {
	if f, ok := el.files[sessionID]; ok {
		return f, nil
	}
	if err := os.MkdirAll(el.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	f, err := os.OpenFile(el.logPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	el.files[sessionID] = f
	return f, nil
}

func (el *EventLogger) logPath(sessionID string) string {
	if sessionID == "" {
		return filepath.Join(el.dir, "_global.jsonl")
	}
	return filepath.Join(el.dir, sessionID+".jsonl")
}
