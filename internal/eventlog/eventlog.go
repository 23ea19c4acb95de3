// Package eventlog writes structured JSONL events for diagnostics. It is the
// local stand-in for the breadcrumb/telemetry collaborator: events stay on
// disk, nothing is reported remotely.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event.
type Type string

const (
	EventSessionStart  Type = "session_start"
	EventSessionLoaded Type = "session_loaded"
	EventMessageSent   Type = "message_sent"
	EventStreamFailed  Type = "stream_failed"
	EventRecapStarted  Type = "recap_started"
	EventRecapDone     Type = "recap_completed"
	EventStorageError  Type = "storage_error"
)

// Event is a single structured entry in the log.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"ts"`
	RunID     string    `json:"run_id"`
	Data      any       `json:"data,omitempty"`
}

// Logger writes events to <dir>/<run id>.jsonl. A nil *Logger is a valid
// no-op logger, so callers never need to guard Log calls.
type Logger struct {
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	runID string
}

// New creates a logger writing into dir. The run id is a fresh uuid prefix,
// one file per process run.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create events directory %s: %w", dir, err)
	}

	runID := uuid.New().String()[:8]
	path := filepath.Join(dir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}

	return &Logger{
		file:  f,
		enc:   json.NewEncoder(f),
		runID: runID,
	}, nil
}

// Log writes one event. Best effort: encode errors are dropped.
func (l *Logger) Log(evtType Type, data any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enc == nil {
		return
	}
	_ = l.enc.Encode(Event{
		Type:      evtType,
		Timestamp: time.Now(),
		RunID:     l.runID,
		Data:      data,
	})
}

// Close flushes and closes the log file.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
		l.enc = nil
	}
}
