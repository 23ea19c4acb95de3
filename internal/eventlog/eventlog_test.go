package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	l.Log(EventSessionStart, map[string]any{"session_id": "123"})
	l.Log(EventMessageSent, map[string]any{"length": 42})
	l.Close()

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %v err=%v", entries, err)
	}

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var types []Type
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var evt Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			t.Fatalf("bad JSONL line %q: %v", scanner.Text(), err)
		}
		if evt.RunID == "" {
			t.Error("expected run_id on every event")
		}
		types = append(types, evt.Type)
	}
	if len(types) != 2 || types[0] != EventSessionStart || types[1] != EventMessageSent {
		t.Errorf("unexpected event types %v", types)
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	l.Log(EventStorageError, "must not panic")
	l.Close()
}

func TestLogger_LogAfterClose(t *testing.T) {
	l, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Close()
	l.Log(EventSessionStart, nil) // must not panic
}
