package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStreamStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to StreamStatus }{
		{StatusPending, StatusLoading},
		{StatusPending, StatusFailed},
		{StatusPending, StatusInterrupted},
		{StatusLoading, StatusCompleted},
		{StatusLoading, StatusFailed},
		{StatusLoading, StatusInterrupted},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransition(tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to StreamStatus }{
		{StatusPending, StatusCompleted},
		{StatusLoading, StatusPending},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusLoading},
		{StatusInterrupted, StatusLoading},
		{StatusInterrupted, StatusCompleted},
	}
	for _, tr := range denied {
		if tr.from.CanTransition(tr.to) {
			t.Errorf("%s -> %s should be rejected", tr.from, tr.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []StreamStatus{StatusCompleted, StatusFailed, StatusInterrupted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []StreamStatus{StatusPending, StatusLoading} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestHiddenMessages(t *testing.T) {
	if (Message{Kind: KindText}).Hidden() {
		t.Error("text messages are visible")
	}
	if (Message{Kind: KindStreaming}).Hidden() {
		t.Error("streaming messages are visible")
	}
	if !(Message{Kind: KindSummaryRequest}).Hidden() {
		t.Error("recap request markers are hidden")
	}
	if !(Message{Kind: Kind("from-the-future")}).Hidden() {
		t.Error("unknown kinds from newer versions are hidden")
	}
}

func TestMessageJSONRoundTrip(t *testing.T) {
	in := Message{
		ID:        "1756677600000",
		Role:      RoleAssistant,
		Content:   "你好呀",
		Timestamp: 1756677600000,
		Kind:      KindStreaming,
		Status:    StatusCompleted,
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Message
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip changed message: %+v != %+v", out, in)
	}

	// Kind is persisted under the legacy "type" field name.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["type"] != "streaming" {
		t.Errorf(`kind persisted as %v, want under "type"`, raw["type"])
	}
}

func TestEffectiveDateCutover(t *testing.T) {
	cases := []struct {
		t    time.Time
		want string
	}{
		{time.Date(2026, 8, 31, 23, 59, 0, 0, time.Local), "2026/8/31"},
		{time.Date(2026, 9, 1, 0, 30, 0, 0, time.Local), "2026/8/31"},
		{time.Date(2026, 9, 1, 1, 59, 0, 0, time.Local), "2026/8/31"},
		{time.Date(2026, 9, 1, 2, 0, 0, 0, time.Local), "2026/9/1"},
		{time.Date(2026, 9, 1, 12, 0, 0, 0, time.Local), "2026/9/1"},
	}
	for _, c := range cases {
		if got := EffectiveDate(c.t); got != c.want {
			t.Errorf("EffectiveDate(%v) = %q, want %q", c.t, got, c.want)
		}
	}
}
