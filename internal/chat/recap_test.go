package chat

import (
	"testing"
	"time"

	"github.com/panleme/panleme/internal/persona"
)

func recapConfig() *persona.RecapConfig {
	return &persona.RecapConfig{
		SystemPrompt:    "你是复盘助手",
		PromptStartTime: 20,
		PromptDuration:  5,
	}
}

func at(hour int) time.Time {
	return time.Date(2026, 8, 31, hour, 30, 0, 0, time.Local)
}

func userMsg(content string) Message {
	return Message{ID: "1", Role: RoleUser, Content: content, Kind: KindText}
}

func TestRecapDueInsideWindow(t *testing.T) {
	msgs := []Message{userMsg("今天很开心")}

	for _, hour := range []int{20, 23, 0} {
		if !RecapDue(msgs, recapConfig(), at(hour)) {
			t.Errorf("hour %d: expected recap due", hour)
		}
	}
}

func TestRecapNotDueOutsideWindow(t *testing.T) {
	msgs := []Message{userMsg("今天很开心")}

	for _, hour := range []int{19, 1, 2, 12} {
		if RecapDue(msgs, recapConfig(), at(hour)) {
			t.Errorf("hour %d: expected recap not due", hour)
		}
	}
}

func TestRecapNotDueWithoutUserMessages(t *testing.T) {
	if RecapDue(nil, recapConfig(), at(21)) {
		t.Error("empty transcript should not be eligible")
	}

	msgs := []Message{
		{ID: "1", Role: RoleAssistant, Content: "你好", Kind: KindText},
		{ID: "2", Role: RoleUser, Content: "recap requested", Kind: KindSummaryRequest},
	}
	if RecapDue(msgs, recapConfig(), at(21)) {
		t.Error("hidden user messages should not count")
	}
}

func TestRecapNotDueWithoutConfig(t *testing.T) {
	msgs := []Message{userMsg("hi")}

	if RecapDue(msgs, nil, at(21)) {
		t.Error("nil config should not be eligible")
	}
	if RecapDue(msgs, &persona.RecapConfig{PromptStartTime: 20, PromptDuration: 5}, at(21)) {
		t.Error("empty system prompt should not be eligible")
	}
}

func TestRecapNotDueAfterRecapGenerated(t *testing.T) {
	msgs := []Message{
		userMsg("今天很开心"),
		{ID: "2", Role: RoleUser, Content: "recap requested", Kind: KindSummaryRequest},
		{ID: "3", Role: RoleAssistant, Content: "今日复盘…", Kind: KindStreaming, Status: StatusCompleted},
	}
	if RecapDue(msgs, recapConfig(), at(21)) {
		t.Error("recap already generated in window, should not re-offer")
	}

	// New user content after the recap makes it eligible again.
	msgs = append(msgs, Message{ID: "4", Role: RoleUser, Content: "补充一句", Kind: KindText})
	if !RecapDue(msgs, recapConfig(), at(21)) {
		t.Error("new user message after recap should restore eligibility")
	}
}

func TestInWindowNoWraparound(t *testing.T) {
	// start=9 duration=3 covers 9, 10, 11.
	cases := map[int]bool{8: false, 9: true, 11: true, 12: false}
	for hour, want := range cases {
		if got := inWindow(hour, 9, 3); got != want {
			t.Errorf("inWindow(%d, 9, 3) = %v, want %v", hour, got, want)
		}
	}

	if inWindow(10, 9, 0) {
		t.Error("zero duration should never match")
	}
}
