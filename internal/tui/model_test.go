package tui

import (
	"strings"
	"testing"

	"github.com/panleme/panleme/internal/chat"
	"github.com/panleme/panleme/internal/llm"
	"github.com/panleme/panleme/internal/persona"
	"github.com/panleme/panleme/internal/storage"
)

type nopCompleter struct{}

func (nopCompleter) StreamCompletion([]llm.ChatMessage, string, llm.StreamCallbacks, string, string) func() {
	return func() {}
}

func testStore(t *testing.T, reg *persona.Registry) *chat.Store {
	t.Helper()
	return chat.NewStore(chat.Options{
		KV:        storage.NewMemoryKV(),
		Completer: nopCompleter{},
		Personas:  reg,
		APIKey:    "sk-test",
	})
}

func TestChooserListsPersonasThenRecentSessions(t *testing.T) {
	reg := persona.NewRegistry([]persona.Persona{
		{ID: "happy", Name: "开心", Description: "陪你聊聊"},
		{ID: "daily", Name: "记录"},
	})
	store := testStore(t, reg)

	// One resumable session.
	store.StartNewSession("happy")
	store.SendMessage("写一条")

	items := buildChooserItems(reg, store)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 2 personas + 1 session", len(items))
	}
	if items[0].personaID != "happy" || items[1].personaID != "daily" {
		t.Errorf("personas out of order: %+v", items[:2])
	}
	if items[2].sessionID == "" {
		t.Error("recent session missing from chooser")
	}
	if !strings.Contains(items[2].label, "继续") {
		t.Errorf("session label = %q, want resume prefix", items[2].label)
	}
}

func TestChooserCapsRecentSessions(t *testing.T) {
	reg := persona.NewRegistry([]persona.Persona{{ID: "happy", Name: "开心"}})
	store := testStore(t, reg)

	for i := 0; i < 8; i++ {
		store.StartNewSession("happy")
		store.SendMessage("entry")
	}

	items := buildChooserItems(reg, store)
	// 1 persona + at most 5 sessions.
	if len(items) != 6 {
		t.Errorf("got %d items, want 6", len(items))
	}
}

func TestModelStartsInChooserWhenUnselected(t *testing.T) {
	reg := persona.NewRegistry([]persona.Persona{{ID: "happy", Name: "开心"}})
	store := testStore(t, reg)

	m := NewModel(Config{Model: "deepseek-chat"}, store, reg, &programHolder{})
	if m.mode != modeChooser {
		t.Error("fresh store should open the persona chooser")
	}

	store.StartNewSession("happy")
	m = NewModel(Config{Model: "deepseek-chat"}, store, reg, &programHolder{})
	if m.mode != modeChat {
		t.Error("active session should open straight into chat")
	}
}
