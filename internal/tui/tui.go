package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/panleme/panleme/internal/chat"
	"github.com/panleme/panleme/internal/persona"
)

// programHolder breaks the construction cycle between the model and the
// program: store callbacks need program.Send, but the program is created
// from the model. Callbacks read the pointer through the holder and drop
// events that arrive before the program exists.
type programHolder struct {
	mu sync.Mutex
	p  *tea.Program
}

func (h *programHolder) set(p *tea.Program) {
	h.mu.Lock()
	h.p = p
	h.mu.Unlock()
}

func (h *programHolder) get() *tea.Program {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.p
}

// Run starts the interactive chat frontend and blocks until the user quits.
func Run(cfg Config, store *chat.Store, personas *persona.Registry) error {
	holder := &programHolder{}
	m := NewModel(cfg, store, personas, holder)
	p := tea.NewProgram(m)
	holder.set(p)

	// Store mutations can originate inside Update; Send must not run on the
	// event loop goroutine or it blocks against itself.
	store.SetOnChange(func() {
		go p.Send(storeChangedMsg{})
	})
	defer func() {
		store.SetOnChange(nil)
		store.CancelAllStreams()
	}()

	_, err := p.Run()
	return err
}
