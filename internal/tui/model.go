// Package tui implements the interactive terminal frontend: a persona
// chooser, the chat view with live token streaming, and a plain stdio
// fallback for non-terminal output.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/panleme/panleme/internal/chat"
	"github.com/panleme/panleme/internal/persona"
)

// ---------- messages sent from store callbacks via program.Send() ----------

// storeChangedMsg fires whenever the conversation store mutates.
type storeChangedMsg struct{}

// streamDeltaMsg carries the full accumulated content of an in-flight
// streaming message, not the delta; attaching mid-stream stays lossless.
type streamDeltaMsg struct {
	id   string
	full string
}

// ---------- view modes ----------

type viewMode int

const (
	modeChooser viewMode = iota
	modeChat
)

// Config carries version/model info for the welcome page and status bar.
type Config struct {
	Version     string
	Model       string
	ShowWelcome bool
}

// ---------- styles ----------

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	recapHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("179")).
			Italic(true)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	statusModelStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("2")).
				Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	// Persona chooser
	chooserTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	chooserSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	chooserDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	// Welcome box
	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	welcomeLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8"))

	welcomeValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))
)

var typingSpinner = spinner.Spinner{
	Frames: []string{"·", "✢", "✳", "✶", "✻", "✽", "✻", "✶", "✳", "✢"},
	FPS:    120 * time.Millisecond,
}

// ---------- chooser items ----------

// chooserItem is one selectable row: either a persona to start (or resume)
// today's session with, or a past session to reopen.
type chooserItem struct {
	label     string
	personaID string
	sessionID string
}

// ---------- Model ----------

// Model is the bubbletea model for the chat frontend. Finalized messages go
// to terminal scrollback via tea.Println; View renders only the live area
// (streaming text, input, status bar).
type Model struct {
	store    *chat.Store
	personas *persona.Registry
	cfg      Config
	holder   *programHolder

	mode       viewMode
	items      []chooserItem
	chooserSel int

	textinput textinput.Model
	spinner   spinner.Model
	width     int
	height    int

	streamingID string
	liveContent string
	unsubscribe func()

	quitting bool

	mdRenderer      *glamour.TermRenderer
	mdRendererWidth int
}

// NewModel creates the initial model. holder gains its program pointer in
// Run, before any store callback can fire.
func NewModel(cfg Config, store *chat.Store, personas *persona.Registry, holder *programHolder) Model {
	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = typingSpinner
	sp.Style = spinnerStyle

	m := Model{
		store:     store,
		personas:  personas,
		cfg:       cfg,
		holder:    holder,
		textinput: ti,
		spinner:   sp,
		mode:      modeChooser,
	}
	m.items = buildChooserItems(personas, store)
	if store.PersonaType() != persona.TypeUnselected {
		m.mode = modeChat
		m.textinput.Focus()
	}
	return m
}

func buildChooserItems(reg *persona.Registry, store *chat.Store) []chooserItem {
	var items []chooserItem
	for _, p := range reg.List() {
		label := p.Name
		if p.Description != "" {
			label += "  " + chooserDimStyle.Render(p.Description)
		}
		items = append(items, chooserItem{label: label, personaID: p.ID})
	}
	sessions := store.Sessions()
	for i, sess := range sessions {
		if i >= 5 {
			break
		}
		items = append(items, chooserItem{
			label:     "继续 " + sess.Title,
			sessionID: sess.ID,
		})
	}
	return items
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.cfg.ShowWelcome {
		cmds = append(cmds, tea.Println(renderWelcome(m.cfg)))
	}
	if m.mode == modeChat {
		cmds = append(cmds, m.transcriptCmds()...)
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textinput.Width = m.width - 4

	case spinner.TickMsg:
		if m.streamingID != "" {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	case streamDeltaMsg:
		// Snapshots are monotone; async delivery may reorder them, so only
		// ever grow the live content.
		if msg.id == m.streamingID && len(msg.full) > len(m.liveContent) {
			m.liveContent = msg.full
		}

	case storeChangedMsg:
		return m.handleStoreChanged()
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := msg.String()

	if m.mode == modeChooser {
		switch s {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.chooserSel > 0 {
				m.chooserSel--
			}
		case "down", "j":
			if m.chooserSel < len(m.items)-1 {
				m.chooserSel++
			}
		case "enter":
			return m.selectItem(m.chooserSel)
		default:
			if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
				if idx := int(s[0]-'1'); idx < len(m.items) {
					return m.selectItem(idx)
				}
			}
		}
		return m, nil
	}

	switch s {
	case "ctrl+c":
		m.store.CancelAllStreams()
		m.quitting = true
		return m, tea.Quit
	case "esc":
		if m.streamingID != "" {
			m.store.CancelAllStreams()
			return m, nil
		}
	case "enter":
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	return m, cmd
}

func (m Model) selectItem(idx int) (tea.Model, tea.Cmd) {
	if idx < 0 || idx >= len(m.items) {
		return m, nil
	}
	item := m.items[idx]
	if item.sessionID != "" {
		m.store.LoadSession(item.sessionID)
	} else {
		m.store.StartOrSwitchToSession(item.personaID)
	}
	m.mode = modeChat
	m.textinput.Focus()
	return m, tea.Batch(m.transcriptCmds()...)
}

// transcriptCmds prints the visible transcript of the freshly opened session
// into scrollback and acknowledges any pending greeting animation.
func (m *Model) transcriptCmds() []tea.Cmd {
	var cmds []tea.Cmd
	for _, msg := range m.store.Messages() {
		if msg.Hidden() {
			continue
		}
		cmds = append(cmds, tea.Println(m.renderMessage(msg)))
		if msg.ShouldAnimate {
			m.store.MarkAnimationDone(msg.ID)
		}
	}
	return cmds
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.textinput.Value())
	m.textinput.SetValue("")

	switch text {
	case "":
		return m, nil
	case "/quit", "/exit":
		m.store.CancelAllStreams()
		m.quitting = true
		return m, tea.Quit
	case "/new":
		m.store.CancelAllStreams()
		m.detachStream()
		m.items = buildChooserItems(m.personas, m.store)
		m.chooserSel = 0
		m.mode = modeChooser
		m.textinput.Blur()
		return m, nil
	case "/recap":
		return m.startRecap()
	case "/sessions":
		var lines []string
		for _, sess := range m.store.Sessions() {
			lines = append(lines, "  "+sess.Title)
		}
		if len(lines) == 0 {
			lines = append(lines, "  (暂无会话)")
		}
		return m, tea.Println(systemStyle.Render(strings.Join(lines, "\n")))
	}

	id := m.store.SendMessage(text)
	if id == "" {
		return m, nil
	}
	cmds := []tea.Cmd{tea.Println(userStyle.Render("你: ") + text)}
	m.attachStream(id)
	m.store.StartStreaming(id)
	cmds = append(cmds, m.spinner.Tick)
	return m, tea.Batch(cmds...)
}

func (m Model) startRecap() (tea.Model, tea.Cmd) {
	if err := m.store.GenerateSummary(); err != nil {
		return m, tea.Println(errorStyle.Render("无法生成复盘: " + err.Error()))
	}
	msgs := m.store.Messages()
	id := msgs[len(msgs)-1].ID
	m.attachStream(id)
	return m, tea.Batch(
		tea.Println(systemStyle.Render("正在生成今日复盘…")),
		m.spinner.Tick,
	)
}

// attachStream subscribes to a streaming message, forwarding accumulated
// content into the bubbletea loop.
func (m *Model) attachStream(id string) {
	m.detachStream()
	m.streamingID = id
	m.liveContent = ""
	holder := m.holder
	m.unsubscribe = m.store.SubscribeToStream(id, func(full string) {
		if p := holder.get(); p != nil {
			// Async: the replay on subscribe runs on the event loop goroutine.
			go p.Send(streamDeltaMsg{id: id, full: full})
		}
	})
}

func (m *Model) detachStream() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.streamingID = ""
	m.liveContent = ""
}

// handleStoreChanged finalizes the live area once the in-flight message
// reaches a terminal state.
func (m Model) handleStoreChanged() (tea.Model, tea.Cmd) {
	if m.streamingID == "" {
		return m, nil
	}
	for _, msg := range m.store.Messages() {
		if msg.ID != m.streamingID {
			continue
		}
		if !msg.Status.Terminal() {
			return m, nil
		}
		m.detachStream()
		return m, tea.Println(m.renderMessage(msg))
	}
	// Message gone (session switched under us).
	m.detachStream()
	return m, nil
}

// ---------- rendering ----------

func (m *Model) renderMessage(msg chat.Message) string {
	if msg.Role == chat.RoleUser {
		return userStyle.Render("你: ") + msg.Content
	}
	switch msg.Status {
	case chat.StatusFailed:
		return errorStyle.Render(msg.Content)
	case chat.StatusInterrupted:
		out := m.renderMarkdown(msg.Content)
		return out + "\n" + systemStyle.Render("  [已中断]")
	default:
		return m.renderMarkdown(msg.Content)
	}
}

// renderMarkdown renders assistant output with glamour, rebuilding the
// renderer when the terminal width changes.
func (m *Model) renderMarkdown(text string) string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	if m.mdRenderer == nil || m.mdRendererWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-2),
		)
		if err != nil {
			return text
		}
		m.mdRenderer = r
		m.mdRendererWidth = width
	}
	out, err := m.mdRenderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.mode == modeChooser {
		return m.viewChooser()
	}

	var b strings.Builder

	if m.streamingID != "" {
		if m.liveContent == "" {
			b.WriteString(m.spinner.View() + " 正在思考…\n")
		} else {
			// Raw text while streaming; markdown is rendered once at the end.
			b.WriteString(m.liveContent + "\n")
		}
	}

	b.WriteString("\n" + m.textinput.View() + "\n")
	b.WriteString(m.viewStatusBar())
	return b.String()
}

func (m Model) viewChooser() string {
	var b strings.Builder
	b.WriteString("\n" + chooserTitleStyle.Render("选择一个角色开始今天的记录") + "\n\n")
	for i, item := range m.items {
		cursor := "  "
		line := fmt.Sprintf("%d. %s", i+1, item.label)
		if i == m.chooserSel {
			cursor = "❯ "
			line = chooserSelectedStyle.Render(line)
		}
		b.WriteString(cursor + line + "\n")
	}
	b.WriteString("\n" + hintStyle.Render("↑/↓ 选择 · enter 确认 · q 退出") + "\n")
	return b.String()
}

func (m Model) viewStatusBar() string {
	sep := separatorStyle.Render(" │ ")

	parts := []string{statusModelStyle.Render(m.cfg.Model)}
	if p, ok := m.personas.ByID(m.store.PersonaType()); ok {
		parts = append(parts, p.Name)
	}
	if code := m.store.APIErrorStatus(); code != 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("凭证错误 (%d), 运行 panleme verify", code)))
	}
	bar := statusBarStyle.Render(strings.Join(parts, sep))

	if m.store.RecapDue() {
		bar += "\n" + recapHintStyle.Render("  要不要复盘一下今天? 输入 /recap")
	}
	return bar
}

func renderWelcome(cfg Config) string {
	label := welcomeLabelStyle.Render
	value := welcomeValueStyle.Render

	lines := []string{
		welcomeTitleStyle.Render("PanLeMe") + "  " + value("你的随身日记搭子"),
		"",
		label("version ") + value(cfg.Version),
		label("model   ") + value(cfg.Model),
		"",
		hintStyle.Render("/new 换角色 · /recap 今日复盘 · /sessions 历史 · /quit 退出"),
	}
	return welcomeBorderStyle.Render(strings.Join(lines, "\n"))
}
