package chat

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panleme/panleme/internal/eventlog"
	"github.com/panleme/panleme/internal/llm"
	"github.com/panleme/panleme/internal/persona"
	"github.com/panleme/panleme/internal/storage"
)

// Completer abstracts the streaming completion client so the store can be
// exercised without a network.
type Completer interface {
	StreamCompletion(messages []llm.ChatMessage, apiKey string, cb llm.StreamCallbacks, model, baseURL string) (cancel func())
}

// MissingKeyContent is the fixed content of a message that failed because no
// API credential was configured. No network call is attempted in that case.
const MissingKeyContent = "Error: API Key missing."

// saveThrottle bounds how often streamed content is committed to durable
// state while deltas keep arriving.
const saveThrottle = time.Second

// summaryTrailer is the final user instruction of a recap prompt.
const summaryTrailer = "请根据以上对话历史数据生成今日复盘"

var (
	ErrNoCredential  = errors.New("no api credential configured")
	ErrNoRecapConfig = errors.New("persona has no recap configuration")
)

// Options configures a Store.
type Options struct {
	KV        storage.KV
	Completer Completer
	Personas  *persona.Registry

	// Log may be nil.
	Log *eventlog.Logger

	// Model and BaseURL are the completion defaults from configuration.
	// Credential and base URL values persisted in KV take precedence.
	Model   string
	BaseURL string

	// APIKey is the configuration fallback when KV holds no credential.
	APIKey string

	// Now is a clock override for tests; nil means time.Now.
	Now func() time.Time
}

// Store owns the in-memory message list of the active session, the session
// index and the streaming lifecycle. Persistence through KV is a side
// effect, not a second source of truth: loading replaces in-memory state
// wholesale. All mutation is serialized by one mutex; the only concurrency
// is the completion client's network goroutine delivering callbacks.
type Store struct {
	mu        sync.Mutex
	kv        storage.KV
	completer Completer
	personas  *persona.Registry
	log       *eventlog.Logger
	model     string
	baseURL   string
	apiKey    string
	now       func() time.Time

	messages       []Message
	sessions       []Session
	sessionID      string
	personaType    string
	streaming      bool
	apiErrorStatus int

	fanout       *streamFanout
	cancelStream func()
	lastSaveAt   time.Time
	lastID       int64

	onChange func()
}

// NewStore creates a store and loads the persisted session index.
// Corrupt stored JSON is logged and leaves state at its default.
func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{
		kv:          opts.KV,
		completer:   opts.Completer,
		personas:    opts.Personas,
		log:         opts.Log,
		model:       opts.Model,
		baseURL:     opts.BaseURL,
		apiKey:      opts.APIKey,
		now:         now,
		personaType: persona.TypeUnselected,
		fanout:      newStreamFanout(),
	}
	s.loadSessions()
	return s
}

// SetOnChange registers the state-change listener. The listener is invoked
// after mutations, outside the store lock; it must not assume which
// goroutine it runs on.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ── Accessors ────────────────────────────────────────────────────────────────

// Messages returns a copy of the active session's transcript.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Sessions returns a copy of the session index, newest first.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Store) PersonaType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personaType
}

func (s *Store) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// APIErrorStatus returns 401 or 402 after an authentication or balance
// failure, so the UI can prompt re-configuration. 0 otherwise.
func (s *Store) APIErrorStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiErrorStatus
}

func (s *Store) ClearAPIError() {
	s.mu.Lock()
	s.apiErrorStatus = 0
	s.mu.Unlock()
}

// RecapDue reports whether the user should be offered a recap right now.
func (s *Store) RecapDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.activePersonaLocked()
	if !ok {
		return false
	}
	return RecapDue(s.messages, p.Summary, s.now())
}

// ── Session lifecycle ────────────────────────────────────────────────────────

// StartNewSession persists the current session (when it has user content),
// clears in-memory messages and starts a fresh session of the given persona
// type. A concrete persona contributes its greeting immediately; the durable
// index entry is still deferred until the first user-authored message.
func (s *Store) StartNewSession(personaType string) {
	s.mu.Lock()
	if s.personaType != persona.TypeUnselected {
		s.saveCurrentSessionLocked()
	}

	s.messages = nil
	s.personaType = personaType
	s.sessionID = s.nextIDLocked()
	s.streaming = false

	if personaType != persona.TypeUnselected {
		if p, ok := s.activePersonaLocked(); ok {
			s.messages = append(s.messages, Message{
				ID:            s.nextIDLocked(),
				Role:          RoleAssistant,
				Content:       p.InitialMessage,
				Timestamp:     s.now().UnixMilli(),
				Kind:          KindText,
				ShouldAnimate: true,
			})
		}
		s.saveCurrentSessionLocked()
		s.log.Log(eventlog.EventSessionStart, map[string]any{
			"session_id":   s.sessionID,
			"persona_type": personaType,
		})
	}
	s.mu.Unlock()
	s.notify()
}

// LoadSession replaces in-memory state with the persisted transcript. A
// missing blob is a silent no-op. Messages found in a non-terminal streaming
// status are forced to interrupted (crash recovery) and the correction is
// persisted immediately.
func (s *Store) LoadSession(id string) {
	s.mu.Lock()
	stored, ok := s.kv.GetString(storage.SessionKey(id))
	if !ok {
		s.mu.Unlock()
		return
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(stored), &msgs); err != nil {
		s.log.Log(eventlog.EventStorageError, map[string]any{
			"context":    "load_session",
			"session_id": id,
			"error":      err.Error(),
		})
		s.mu.Unlock()
		return
	}

	s.messages = msgs
	s.sessionID = id
	if i := s.findSessionLocked(id); i != -1 {
		s.personaType = s.sessions[i].Type
	}
	s.bumpLastIDLocked(id)
	for _, m := range msgs {
		s.bumpLastIDLocked(m.ID)
	}

	changed := false
	for i := range s.messages {
		m := &s.messages[i]
		if m.Kind == KindStreaming && !m.Status.Terminal() {
			m.Status = StatusInterrupted
			changed = true
		}
	}
	if changed {
		s.saveCurrentSessionLocked()
	}

	s.log.Log(eventlog.EventSessionLoaded, map[string]any{
		"session_id":    id,
		"persona_type":  s.personaType,
		"message_count": len(s.messages),
	})
	s.mu.Unlock()
	s.notify()
}

// DeleteSession removes the index entry and the persisted blob. Deleting
// the active session resets the store to the unselected sentinel.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	if i := s.findSessionLocked(id); i != -1 {
		s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
		s.saveSessionsLocked()
	}
	if err := s.kv.Delete(storage.SessionKey(id)); err != nil {
		s.log.Log(eventlog.EventStorageError, map[string]any{
			"context": "delete_session",
			"error":   err.Error(),
		})
	}
	active := s.sessionID == id
	if active {
		// Prevent the reset below from persisting the deleted session.
		s.personaType = persona.TypeUnselected
	}
	s.mu.Unlock()

	if active {
		s.StartNewSession(persona.TypeUnselected)
	} else {
		s.notify()
	}
}

// TodaySession returns the newest session of the given persona type whose
// effective day matches today.
func (s *Store) TodaySession(personaType string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := EffectiveDate(s.now())
	for _, sess := range s.sessions {
		if sess.Type == personaType && effectiveDateOfMillis(sess.Timestamp) == today {
			return sess, true
		}
	}
	return Session{}, false
}

// StartOrSwitchToSession resumes today's session of the given persona type
// when one exists, otherwise starts a new one.
func (s *Store) StartOrSwitchToSession(personaType string) {
	if existing, ok := s.TodaySession(personaType); ok {
		s.mu.Lock()
		if s.personaType != persona.TypeUnselected {
			s.saveCurrentSessionLocked()
		}
		s.mu.Unlock()
		s.LoadSession(existing.ID)
		return
	}
	s.StartNewSession(personaType)
}

// ── Messaging ────────────────────────────────────────────────────────────────

// SendMessage appends the user's entry and a pending assistant placeholder,
// interrupting any in-flight stream. It returns the placeholder id; the
// network call starts only once a consumer calls StartStreaming for it.
// Blank input is a no-op returning "".
func (s *Store) SendMessage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	s.mu.Lock()
	s.messages = append(s.messages, Message{
		ID:        s.nextIDLocked(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: s.now().UnixMilli(),
		Kind:      KindText,
	})
	s.saveCurrentSessionLocked()

	s.cancelStreamsLocked()

	placeholder := Message{
		ID:        s.nextIDLocked(),
		Role:      RoleAssistant,
		Timestamp: s.now().UnixMilli(),
		Kind:      KindStreaming,
		Status:    StatusPending,
	}
	s.messages = append(s.messages, placeholder)
	s.saveCurrentSessionLocked()

	s.log.Log(eventlog.EventMessageSent, map[string]any{
		"session_id":     s.sessionID,
		"persona_type":   s.personaType,
		"message_length": len(text),
	})
	s.mu.Unlock()
	s.notify()
	return placeholder.ID
}

// SubscribeToStream attaches the single subscriber for a streaming message.
// Already-buffered content is replayed immediately. The returned function
// unsubscribes.
func (s *Store) SubscribeToStream(id string, fn func(content string)) (unsubscribe func()) {
	return s.fanout.subscribe(id, fn)
}

// CancelAllStreams aborts the in-flight network stream (if any) and forces
// every non-terminal streaming message to interrupted. Interruption is a
// terminal state, not an error.
func (s *Store) CancelAllStreams() {
	s.mu.Lock()
	s.cancelStreamsLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) cancelStreamsLocked() {
	if s.cancelStream != nil {
		s.cancelStream()
		s.cancelStream = nil
	}
	s.streaming = false
	s.fanout.clearBuffers()
	for i := range s.messages {
		m := &s.messages[i]
		if m.Kind == KindStreaming && !m.Status.Terminal() {
			m.Status = StatusInterrupted
		}
	}
}

// StartStreaming transitions a pending placeholder to loading and issues
// the completion request. Invoked by the presentation layer when it begins
// observing the message, so network activity tracks visibility rather than
// creation. No-op unless the message is a pending streaming message.
func (s *Store) StartStreaming(messageID string) {
	s.mu.Lock()
	idx := s.findMessageLocked(messageID)
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	m := &s.messages[idx]
	if m.Kind != KindStreaming || m.Status != StatusPending {
		s.mu.Unlock()
		return
	}

	m.Status = StatusLoading
	s.streaming = true
	s.fanout.start(messageID)
	s.lastSaveAt = s.now()

	history := make([]llm.ChatMessage, 0, idx+1)
	if p, ok := s.activePersonaLocked(); ok {
		history = append(history, llm.ChatMessage{Role: string(RoleSystem), Content: p.SystemPrompt})
	}
	for _, pm := range s.messages[:idx] {
		if pm.Hidden() {
			continue
		}
		history = append(history, llm.ChatMessage{
			Role:      string(pm.Role),
			Content:   pm.Content,
			Timestamp: pm.Timestamp,
		})
	}

	apiKey := s.apiKeyLocked()
	if apiKey == "" {
		m.Status = StatusFailed
		m.Content = MissingKeyContent
		s.streaming = false
		s.fanout.discard(messageID)
		s.saveCurrentSessionLocked()
		s.mu.Unlock()
		s.notify()
		return
	}

	s.cancelStream = s.completer.StreamCompletion(history, apiKey,
		s.streamCallbacks(messageID, "Error", nil), s.model, s.baseURLLocked())
	s.mu.Unlock()
	s.notify()
}

// GenerateSummary appends a hidden recap request marker plus a streaming
// placeholder that goes straight to loading (recaps are explicitly
// user-initiated, not lazily triggered), then requests a completion over the
// persona's recap prompt and a JSON transcript of the user's entries. On
// success the session title becomes "recap-<effective date>".
func (s *Store) GenerateSummary() error {
	s.mu.Lock()
	apiKey := s.apiKeyLocked()
	if apiKey == "" {
		s.mu.Unlock()
		return ErrNoCredential
	}
	p, ok := s.activePersonaLocked()
	if !ok || p.Summary == nil {
		s.mu.Unlock()
		return ErrNoRecapConfig
	}

	s.cancelStreamsLocked()

	s.messages = append(s.messages, Message{
		ID:        s.nextIDLocked(),
		Role:      RoleUser,
		Content:   "recap requested",
		Timestamp: s.now().UnixMilli(),
		Kind:      KindSummaryRequest,
	})

	placeholder := Message{
		ID:        s.nextIDLocked(),
		Role:      RoleAssistant,
		Timestamp: s.now().UnixMilli(),
		Kind:      KindStreaming,
		Status:    StatusPending,
	}
	s.messages = append(s.messages, placeholder)

	// Force the subscriber-triggered transition; the request starts now.
	idx := len(s.messages) - 1
	s.messages[idx].Status = StatusLoading
	s.streaming = true
	s.fanout.start(placeholder.ID)
	s.lastSaveAt = s.now()
	s.saveCurrentSessionLocked()

	type transcriptEntry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Time    string `json:"time"`
	}
	var transcript []transcriptEntry
	for _, m := range s.messages {
		if m.Role != RoleUser || m.Hidden() {
			continue
		}
		transcript = append(transcript, transcriptEntry{
			Role:    string(m.Role),
			Content: m.Content,
			Time:    time.UnixMilli(m.Timestamp).Format("15:04:05"),
		})
	}
	historyJSON, _ := json.Marshal(transcript)

	prompt := []llm.ChatMessage{
		{Role: string(RoleSystem), Content: p.Summary.SystemPrompt},
		{Role: string(RoleUser), Content: string(historyJSON)},
		{Role: string(RoleUser), Content: summaryTrailer},
	}

	s.log.Log(eventlog.EventRecapStarted, map[string]any{
		"session_id":   s.sessionID,
		"persona_type": s.personaType,
	})

	onCompleted := func() {
		if i := s.findSessionLocked(s.sessionID); i != -1 {
			s.sessions[i].Title = "recap-" + EffectiveDate(s.now())
			s.saveSessionsLocked()
		}
		s.log.Log(eventlog.EventRecapDone, map[string]any{"session_id": s.sessionID})
	}

	s.cancelStream = s.completer.StreamCompletion(prompt, apiKey,
		s.streamCallbacks(placeholder.ID, "Summary Error", onCompleted), s.model, s.baseURLLocked())
	s.mu.Unlock()
	s.notify()
	return nil
}

// streamCallbacks builds the callback set for one in-flight message.
// onCompleted, when set, runs under the store lock after a successful
// completion. Late callbacks arriving after an interruption are dropped by
// the transition guards.
func (s *Store) streamCallbacks(messageID, errLabel string, onCompleted func()) llm.StreamCallbacks {
	return llm.StreamCallbacks{
		OnDelta: func(delta string) {
			full := s.fanout.append(messageID, delta)

			// Throttled durable commit.
			committed := false
			s.mu.Lock()
			if s.now().Sub(s.lastSaveAt) > saveThrottle {
				if i := s.findMessageLocked(messageID); i != -1 && s.messages[i].Status == StatusLoading {
					s.messages[i].Content = full
					s.saveCurrentSessionLocked()
					s.lastSaveAt = s.now()
					committed = true
				}
			}
			s.mu.Unlock()
			if committed {
				s.notify()
			}
		},
		OnFinish: func() {
			s.mu.Lock()
			s.streaming = false
			if i := s.findMessageLocked(messageID); i != -1 {
				m := &s.messages[i]
				if m.Kind == KindStreaming && m.Status.CanTransition(StatusCompleted) {
					m.Status = StatusCompleted
					if full, ok := s.fanout.content(messageID); ok {
						m.Content = full
					}
					if onCompleted != nil {
						onCompleted()
					}
				}
			}
			s.fanout.discard(messageID)
			s.saveCurrentSessionLocked()
			s.mu.Unlock()
			s.notify()
		},
		OnError: func(err error) {
			s.mu.Lock()
			s.streaming = false
			if i := s.findMessageLocked(messageID); i != -1 {
				m := &s.messages[i]
				if m.Kind == KindStreaming && m.Status.CanTransition(StatusFailed) {
					m.Status = StatusFailed
					buffered, _ := s.fanout.content(messageID)
					m.Content = buffered + "\n[" + errLabel + ": " + err.Error() + "]"
					if code := llm.StatusCode(err); code == 401 || code == 402 {
						s.apiErrorStatus = code
					}
				}
			}
			s.fanout.discard(messageID)
			s.saveCurrentSessionLocked()
			s.mu.Unlock()

			s.log.Log(eventlog.EventStreamFailed, map[string]any{
				"message_id": messageID,
				"error":      err.Error(),
			})
			s.notify()
		},
	}
}

// ── Message edits ────────────────────────────────────────────────────────────

// DeleteMessage removes a message from the active transcript.
func (s *Store) DeleteMessage(id string) {
	s.mu.Lock()
	if i := s.findMessageLocked(id); i != -1 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		s.saveCurrentSessionLocked()
	}
	s.mu.Unlock()
	s.notify()
}

// UpdateMessage replaces a message's content.
func (s *Store) UpdateMessage(id, content string) {
	s.mu.Lock()
	if i := s.findMessageLocked(id); i != -1 {
		s.messages[i].Content = content
		s.saveCurrentSessionLocked()
	}
	s.mu.Unlock()
	s.notify()
}

// MarkAnimationDone clears a greeting's one-shot animation flag.
func (s *Store) MarkAnimationDone(id string) {
	s.mu.Lock()
	if i := s.findMessageLocked(id); i != -1 && s.messages[i].ShouldAnimate {
		s.messages[i].ShouldAnimate = false
		s.saveCurrentSessionLocked()
	}
	s.mu.Unlock()
}

// ── Internals ────────────────────────────────────────────────────────────────

func (s *Store) loadSessions() {
	stored, ok := s.kv.GetString(storage.KeySessions)
	if !ok {
		return
	}
	var sessions []Session
	if err := json.Unmarshal([]byte(stored), &sessions); err != nil {
		s.log.Log(eventlog.EventStorageError, map[string]any{
			"context": "load_sessions",
			"error":   err.Error(),
		})
		return
	}
	s.sessions = sessions
}

func (s *Store) saveSessionsLocked() {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		return
	}
	if err := s.kv.SetString(storage.KeySessions, string(data)); err != nil {
		s.log.Log(eventlog.EventStorageError, map[string]any{
			"context": "save_sessions",
			"error":   err.Error(),
		})
	}
}

// saveCurrentSessionLocked persists the transcript and, on the first
// user-authored message, creates the durable index entry. Sessions without
// user content are never indexed, so abandoned or unselected sessions leave
// no trace.
func (s *Store) saveCurrentSessionLocked() {
	if s.sessionID == "" || s.personaType == persona.TypeUnselected {
		return
	}

	existing := s.findSessionLocked(s.sessionID) != -1
	hasUser := false
	for _, m := range s.messages {
		if m.Role == RoleUser {
			hasUser = true
			break
		}
	}
	if !existing && !hasUser {
		return
	}

	data, err := json.Marshal(s.messages)
	if err != nil {
		return
	}
	if err := s.kv.SetString(storage.SessionKey(s.sessionID), string(data)); err != nil {
		s.log.Log(eventlog.EventStorageError, map[string]any{
			"context": "save_session",
			"error":   err.Error(),
		})
	}

	if !existing {
		s.sessions = append([]Session{{
			ID:        s.sessionID,
			Title:     s.deriveTitleLocked(),
			Type:      s.personaType,
			Timestamp: s.now().UnixMilli(),
		}}, s.sessions...)
		s.saveSessionsLocked()
	}
}

// deriveTitleLocked builds the one-time session title: persona title plus
// the effective date, or date+time when a same-persona session already
// exists for the effective day.
func (s *Store) deriveTitleLocked() string {
	now := s.now()
	eff := EffectiveDate(now)

	base := "新会话"
	if p, ok := s.activePersonaLocked(); ok {
		base = p.Title
	}

	sameDay := false
	for _, sess := range s.sessions {
		if sess.Type == s.personaType && effectiveDateOfMillis(sess.Timestamp) == eff {
			sameDay = true
			break
		}
	}
	if sameDay {
		return base + "-" + formatDateTime(now)
	}
	return base + "-" + eff
}

func (s *Store) activePersonaLocked() (persona.Persona, bool) {
	if s.personas == nil {
		return persona.Persona{}, false
	}
	return s.personas.ByID(s.personaType)
}

func (s *Store) apiKeyLocked() string {
	if s.kv != nil {
		if v, ok := s.kv.GetString(storage.KeyAPIKey); ok && v != "" {
			return v
		}
	}
	return s.apiKey
}

func (s *Store) baseURLLocked() string {
	if s.kv != nil {
		if v, ok := s.kv.GetString(storage.KeyBaseURL); ok && v != "" {
			return v
		}
	}
	return s.baseURL
}

func (s *Store) findMessageLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) findSessionLocked(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// nextIDLocked allocates a millisecond-timestamp id, bumped past the last
// issued id so ids stay unique and creation-ordered even within one tick.
func (s *Store) nextIDLocked() string {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

func (s *Store) bumpLastIDLocked(id string) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > s.lastID {
		s.lastID = n
	}
}
