// Package chat implements the conversation engine: the session/message data
// model, the conversation store orchestrating streamed assistant replies,
// the stream fan-out buffer, and the recap eligibility policy.
package chat

// ── Roles and message kinds ──────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind discriminates message variants. Persisted values are stable; kinds
// unknown to this version survive a load but are hidden from presentation
// and excluded from prompts.
type Kind string

const (
	// KindText is a finalized human or system-authored entry.
	KindText Kind = "text"

	// KindStreaming is an assistant reply produced incrementally; it carries
	// a StreamStatus.
	KindStreaming Kind = "streaming"

	// KindSummaryRequest is an internal marker recording that a recap was
	// requested at this point in the transcript. Never shown, never sent.
	KindSummaryRequest Kind = "request-summary"
)

// ── Streaming status state machine ───────────────────────────────────────────

// StreamStatus is the lifecycle state of a streaming message:
//
//	pending → loading → {completed, failed}
//	{pending, loading} → interrupted
//
// All states except pending and loading are terminal.
type StreamStatus string

const (
	StatusPending     StreamStatus = "pending"
	StatusLoading     StreamStatus = "loading"
	StatusCompleted   StreamStatus = "completed"
	StatusFailed      StreamStatus = "failed"
	StatusInterrupted StreamStatus = "interrupted"
)

// Terminal reports whether no further transitions are allowed from s.
func (s StreamStatus) Terminal() bool {
	return s != StatusPending && s != StatusLoading
}

// CanTransition reports whether the transition s → to follows the graph.
func (s StreamStatus) CanTransition(to StreamStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusLoading || to == StatusFailed || to == StatusInterrupted
	case StatusLoading:
		return to == StatusCompleted || to == StatusFailed || to == StatusInterrupted
	default:
		return false
	}
}

// ── Message and session ──────────────────────────────────────────────────────

// Message is one entry of a session transcript. ID is unique within a
// session and monotonically orders by creation (millisecond timestamps,
// bumped on collision). Timestamp is Unix milliseconds.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Kind      Kind   `json:"type"`

	// Status is set only for KindStreaming messages.
	Status StreamStatus `json:"status,omitempty"`

	// ShouldAnimate marks a persona greeting that the UI types out once.
	ShouldAnimate bool `json:"shouldAnimate,omitempty"`
}

// Hidden reports whether the message is excluded from presentation and
// prompts: recap request markers and any kind from a newer app version.
func (m Message) Hidden() bool {
	switch m.Kind {
	case KindText, KindStreaming:
		return false
	default:
		return true
	}
}

// Session is one persisted conversation thread bound to a persona.
// Timestamp is creation time in Unix milliseconds, used for same-day
// grouping. Title is derived at first persistence and only rewritten when a
// recap completes.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
