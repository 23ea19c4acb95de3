package chat

import (
	"time"

	"github.com/panleme/panleme/internal/persona"
)

// RecapDue decides whether to offer the user a daily recap. Pure function
// of the transcript, the persona's recap configuration and the current
// time; recomputed whenever message count or persona changes.
func RecapDue(messages []Message, rc *persona.RecapConfig, now time.Time) bool {
	if rc == nil || rc.SystemPrompt == "" {
		return false
	}

	hasUser := false
	for _, m := range messages {
		if m.Role == RoleUser && !m.Hidden() {
			hasUser = true
			break
		}
	}
	if !hasUser {
		return false
	}

	if !inWindow(now.Hour(), rc.PromptStartTime, rc.PromptDuration) {
		return false
	}

	// A recap already produced in this window: the last message is the
	// assistant's recap, immediately preceded by the hidden request marker.
	n := len(messages)
	if n >= 2 && messages[n-1].Role == RoleAssistant && messages[n-2].Kind == KindSummaryRequest {
		return false
	}

	return true
}

// inWindow reports whether hour falls in [start, start+duration) with
// wraparound past midnight, e.g. start=20 duration=5 covers 20-23 and 0.
func inWindow(hour, start, duration int) bool {
	if duration <= 0 {
		return false
	}
	end := start + duration
	if end <= 24 {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end-24
}
