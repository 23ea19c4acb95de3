// Package storage provides the key/value persistence layer used by the
// conversation store. Values are opaque strings (JSON blobs for the session
// index and per-session message arrays, plain strings for credentials).
package storage

// Well-known keys.
const (
	KeyAPIKey   = "user_api_key"
	KeyBaseURL  = "user_base_url"
	KeySessions = "chat_sessions"
)

// SessionKey returns the storage key holding a session's message array.
func SessionKey(id string) string {
	return "session_" + id
}

// KV is the minimal string key/value capability the rest of the app depends on.
type KV interface {
	// GetString returns the stored value and whether the key exists.
	GetString(key string) (string, bool)
	SetString(key, value string) error
	Delete(key string) error
}
