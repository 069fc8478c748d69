package herald

import "sync"

// DefaultMaxMessages bounds how many conversation turns are kept per
// session.
const DefaultMaxMessages = 20

// History keeps per-session conversation turns in memory. Sessions are
// trimmed to a bounded window whose first message is always a user turn,
// since providers reject histories that open with an assistant message.
type History struct {
	mu          sync.Mutex
	maxMessages int
	sessions    map[string][]Message
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithMaxMessages sets the per-session message window.
func WithMaxMessages(n int) HistoryOption {
	return func(h *History) {
		h.maxMessages = n
	}
}

// NewHistory creates an empty conversation history store.
func NewHistory(options ...HistoryOption) *History {
	h := &History{
		maxMessages: DefaultMaxMessages,
		sessions:    make(map[string][]Message),
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

// Load returns a copy of the session's messages, oldest first.
func (h *History) Load(sessionID string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	messages := h.sessions[sessionID]
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// Append adds turns to the session and trims it to the window.
func (h *History) Append(sessionID string, messages ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	merged := append(h.sessions[sessionID], messages...)
	h.sessions[sessionID] = trimHistory(merged, h.maxMessages)
}

// Clear drops the session entirely.
func (h *History) Clear(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

// trimHistory keeps the last max messages, then advances past any leading
// assistant turns so the window opens on a user message.
func trimHistory(messages []Message, max int) []Message {
	if len(messages) <= max {
		return messages
	}

	trimmed := messages[len(messages)-max:]
	for i, msg := range trimmed {
		if msg.Role == RoleUser {
			return trimmed[i:]
		}
	}

	// Nothing user-authored in the window; keep only the tail.
	if len(trimmed) > 4 {
		return trimmed[len(trimmed)-4:]
	}
	return trimmed
}
