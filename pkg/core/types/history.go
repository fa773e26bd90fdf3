package types

import (
	"sync"
	"time"
)

// Role tags a ConversationHistory entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// HistoryEntry is one message in a ConversationHistory.
type HistoryEntry struct {
	Role      Role
	Content   string
	ToolCallID string
	Timestamp time.Time
}

// ConversationHistory is an append-only ordered sequence of messages.
// Summarization produces a new entry; it never rewrites past entries.
type ConversationHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
}

// NewConversationHistory returns an empty history.
func NewConversationHistory() *ConversationHistory {
	return &ConversationHistory{}
}

// Append adds a new entry. Safe for concurrent use, though by construction
// only the owning session's loop calls it.
func (h *ConversationHistory) Append(role Role, content string, toolCallID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, HistoryEntry{
		Role:       role,
		Content:    content,
		ToolCallID: toolCallID,
		Timestamp:  time.Now(),
	})
}

// Entries returns a copy of the history so callers cannot mutate past
// entries through the returned slice.
func (h *ConversationHistory) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the number of entries.
func (h *ConversationHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Summarize appends a new summary entry tagged system, replacing nothing.
// Callers that want to "compact" history for prompt budget reasons still
// keep every original entry; only the LLM-facing view (built elsewhere) may
// choose to use the summary instead of the replaced range.
func (h *ConversationHistory) Summarize(summary string) {
	h.Append(RoleSystem, summary, "")
}
