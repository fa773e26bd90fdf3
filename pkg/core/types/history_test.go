package types

import "testing"

func TestConversationHistoryAppendOnly(t *testing.T) {
	h := NewConversationHistory()
	h.Append(RoleUser, "what time is it", "")
	h.Append(RoleAssistant, "it's noon", "")

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Role != RoleUser || entries[1].Role != RoleAssistant {
		t.Fatalf("unexpected roles: %+v", entries)
	}

	entries[0].Content = "mutated"
	if h.Entries()[0].Content == "mutated" {
		t.Fatal("Entries() must return a copy, not a view into internal storage")
	}
}

func TestConversationHistorySummarizeAppends(t *testing.T) {
	h := NewConversationHistory()
	h.Append(RoleUser, "hello", "")
	h.Summarize("user greeted the assistant")

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("summarize must append, not rewrite: got %d entries", len(entries))
	}
	if entries[1].Role != RoleSystem {
		t.Fatalf("summary entry should be tagged system, got %s", entries[1].Role)
	}
}

func TestSessionContextAbortIdempotent(t *testing.T) {
	s := NewSessionContext("sess-1", "dev-1", "client-1", "127.0.0.1")
	s.SetAbort(true)
	s.SetAbort(true)
	if !s.Abort() {
		t.Fatal("expected abort flag set")
	}
}
