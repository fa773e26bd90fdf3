package memory

import (
	"context"
	"testing"

	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

func TestProviderWithNoBackendsDegradesGracefully(t *testing.T) {
	p := New(nil, nil)

	results, err := p.Query(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if results != nil {
		t.Fatalf("expected no results with no backends configured, got %v", results)
	}

	if err := p.Append(context.Background(), "s1", types.HistoryEntry{Role: types.RoleUser, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Summarize(context.Background(), "s1", nil); err != nil {
		t.Fatal(err)
	}
}

func TestSummarizeSkipsEmptyHistory(t *testing.T) {
	got := summarize([]types.HistoryEntry{{Role: types.RoleTool, Content: "irrelevant"}})
	if got != "" {
		t.Fatalf("summarize() = %q, want empty for tool-only history", got)
	}
}

func TestSummarizeJoinsUserAndAssistantTurns(t *testing.T) {
	got := summarize([]types.HistoryEntry{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello"},
	})
	if got != "user: hi assistant: hello" {
		t.Fatalf("summarize() = %q", got)
	}
}
