// Package dialogue implements DialogueService: the recursive LLM-turn loop
// that streams model output to the TTSOrchestrator and dispatches tool
// calls collected from the stream.
package dialogue

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// HistoryBudget trims ConversationHistory to a token budget before each LLM
// call: newest entries are kept, oldest are dropped first once the budget
// would be exceeded.
type HistoryBudget struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// NewHistoryBudget selects a tokenizer for model, falling back to cl100k_base
// for models tiktoken-go doesn't recognize directly (most local/self-hosted
// LLMs). maxTokens is the model's context window; reserve is held back for
// the response.
func NewHistoryBudget(model string, maxTokens, reserve int) (*HistoryBudget, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &HistoryBudget{enc: enc, maxTokens: maxTokens, reserve: reserve}, nil
}

func (b *HistoryBudget) countTokens(text string) int {
	return len(b.enc.Encode(text, nil, nil))
}

// Build assembles the message list one LLM call receives: a system message
// (the agent's prompt plus any memory-sourced context), followed by as much
// recent history as fits the remaining budget.
func (b *HistoryBudget) Build(systemPrompt, memoryPrefix string, entries []types.HistoryEntry) []types.Message {
	system := systemPrompt
	if memoryPrefix != "" {
		system = system + "\n\nRelevant context:\n" + memoryPrefix
	}
	budget := b.maxTokens - b.reserve - b.countTokens(system)

	kept := make([]types.Message, 0, len(entries))
	used := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		t := b.countTokens(e.Content)
		if used+t > budget && len(kept) > 0 {
			break
		}
		used += t
		kept = append(kept, types.Message{Role: e.Role, Text: e.Content, ToolCallID: e.ToolCallID})
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	out := make([]types.Message, 0, len(kept)+1)
	out = append(out, types.Message{Role: types.RoleSystem, Text: system})
	out = append(out, kept...)
	return out
}
