// Package memory composes the Redis short-term cache and Qdrant long-term
// vector store behind the single ports.Memory interface DialogueService
// depends on.
package memory

import (
	"context"
	"fmt"

	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/memory/qdrant"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/memory/redis"
)

const longTermRecallLimit = 3

// Provider implements ports.Memory. recent may be nil (short-term recall
// disabled) and longTerm may be nil (long-term recall disabled); a
// deployment with neither configured degrades Query to always returning
// nothing and Append/Summarize to no-ops, rather than erroring.
type Provider struct {
	recent   *redis.Store
	longTerm *qdrant.Store
}

func New(recent *redis.Store, longTerm *qdrant.Store) *Provider {
	return &Provider{recent: recent, longTerm: longTerm}
}

func (p *Provider) Query(ctx context.Context, sessionID, text string) ([]ports.MemoryResult, error) {
	var out []ports.MemoryResult
	if p.recent != nil {
		entries, err := p.recent.Recent(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("memory: recent recall: %w", err)
		}
		for _, e := range entries {
			out = append(out, ports.MemoryResult{Text: fmt.Sprintf("%s: %s", e.Role, e.Content), Score: 1})
		}
	}
	if p.longTerm != nil {
		hits, err := p.longTerm.Search(ctx, sessionID, text, longTermRecallLimit)
		if err != nil {
			return nil, fmt.Errorf("memory: long-term recall: %w", err)
		}
		for _, h := range hits {
			out = append(out, ports.MemoryResult{Text: h.Text, Score: h.Score})
		}
	}
	return out, nil
}

func (p *Provider) Append(ctx context.Context, sessionID string, entry types.HistoryEntry) error {
	if p.recent == nil {
		return nil
	}
	return p.recent.Append(ctx, sessionID, entry)
}

func (p *Provider) Summarize(ctx context.Context, sessionID string, history []types.HistoryEntry) error {
	if p.longTerm == nil {
		return nil
	}
	summary := summarize(history)
	if summary == "" {
		return nil
	}
	if err := p.longTerm.Upsert(ctx, sessionID, summary); err != nil {
		return fmt.Errorf("memory: persisting summary: %w", err)
	}
	if p.recent != nil {
		_ = p.recent.Clear(ctx, sessionID)
	}
	return nil
}

// summarize builds a plain-text digest of the session's turns. Real
// deployments may swap this for an LLM-generated summary; this keeps the
// engine runnable without one.
func summarize(history []types.HistoryEntry) string {
	var out string
	for _, e := range history {
		if e.Role != types.RoleUser && e.Role != types.RoleAssistant {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s: %s", e.Role, e.Content)
	}
	return out
}
