package llmintent

import (
	"context"
	"io"
	"testing"

	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

type fakeStream struct {
	events []types.StreamEvent
	idx    int
}

func (f *fakeStream) Next(ctx context.Context) (types.StreamEvent, error) {
	if f.idx >= len(f.events) {
		return types.StreamEvent{}, io.EOF
	}
	ev := f.events[f.idx]
	f.idx++
	return ev, nil
}
func (f *fakeStream) Close() error { return nil }

type fakeLLM struct {
	events []types.StreamEvent
}

func (l *fakeLLM) Name() string { return "fake" }
func (l *fakeLLM) Stream(ctx context.Context, systemPrompt string, history []types.Message, tools []types.Tool) (ports.LLMStream, error) {
	return &fakeStream{events: l.events}, nil
}

var testIntents = []Intent{
	{Name: "set_volume", Description: "set the volume", Parameters: map[string]any{
		"level": map[string]any{"type": "integer"},
	}},
	{Name: "stop_playback", Description: "stop playback"},
}

func TestRecognize_ToolCallReturnsMatch(t *testing.T) {
	llm := &fakeLLM{events: []types.StreamEvent{
		{Kind: types.StreamToolCall, ToolCall: &types.ToolCall{
			Name: "match_intent",
			Arguments: map[string]any{
				"intent":    "set_volume",
				"arguments": map[string]any{"level": float64(50)},
			},
		}},
	}}

	a := New(llm, testIntents)
	result, err := a.Recognize(context.Background(), "turn it up to 50", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Name != "set_volume" {
		t.Fatalf("Name=%q, want set_volume", result.Name)
	}
	if result.Params["level"] != float64(50) {
		t.Fatalf("Params[level]=%v, want 50", result.Params["level"])
	}
}

func TestRecognize_NoToolCallReturnsZeroValue(t *testing.T) {
	llm := &fakeLLM{events: []types.StreamEvent{
		{Kind: types.StreamTextDelta, Text: "sorry, I don't understand"},
	}}

	a := New(llm, testIntents)
	result, err := a.Recognize(context.Background(), "what's the weather on mars", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Name != "" {
		t.Fatalf("Name=%q, want empty", result.Name)
	}
}

func TestRecognize_EmptyStreamReturnsZeroValue(t *testing.T) {
	a := New(&fakeLLM{}, testIntents)
	result, err := a.Recognize(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Name != "" {
		t.Fatalf("Name=%q, want empty", result.Name)
	}
}
