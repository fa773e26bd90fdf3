package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

type fakeIntent struct {
	result ports.IntentResult
	err    error
}

func (f *fakeIntent) Recognize(ctx context.Context, text string, history []types.Message) (ports.IntentResult, error) {
	return f.result, f.err
}

func TestRecognize_NoIntentMode_SkipsClassification(t *testing.T) {
	s := New(&fakeIntent{result: ports.IntentResult{Name: "set_volume"}})
	agent := types.AgentConfig{IntentMode: types.IntentNone}

	result, err := s.Recognize(context.Background(), agent, "hello", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.HasIntent {
		t.Fatal("expected no intent in nointent mode")
	}
	if result.Mode != types.IntentNone {
		t.Fatalf("Mode=%v, want IntentNone", result.Mode)
	}
}

func TestRecognize_FunctionCallMode_SkipsClassification(t *testing.T) {
	s := New(&fakeIntent{result: ports.IntentResult{Name: "set_volume"}})
	agent := types.AgentConfig{IntentMode: types.IntentFunctionCall}

	result, err := s.Recognize(context.Background(), agent, "hello", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.HasIntent {
		t.Fatal("function_call mode defers recognition to dialogue's own tool schemas")
	}
	if result.Mode != types.IntentFunctionCall {
		t.Fatalf("Mode=%v, want IntentFunctionCall", result.Mode)
	}
}

func TestRecognize_IntentLLMMode_MatchReturnsHasIntent(t *testing.T) {
	s := New(&fakeIntent{result: ports.IntentResult{Name: "set_volume", Params: map[string]any{"level": float64(50)}}})
	agent := types.AgentConfig{IntentMode: types.IntentLLM}

	result, err := s.Recognize(context.Background(), agent, "turn it up", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !result.HasIntent {
		t.Fatal("expected HasIntent=true for a matched intent")
	}
	if result.Intent.Name != "set_volume" {
		t.Fatalf("Intent.Name=%q", result.Intent.Name)
	}
}

func TestRecognize_IntentLLMMode_NoMatchFallsThroughToDialogue(t *testing.T) {
	s := New(&fakeIntent{result: ports.IntentResult{}})
	agent := types.AgentConfig{IntentMode: types.IntentLLM}

	result, err := s.Recognize(context.Background(), agent, "what's the weather on mars", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.HasIntent {
		t.Fatal("expected HasIntent=false when the classifier found no matching intent")
	}
}

func TestRecognize_IntentLLMMode_NilProviderFallsBackToNone(t *testing.T) {
	s := New(nil)
	agent := types.AgentConfig{IntentMode: types.IntentLLM}

	result, err := s.Recognize(context.Background(), agent, "hello", nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.HasIntent || result.Mode != types.IntentNone {
		t.Fatalf("result=%+v, want Mode=IntentNone HasIntent=false", result)
	}
}

func TestRecognize_IntentLLMMode_ErrorPropagates(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	s := New(&fakeIntent{err: wantErr})
	agent := types.AgentConfig{IntentMode: types.IntentLLM}

	_, err := s.Recognize(context.Background(), agent, "hello", nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v, want %v", err, wantErr)
	}
}
