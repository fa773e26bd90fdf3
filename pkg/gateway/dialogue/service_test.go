package dialogue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/relaytone/xiaozhi-engine/pkg/core/di"
	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/tools"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(discardWriter{}, nil)) }

func testTrimmer(t *testing.T) *HistoryBudget {
	t.Helper()
	b, err := NewHistoryBudget("gpt-4", 8000, 512)
	if err != nil {
		t.Fatalf("NewHistoryBudget: %v", err)
	}
	return b
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, evt events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *recordingBus) snapshot() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.events))
	copy(out, b.events)
	return out
}

type fakeLLMStream struct {
	events []types.StreamEvent
	idx    int
}

func (f *fakeLLMStream) Next(ctx context.Context) (types.StreamEvent, error) {
	if f.idx >= len(f.events) {
		return types.StreamEvent{}, io.EOF
	}
	ev := f.events[f.idx]
	f.idx++
	return ev, nil
}
func (f *fakeLLMStream) Close() error { return nil }

// scriptedLLM returns one []types.StreamEvent script per call, in order;
// the last script repeats once exhausted.
type scriptedLLM struct {
	scripts [][]types.StreamEvent
	calls   int
}

func (l *scriptedLLM) Name() string { return "fake" }
func (l *scriptedLLM) Stream(ctx context.Context, systemPrompt string, history []types.Message, toolDefs []types.Tool) (ports.LLMStream, error) {
	i := l.calls
	if i >= len(l.scripts) {
		i = len(l.scripts) - 1
	}
	l.calls++
	return &fakeLLMStream{events: l.scripts[i]}, nil
}

type fakeReqLLMTool struct {
	calls int
}

func (f *fakeReqLLMTool) Name() string          { return "lookup" }
func (f *fakeReqLLMTool) Definition() types.Tool { return types.Tool{Name: "lookup"} }
func (f *fakeReqLLMTool) SystemCtl() bool       { return false }
func (f *fakeReqLLMTool) Execute(ctx context.Context, toolCtx *ports.ToolContext, args map[string]any) (types.ActionResponse, error) {
	f.calls++
	return types.ActionResponse{Action: types.ActionReqLLM, Text: "lookup result: 42"}, nil
}

type recordingMemory struct {
	mu      sync.Mutex
	entries []types.HistoryEntry
}

func (m *recordingMemory) Query(ctx context.Context, sessionID, text string) ([]ports.MemoryResult, error) {
	return nil, nil
}

func (m *recordingMemory) Append(ctx context.Context, sessionID string, entry types.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *recordingMemory) Summarize(ctx context.Context, sessionID string, history []types.HistoryEntry) error {
	return nil
}

func newSessionCtxLookup(sc *types.SessionContext) func(string) (*types.SessionContext, bool) {
	return func(sessionID string) (*types.SessionContext, bool) {
		if sessionID != sc.SessionID {
			return nil, false
		}
		return sc, true
	}
}

func TestProcessUserInputBracketsTTSStartAndEnd(t *testing.T) {
	sc := types.NewSessionContext("s1", "dev1", "c1", "127.0.0.1")
	sc.Agent = &types.AgentConfig{SystemPrompt: "be helpful"}

	llm := &scriptedLLM{scripts: [][]types.StreamEvent{
		{{Kind: types.StreamTextDelta, Text: "hello "}, {Kind: types.StreamTextDelta, Text: "world"}, {Kind: types.StreamDone}},
	}}
	b := &recordingBus{}
	svc := New(
		func(string) ports.LLM { return llm },
		func(string) ports.Memory { return nil },
		tools.New(di.New(), nil),
		newSessionCtxLookup(sc),
		b,
		testTrimmer(t),
		testLogger(),
	)

	svc.ProcessUserInput(context.Background(), "s1", "hi there")

	snap := b.snapshot()
	if len(snap) < 2 {
		t.Fatalf("expected at least TTSStart/TTSEnd, got %#v", snap)
	}
	start, ok := snap[0].(*events.TTSStart)
	if !ok {
		t.Fatalf("expected first event to be TTSStart, got %T", snap[0])
	}
	end, ok := snap[len(snap)-1].(*events.TTSEnd)
	if !ok {
		t.Fatalf("expected last event to be TTSEnd, got %T", snap[len(snap)-1])
	}
	if start.SentenceID != end.SentenceID {
		t.Fatalf("sentence id mismatch: start=%s end=%s", start.SentenceID, end.SentenceID)
	}
	if !sc.LLMFinishTask {
		t.Fatal("expected llm_finish_task to be true after a completed turn")
	}

	entries := sc.History.Entries()
	if len(entries) != 2 || entries[0].Role != types.RoleUser || entries[1].Role != types.RoleAssistant {
		t.Fatalf("expected [user, assistant] history, got %#v", entries)
	}
	if entries[1].Content != "hello world" {
		t.Fatalf("expected accumulated assistant text, got %q", entries[1].Content)
	}
}

func TestProcessUserInputMirrorsUserAndAssistantTurnsIntoMemory(t *testing.T) {
	sc := types.NewSessionContext("s1", "dev1", "c1", "127.0.0.1")
	sc.Agent = &types.AgentConfig{SystemPrompt: "be helpful"}

	llm := &scriptedLLM{scripts: [][]types.StreamEvent{
		{{Kind: types.StreamTextDelta, Text: "hello world"}, {Kind: types.StreamDone}},
	}}
	mem := &recordingMemory{}
	svc := New(
		func(string) ports.LLM { return llm },
		func(string) ports.Memory { return mem },
		tools.New(di.New(), nil),
		newSessionCtxLookup(sc),
		&recordingBus{},
		testTrimmer(t),
		testLogger(),
	)

	svc.ProcessUserInput(context.Background(), "s1", "hi there")

	if len(mem.entries) != 2 || mem.entries[0].Role != types.RoleUser || mem.entries[1].Role != types.RoleAssistant {
		t.Fatalf("expected [user, assistant] mirrored into memory, got %#v", mem.entries)
	}
	if mem.entries[0].Content != "hi there" || mem.entries[1].Content != "hello world" {
		t.Fatalf("unexpected mirrored content: %#v", mem.entries)
	}
}

func TestProcessUserInputReqLLMRecurses(t *testing.T) {
	sc := types.NewSessionContext("s1", "dev1", "c1", "127.0.0.1")
	sc.Agent = &types.AgentConfig{SystemPrompt: "be helpful", IntentMode: types.IntentFunctionCall}

	toolCall := types.ToolCall{ID: "call-1", Name: "lookup"}
	llm := &scriptedLLM{scripts: [][]types.StreamEvent{
		{{Kind: types.StreamToolCall, ToolCall: &toolCall}, {Kind: types.StreamDone}},
		{{Kind: types.StreamTextDelta, Text: "the answer is 42"}, {Kind: types.StreamDone}},
	}}

	h := tools.New(di.New(), nil)
	tool := &fakeReqLLMTool{}
	h.RegistryFor("s1").Register(tool)

	b := &recordingBus{}
	svc := New(
		func(string) ports.LLM { return llm },
		func(string) ports.Memory { return nil },
		h,
		newSessionCtxLookup(sc),
		b,
		testTrimmer(t),
		testLogger(),
	)

	svc.ProcessUserInput(context.Background(), "s1", "what is the answer")

	if tool.calls != 1 {
		t.Fatalf("expected the tool to be called once, got %d", tool.calls)
	}
	if llm.calls != 2 {
		t.Fatalf("expected a second LLM call after REQLLM, got %d calls", llm.calls)
	}

	var sawCompleted bool
	var ttsEndCount int
	for _, e := range b.snapshot() {
		if _, ok := e.(*events.ToolCallCompleted); ok {
			sawCompleted = true
		}
		if _, ok := e.(*events.TTSEnd); ok {
			ttsEndCount++
		}
	}
	if !sawCompleted {
		t.Fatal("expected a ToolCallCompleted event")
	}
	if ttsEndCount != 1 {
		t.Fatalf("expected exactly one TTSEnd for the whole turn regardless of recursion, got %d", ttsEndCount)
	}
}

// abortingLLM flips client_abort after its stream yields its first chunk,
// simulating a barge-in AbortRequest arriving mid-stream.
type abortingLLM struct {
	sc *types.SessionContext
}

func (l *abortingLLM) Name() string { return "aborting" }
func (l *abortingLLM) Stream(ctx context.Context, systemPrompt string, history []types.Message, toolDefs []types.Tool) (ports.LLMStream, error) {
	return &abortingStream{sc: l.sc}, nil
}

type abortingStream struct {
	sc   *types.SessionContext
	sent bool
}

func (s *abortingStream) Next(ctx context.Context) (types.StreamEvent, error) {
	if !s.sent {
		s.sent = true
		return types.StreamEvent{Kind: types.StreamTextDelta, Text: "partial"}, nil
	}
	s.sc.SetAbort(true)
	return types.StreamEvent{}, io.EOF
}
func (s *abortingStream) Close() error { return nil }

func TestProcessUserInputAbortMidStreamSkipsTTSEnd(t *testing.T) {
	sc := types.NewSessionContext("s1", "dev1", "c1", "127.0.0.1")
	sc.Agent = &types.AgentConfig{SystemPrompt: "be helpful"}

	b := &recordingBus{}
	svc := New(
		func(string) ports.LLM { return &abortingLLM{sc: sc} },
		func(string) ports.Memory { return nil },
		tools.New(di.New(), nil),
		newSessionCtxLookup(sc),
		b,
		testTrimmer(t),
		testLogger(),
	)

	svc.ProcessUserInput(context.Background(), "s1", "hi there")

	for _, e := range b.snapshot() {
		if _, ok := e.(*events.TTSEnd); ok {
			t.Fatal("expected no TTSEnd when client_abort fires mid-stream")
		}
	}
	if sc.LLMFinishTask {
		t.Fatal("expected llm_finish_task to remain false when the turn was aborted")
	}
}
