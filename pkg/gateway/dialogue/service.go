package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/tools"
)

// Publisher is the subset of the EventBus the service needs.
type Publisher interface {
	Publish(ctx context.Context, evt events.Event)
}

// Service implements process_user_input(session_id, text, depth=0): the
// recursive LLM-turn loop described in spec.md #4.7.
type Service struct {
	llmFor     func(sessionID string) ports.LLM
	memoryFor  func(sessionID string) ports.Memory // may return nil: no memory provider bound
	tools      *tools.Handler
	sessionCtx func(sessionID string) (*types.SessionContext, bool)
	bus        Publisher
	trimmer    *HistoryBudget
	logger     *slog.Logger
}

// New constructs a Service. llmFor/memoryFor typically resolve bindings via
// the DI container for the session's negotiated AgentConfig.
func New(
	llmFor func(string) ports.LLM,
	memoryFor func(string) ports.Memory,
	toolHandler *tools.Handler,
	sessionCtx func(string) (*types.SessionContext, bool),
	eventBus Publisher,
	trimmer *HistoryBudget,
	logger *slog.Logger,
) *Service {
	return &Service{
		llmFor:     llmFor,
		memoryFor:  memoryFor,
		tools:      toolHandler,
		sessionCtx: sessionCtx,
		bus:        eventBus,
		trimmer:    trimmer,
		logger:     logger,
	}
}

// ProcessUserInput is the depth-0 entry point for a top-level user turn.
func (s *Service) ProcessUserInput(ctx context.Context, sessionID, text string) {
	sc, ok := s.sessionCtx(sessionID)
	if !ok || sc.Agent == nil {
		return
	}

	sc.LLMFinishTask = false
	sc.SetAbort(false)

	sentenceID := uuid.Must(uuid.NewV7()).String()
	sc.SetCurrentSentence(sentenceID)
	s.appendTurn(ctx, sc, types.RoleUser, text, "")
	s.bus.Publish(ctx, &events.TTSStart{SessionID: sessionID, SentenceID: sentenceID})

	if aborted := s.turn(ctx, sc, sentenceID, 0); aborted {
		// client_abort fired mid-stream: the AbortHandler already emitted a
		// synthetic TTSEnd and drained the queue. Nothing further to do.
		return
	}

	sc.LLMFinishTask = true
	s.bus.Publish(ctx, &events.TTSEnd{SessionID: sessionID, SentenceID: sentenceID})
}

// turn runs one LLM call (and, if it triggers tool calls whose results
// demand another round, recurses) and reports whether client_abort fired
// mid-stream — in which case every enclosing call must also skip its own
// bracketing, since the abort handler already closed the turn.
func (s *Service) turn(ctx context.Context, sc *types.SessionContext, sentenceID string, depth int) bool {
	sessionID := sc.SessionID
	agent := sc.Agent.WithDefaults()

	llm := s.llmFor(sessionID)
	if llm == nil {
		s.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "llm", Err: fmt.Errorf("no llm provider bound for session %s", sessionID)})
		return false
	}

	history := s.buildHistory(ctx, sessionID, sc, agent)

	var toolSchemas []types.Tool
	if agent.IntentMode == types.IntentFunctionCall && depth < agent.MaxRecursionDepth {
		toolSchemas = s.tools.RegistryFor(sessionID).Definitions()
	}

	stream, err := llm.Stream(ctx, agent.SystemPrompt, history, toolSchemas)
	if err != nil {
		s.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "llm", Err: err})
		return false
	}
	defer stream.Close()

	var text strings.Builder
	var calls []types.ToolCall
	chunker := NewSentenceChunker(ChunkConfig{})

	emitChunks := func(chunks []string) {
		for _, c := range chunks {
			s.bus.Publish(ctx, &events.TTSAudioReady{SessionID: sessionID, Unit: types.SentenceUnit{
				SentenceID:   sentenceID,
				SentenceType: types.SentenceMiddle,
				ContentType:  types.ContentText,
				Text:         c,
			}})
		}
	}

streamLoop:
	for {
		if sc.Abort() {
			return true
		}
		ev, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "llm", Err: err})
			}
			break streamLoop
		}
		switch ev.Kind {
		case types.StreamTextDelta:
			if ev.Text == "" {
				continue
			}
			text.WriteString(ev.Text)
			emitChunks(chunker.Feed(ev.Text))
		case types.StreamToolCall:
			if ev.ToolCall != nil {
				calls = append(calls, *ev.ToolCall)
			}
		case types.StreamDone:
			break streamLoop
		}
	}

	if sc.Abort() {
		return true
	}

	emitChunks(chunker.Flush())

	if assistantText := text.String(); assistantText != "" {
		s.appendTurn(ctx, sc, types.RoleAssistant, assistantText, "")
	}

	if len(calls) == 0 {
		return false
	}

	for _, call := range calls {
		s.bus.Publish(ctx, &events.ToolCallRequested{SessionID: sessionID, ToolCall: call})
	}
	results := s.tools.ExecuteAll(ctx, sessionID, calls)

	needsRecurse := false
	for _, res := range results {
		s.bus.Publish(ctx, &events.ToolCallCompleted{SessionID: sessionID, Result: res})
		switch res.Action {
		case types.ActionRespond, types.ActionError:
			sc.History.Append(types.RoleTool, res.Text, res.ToolCallID)
			if res.Text != "" {
				s.bus.Publish(ctx, &events.TTSAudioReady{SessionID: sessionID, Unit: types.SentenceUnit{
					SentenceID:   sentenceID,
					SentenceType: types.SentenceMiddle,
					ContentType:  types.ContentText,
					Text:         res.Text,
				}})
			}
		case types.ActionReqLLM:
			sc.History.Append(types.RoleTool, res.Text, res.ToolCallID)
			needsRecurse = true
		case types.ActionNone:
		}
	}

	if needsRecurse && depth < agent.MaxRecursionDepth {
		return s.turn(ctx, sc, sentenceID, depth+1)
	}
	return false
}

// appendTurn records a user or assistant turn in the session's in-memory
// history and, when a memory provider is bound, mirrors it into the
// short-term store so a later buildHistory recall reflects this turn.
// Tool entries are appended straight to sc.History by callers: they're
// LLM-call scaffolding, not conversational turns worth recalling.
func (s *Service) appendTurn(ctx context.Context, sc *types.SessionContext, role types.Role, content, toolCallID string) {
	sc.History.Append(role, content, toolCallID)
	mem := s.memoryFor(sc.SessionID)
	if mem == nil {
		return
	}
	entry := types.HistoryEntry{Role: role, Content: content, ToolCallID: toolCallID, Timestamp: time.Now()}
	if err := mem.Append(ctx, sc.SessionID, entry); err != nil {
		s.bus.Publish(ctx, &events.ProviderError{SessionID: sc.SessionID, Stage: "memory", Err: err})
	}
}

// buildHistory assembles the token-budgeted message list for one LLM call,
// prepending Memory-sourced context when a memory provider is bound and has
// something relevant to contribute.
func (s *Service) buildHistory(ctx context.Context, sessionID string, sc *types.SessionContext, agent types.AgentConfig) []types.Message {
	entries := sc.History.Entries()

	var memoryPrefix string
	if mem := s.memoryFor(sessionID); mem != nil {
		if query := lastUserText(entries); query != "" {
			results, err := mem.Query(ctx, sessionID, query)
			if err != nil {
				s.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "memory", Err: err})
			} else if len(results) > 0 {
				memoryPrefix = joinMemoryResults(results)
			}
		}
	}

	return s.trimmer.Build(agent.SystemPrompt, memoryPrefix, entries)
}

func lastUserText(entries []types.HistoryEntry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == types.RoleUser {
			return entries[i].Content
		}
	}
	return ""
}

func joinMemoryResults(results []ports.MemoryResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Text)
	}
	return b.String()
}
