// Package ports declares the stable provider contracts the engine depends
// on: VAD, ASR, TTS, LLM, Intent, Memory, Tool, Voiceprint, and the
// configuration port that fetches an AgentConfig for a device. Concrete
// providers live under pkg/providers; the engine itself only ever imports
// this package.
package ports

import (
	"context"
	"io"

	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// VAD is a stateful, per-session voice activity detector. Frame in,
// boolean out.
type VAD interface {
	// Detect reports whether frame contains voice. Implementations may be
	// stateful across calls within one session (e.g. a rolling energy
	// average) but must not retain the frame after returning.
	Detect(frame []byte) (voice bool, err error)
	// Reset clears any rolling state, called when a segment closes.
	Reset()
}

// ASRSession is a single streaming recognition session created by an ASR
// provider for one speech segment.
type ASRSession interface {
	// Feed submits one audio frame for recognition.
	Feed(ctx context.Context, frame []byte) error
	// Final signals the end of audio input for this segment and returns the
	// final transcript. Implementations may have already delivered partials
	// via Partials.
	Final(ctx context.Context) (text string, err error)
	// Partials yields intermediate, non-final transcripts as they become
	// available. Downstream must not act on these for dialogue purposes.
	Partials() <-chan string
	Close() error
}

// ASR creates ASRSession instances.
type ASR interface {
	Name() string
	StartSession(ctx context.Context, agent types.AgentConfig) (ASRSession, error)
}

// TTSChunk is one piece of synthesized audio.
type TTSChunk struct {
	Audio []byte
	Final bool
}

// TTSStream is a single streaming synthesis call.
type TTSStream interface {
	// Next returns the next audio chunk, or io.EOF when synthesis is
	// complete.
	Next(ctx context.Context) (TTSChunk, error)
	Close() error
}

// TTS synthesizes text to streamed audio.
type TTS interface {
	Name() string
	Synthesize(ctx context.Context, voiceID, text string) (TTSStream, error)
}

// LLM is a streaming chat-completion provider with optional tool calling.
type LLM interface {
	Name() string
	Stream(ctx context.Context, systemPrompt string, history []types.Message, tools []types.Tool) (LLMStream, error)
}

// LLMStream yields StreamEvents for one LLM call.
type LLMStream interface {
	Next(ctx context.Context) (types.StreamEvent, error)
	Close() error
}

// IntentResult is the structured outcome of an intent_llm classification.
type IntentResult struct {
	Name   string
	Params map[string]any
}

// Intent recognizes a structured intent from recognized text, used only
// when AgentConfig.IntentMode == IntentLLM.
type Intent interface {
	Recognize(ctx context.Context, text string, history []types.Message) (IntentResult, error)
}

// MemoryResult is one piece of context Memory contributes to a prompt.
type MemoryResult struct {
	Text  string
	Score float32
}

// Memory is the engine's memory port: short-term recent-turn recall and
// long-term summarized recall, behind one interface so DialogueService
// doesn't care which backing store answers a query.
type Memory interface {
	// Query returns relevant prior context for text, most relevant first.
	Query(ctx context.Context, sessionID, text string) ([]MemoryResult, error)
	// Append records a turn for future recall.
	Append(ctx context.Context, sessionID string, entry types.HistoryEntry) error
	// Summarize is invoked at session teardown to persist a durable summary
	// of the session's conversation, per spec.md's "Memory may summarize at
	// teardown" invariant.
	Summarize(ctx context.Context, sessionID string, history []types.HistoryEntry) error
}

// ToolContext is handed to SYSTEM_CTL tools only; user-level tools receive
// just their declared arguments.
type ToolContext struct {
	SessionID string
	Container any // *di.Container, typed any to avoid an import cycle
	Bus       any // *bus.EventBus, typed any for the same reason
}

// Tool is one callable function, either system-controlled or user-level.
type Tool interface {
	Name() string
	Definition() types.Tool
	// SystemCtl reports whether Execute should receive a ToolContext
	// (true) or only the declared arguments (false).
	SystemCtl() bool
	Execute(ctx context.Context, toolCtx *ToolContext, args map[string]any) (types.ActionResponse, error)
}

// Voiceprint identifies a speaker from a finalized speech segment. Absent
// when no voiceprint provider is configured; callers must treat a nil
// Voiceprint as "speaker identification disabled", not an error.
type Voiceprint interface {
	IdentifySpeaker(ctx context.Context, sessionID string, audio io.Reader) (speakerID string, err error)
}

// Config is the configuration port: given a device id, returns the
// negotiated AgentConfig. The administrative web console and its
// relational store sit behind this port and are out of scope for the
// engine itself.
type Config interface {
	AgentConfigForDevice(ctx context.Context, deviceID string) (types.AgentConfig, error)
}
