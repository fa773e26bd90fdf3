// Package events defines the concrete payload types published on the
// EventBus. Every event carries the session id it belongs to (except
// process-wide events, which have none) so handlers can resolve the
// SessionContext from the DI container without a back-reference.
package events

import "github.com/relaytone/xiaozhi-engine/pkg/core/types"

// Event is implemented by every concrete event payload.
type Event interface {
	EventType() string
}

// TextMessageReceived carries a raw inbound JSON text frame, unparsed.
// Downstream (MessageRouter's subscribers, typically the protocol decoder)
// parses it into one of the `hello`/`listen`/`abort`/`iot`/`mcp`/`server`
// client messages.
type TextMessageReceived struct {
	SessionID string
	Raw       string
}

func (e *TextMessageReceived) EventType() string { return "text_message_received" }

// AudioDataReceived carries one inbound audio frame, after the MQTT-gateway
// header (if present) has been stripped.
type AudioDataReceived struct {
	SessionID string
	Audio     []byte
	TimestampMS uint32 // 0 when the frame did not originate from the MQTT gateway
}

func (e *AudioDataReceived) EventType() string { return "audio_data_received" }

// SpeechDetected marks a silence-to-voice transition for a session's audio
// stream.
type SpeechDetected struct {
	SessionID string
}

func (e *SpeechDetected) EventType() string { return "speech_detected" }

// SpeechEnded marks the close of a speech segment, always preceded by a
// SpeechDetected for the same segment (P5).
type SpeechEnded struct {
	SessionID string
	Forced    bool // true when closed by the max-segment-duration cap, not silence
}

func (e *SpeechEnded) EventType() string { return "speech_ended" }

// TextRecognized carries an ASR result. Downstream must not act on
// !IsFinal text.
type TextRecognized struct {
	SessionID string
	Text      string
	IsFinal   bool
}

func (e *TextRecognized) EventType() string { return "text_recognized" }

// TTSStart opens a sentence bracket. Exactly one is emitted per top-level
// user turn regardless of recursion depth or tool-call count.
type TTSStart struct {
	SessionID  string
	SentenceID string
}

func (e *TTSStart) EventType() string { return "tts_start" }

// TTSAudioReady carries one SentenceUnit of synthesizable work.
type TTSAudioReady struct {
	SessionID string
	Unit      types.SentenceUnit
}

func (e *TTSAudioReady) EventType() string { return "tts_audio_ready" }

// TTSEnd closes a sentence bracket.
type TTSEnd struct {
	SessionID  string
	SentenceID string
	Synthetic  bool // true when emitted by AbortRequest handling, not a natural close
}

func (e *TTSEnd) EventType() string { return "tts_end" }

// AbortRequest is the barge-in / explicit-abort trigger. Idempotent:
// handlers must tolerate duplicates for the same session without
// side effects beyond the first.
type AbortRequest struct {
	SessionID string
	Reason    string // e.g. "user_interrupt", "client_abort"
}

func (e *AbortRequest) EventType() string { return "abort_request" }

// SessionCreated is emitted once a SessionContext and LifecycleManager have
// been constructed for a new connection.
type SessionCreated struct {
	SessionID string
	DeviceID  string
}

func (e *SessionCreated) EventType() string { return "session_created" }

// SessionDestroyed is emitted once a session's resources have been released,
// on client close, inactivity timeout, unrecoverable transport error, or
// explicit server teardown.
type SessionDestroyed struct {
	SessionID string
	Reason    string
}

func (e *SessionDestroyed) EventType() string { return "session_destroyed" }

// ToolCallRequested is emitted when DialogueService hands a tool call to
// ToolHandler for execution.
type ToolCallRequested struct {
	SessionID string
	ToolCall  types.ToolCall
}

func (e *ToolCallRequested) EventType() string { return "tool_call_requested" }

// ToolCallCompleted carries ToolHandler's ActionResponse for one tool call.
type ToolCallCompleted struct {
	SessionID string
	Result    types.ActionResponse
}

func (e *ToolCallCompleted) EventType() string { return "tool_call_completed" }

// ProviderError is emitted when an ASR/TTS/LLM/Memory provider call fails.
// The originating service both logs this and, per the engine's error
// taxonomy, emits a user-visible TTS apology.
type ProviderError struct {
	SessionID string
	Stage     string // "vad" | "asr" | "tts" | "llm" | "memory" | "tool"
	Err       error
}

func (e *ProviderError) EventType() string { return "provider_error" }
