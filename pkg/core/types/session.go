// Package types holds the data model shared across the engine: the
// per-session state, conversation history, TTS work units, and the
// immutable agent configuration negotiated at session start.
package types

import (
	"sync"
	"time"
)

// ListenMode mirrors the client's declared listening behavior.
type ListenMode string

const (
	ListenAuto     ListenMode = "auto"
	ListenManual   ListenMode = "manual"
	ListenRealtime ListenMode = "realtime"
)

// LifecycleController is the subset of lifecycle.Manager that SessionContext
// needs to hold a reference to, without pkg/core/types importing
// pkg/core/lifecycle (which would create an import cycle once lifecycle
// starts referencing session-scoped types for logging).
type LifecycleController interface {
	IsStopped() bool
	IsRunning() bool
	Stop()
}

// SessionContext is the authoritative per-session state. It is pure data: it
// is mutated only from within event handlers dispatched for that session,
// never holds back-references used for control flow, and is created on
// connection accept and destroyed when the session tears down.
type SessionContext struct {
	mu sync.Mutex

	SessionID  string
	DeviceID   string
	ClientID   string
	ClientIP   string
	AudioFormat string

	Features       map[string]any
	WelcomePayload map[string]any
	Agent          *AgentConfig

	History *ConversationHistory

	ClientAbort      bool
	ClientIsSpeaking bool
	ClientListenMode ListenMode
	JustWokenUp      bool
	ClientHaveVoice  bool
	ClientVoiceStop  bool
	LLMFinishTask    bool

	CurrentSentenceID string
	CurrentSpeaker    string

	LastActivityTime time.Time

	Lifecycle LifecycleController
}

// NewSessionContext constructs a SessionContext in its initial IDLE state.
func NewSessionContext(sessionID, deviceID, clientID, clientIP string) *SessionContext {
	return &SessionContext{
		SessionID:        sessionID,
		DeviceID:         deviceID,
		ClientID:         clientID,
		ClientIP:         clientIP,
		AudioFormat:      "opus",
		Features:         make(map[string]any),
		WelcomePayload:   make(map[string]any),
		History:          NewConversationHistory(),
		ClientListenMode: ListenAuto,
		LastActivityTime: time.Now(),
	}
}

// Touch records inbound activity; called by the router on every frame.
func (s *SessionContext) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivityTime = time.Now()
}

// IdleSince reports how long it has been since the last inbound frame.
func (s *SessionContext) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastActivityTime)
}

// SetAbort flips client_abort. Idempotent — callers don't need to check the
// previous value before calling it.
func (s *SessionContext) SetAbort(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClientAbort = v
}

// Abort reports the current client_abort flag.
func (s *SessionContext) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ClientAbort
}

// SetSpeaking updates client_is_speaking, the flag AudioProcessingService
// checks before deciding whether incoming voice is a barge-in.
func (s *SessionContext) SetSpeaking(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClientIsSpeaking = v
}

// Speaking reports client_is_speaking.
func (s *SessionContext) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ClientIsSpeaking
}

// ListenModeValue reports the negotiated listen mode.
func (s *SessionContext) ListenModeValue() ListenMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ClientListenMode
}

// SetListenMode updates the negotiated listen mode.
func (s *SessionContext) SetListenMode(m ListenMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClientListenMode = m
}

// SetCurrentSentence records the sentence id currently open for TTS output.
func (s *SessionContext) SetCurrentSentence(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentSentenceID = id
}

// CurrentSentence returns the sentence id currently open for TTS output.
func (s *SessionContext) CurrentSentence() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CurrentSentenceID
}
