// Package abort implements the engine's output-channel state machine:
// IDLE → SPEAKING (TTSStart sent) → CLOSING (TTSEnd sent) → IDLE, and the
// AbortRequest handling that can interrupt it from any state.
package abort

import (
	"context"
	"sync"

	"github.com/relaytone/xiaozhi-engine/pkg/core/bus"
	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// State is one state of the per-session output channel.
type State int

const (
	Idle State = iota
	Speaking
	Closing
)

// Drainer is implemented by the TTSOrchestrator: AbortRequest handling
// drains its queue and cancels in-flight synthesis for a session.
type Drainer interface {
	Cleanup(sessionID string)
}

// Machine is the per-session abort state machine. One Machine per session;
// it is not safe to share across sessions.
type Machine struct {
	mu    sync.Mutex
	state State

	sessionID string
	ctx       *types.SessionContext
	bus       *bus.EventBus
	tts       Drainer
}

// New constructs a Machine for one session, starting IDLE.
func New(sessionID string, sessionCtx *types.SessionContext, eventBus *bus.EventBus, tts Drainer) *Machine {
	return &Machine{sessionID: sessionID, ctx: sessionCtx, bus: eventBus, tts: tts}
}

// State reports the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTTSStart transitions IDLE/CLOSING → SPEAKING, called when
// DialogueService emits TTSStart at depth 0.
func (m *Machine) OnTTSStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Speaking
}

// OnTTSEnd transitions SPEAKING → IDLE (via CLOSING, collapsed here since
// the engine has no suspension point between "TTSEnd sent" and "IDLE" that
// another caller could observe), called when DialogueService emits TTSEnd.
func (m *Machine) OnTTSEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
}

// HandleAbortRequest is the AbortRequest handler: sets client_abort, drains
// the TTS queue, cancels in-flight LLM streaming via the session's
// cancellation signal, transitions to IDLE, and — if SPEAKING was active —
// emits a synthetic TTSEnd so the client can clean up its playback state.
// Idempotent: a duplicate AbortRequest while already IDLE sets the same
// flags and drains the TTS queue again, but emits no second TTSEnd.
func (m *Machine) HandleAbortRequest(ctx context.Context, evt *events.AbortRequest) {
	// Setting client_abort is the cancellation signal itself: every long
	// loop in the engine (LLM streaming, TTS synthesis, tool execution)
	// checks it at its own suspension points rather than being torn down
	// from outside. This is deliberately lighter than LifecycleManager.Stop,
	// which ends the whole session rather than just the in-flight turn.
	m.ctx.SetAbort(true)
	m.ctx.SetSpeaking(false)
	m.tts.Cleanup(m.sessionID)

	m.mu.Lock()
	wasSpeaking := m.state == Speaking
	m.state = Idle
	m.mu.Unlock()

	if wasSpeaking {
		m.bus.Publish(ctx, &events.TTSEnd{
			SessionID:  m.sessionID,
			SentenceID: m.ctx.CurrentSentence(),
			Synthetic:  true,
		})
	}
}

// Subscribe registers HandleAbortRequest as a synchronous AbortRequest
// handler on eventBus, scoped to this machine's session id.
func (m *Machine) Subscribe(eventBus *bus.EventBus) bus.Subscription {
	return eventBus.Subscribe("abort_request", func(ctx context.Context, evt events.Event) {
		ar := evt.(*events.AbortRequest)
		if ar.SessionID != m.sessionID {
			return
		}
		m.HandleAbortRequest(ctx, ar)
	}, false)
}
