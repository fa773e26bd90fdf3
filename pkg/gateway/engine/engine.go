// Package engine wires every gateway component — transport, router,
// control dispatcher, audio pipeline, dialogue service, TTS orchestrator,
// tool handler, and per-session abort machines — into one running system
// bound to a shared EventBus and DI container. It is the one place that
// knows about every other package; nothing here is itself a protocol or
// algorithm, only construction and event routing.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaytone/xiaozhi-engine/pkg/core/bus"
	"github.com/relaytone/xiaozhi-engine/pkg/core/di"
	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/abort"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/audio"
	gwconfig "github.com/relaytone/xiaozhi-engine/pkg/gateway/config"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/control"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/dialogue"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/intent"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/protocol"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/router"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/sessionmgr"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/tools"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/transport"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/tts"
	"github.com/relaytone/xiaozhi-engine/pkg/providers/tools/webfetch"
)

// Engine owns every long-lived gateway component for one process.
type Engine struct {
	cfg        gwconfig.Config
	configPort ports.Config

	bus       *bus.EventBus
	container *di.Container
	sessions  *sessionmgr.Manager
	transport *transport.Transport
	router    *router.Router
	control   *control.Dispatcher
	audio     *audio.Service
	dialogue  *dialogue.Service
	tts       *tts.Orchestrator
	tools     *tools.Handler
	intent    *intent.Service
	reaper    *sessionmgr.Reaper

	abortMu sync.Mutex
	aborts  map[string]*abort.Machine

	logger *slog.Logger
}

// New constructs an Engine and registers every provider named in
// SPEC_FULL.md's DOMAIN STACK under the DI container, keyed by name so a
// session's AgentConfig.<Port>.Name selects which one it resolves.
// intentLLM may be nil when no agent uses IntentMode == intent_llm.
func New(cfg gwconfig.Config, configPort ports.Config, intentLLM ports.Intent, registerProviders func(*di.Container), logger *slog.Logger) (*Engine, error) {
	eventBus := bus.New(logger)
	container := di.New()
	if registerProviders != nil {
		registerProviders(container)
	}

	tr := transport.New()
	toolHandler := tools.New(container, eventBus)

	e := &Engine{
		cfg:        cfg,
		configPort: configPort,
		bus:        eventBus,
		container:  container,
		transport:  tr,
		tools:      toolHandler,
		aborts:     make(map[string]*abort.Machine),
		logger:     logger,
	}

	e.sessions = sessionmgr.New(eventBus, container, sessionmgr.Config{
		InactivityTimeout: cfg.SessionInactivityTimeout,
		MonitorTick:       cfg.SessionMonitorTick,
	}, logger, e.onSessionDestroy)

	monitorTick := cfg.SessionMonitorTick
	if monitorTick <= 0 {
		monitorTick = 10 * time.Second
	}
	recycleInterval := cfg.SingletonRecycleInterval
	if recycleInterval <= 0 {
		recycleInterval = time.Hour
	}
	e.reaper = sessionmgr.NewReaper(e.sessions, logger)
	if err := e.reaper.ScheduleSweep(context.Background(), fmt.Sprintf("@every %s", monitorTick)); err != nil {
		return nil, fmt.Errorf("engine: scheduling inactivity reaper: %w", err)
	}
	if err := e.reaper.ScheduleFunc(fmt.Sprintf("@every %s", recycleInterval), container.RecycleSingletons); err != nil {
		return nil, fmt.Errorf("engine: scheduling singleton recycle: %w", err)
	}
	e.reaper.Start()

	e.router = router.New(eventBus, e.sessions.Get, logger)
	e.control = control.New(eventBus, e.sessions.Get, tr, e, logger)

	e.audio = audio.New(e.vadFor, e.asrFor, e.sessions.Get, eventBus, audio.Config{
		SilenceTimeout:     cfg.VADSilenceTimeout,
		MaxSegmentDuration: cfg.VADMaxSegmentDuration,
		WakeUpCooldown:     cfg.VADWakeUpCooldown,
	}, logger)

	e.tts = tts.New(e.ttsFor, tr, eventBus, logger)
	e.intent = intent.New(intentLLM)

	trimmer, err := dialogue.NewHistoryBudget(cfg.HistoryBudgetModel, cfg.HistoryBudgetMaxTokens, cfg.HistoryBudgetReserveTokens)
	if err != nil {
		return nil, fmt.Errorf("engine: building history budget: %w", err)
	}
	e.dialogue = dialogue.New(e.llmFor, e.memoryFor, toolHandler, e.sessions.Get, eventBus, trimmer, logger)

	e.wireEvents()
	return e, nil
}

// wireEvents subscribes every stage of the pipeline to the EventBus. This
// mirrors spec.md #3's wiring diagram: MessageRouter -> control.Dispatcher,
// AudioDataReceived -> AudioProcessingService, TextRecognized(final) ->
// DialogueService, TTS lifecycle -> Orchestrator + abort.Machine + Transport.
func (e *Engine) wireEvents() {
	e.bus.Subscribe("text_message_received", func(ctx context.Context, evt events.Event) {
		e.control.HandleTextMessageReceived(ctx, evt.(*events.TextMessageReceived))
	}, false)

	e.bus.Subscribe("audio_data_received", func(ctx context.Context, evt events.Event) {
		e.audio.HandleAudioDataReceived(ctx, evt.(*events.AudioDataReceived))
	}, true)

	e.bus.Subscribe("text_recognized", func(ctx context.Context, evt events.Event) {
		tr := evt.(*events.TextRecognized)
		if !tr.IsFinal || tr.Text == "" {
			return
		}
		_ = e.transport.SendJSON(tr.SessionID, protocol.ServerSTT{Type: "stt", Text: tr.Text}, true)
		e.handleFinalText(ctx, tr.SessionID, tr.Text)
	}, true)

	e.bus.Subscribe("tts_start", func(ctx context.Context, evt events.Event) {
		ev := evt.(*events.TTSStart)
		if m := e.abortMachine(ev.SessionID); m != nil {
			m.OnTTSStart()
		}
		if sc, ok := e.sessions.Get(ev.SessionID); ok {
			sc.SetSpeaking(true)
		}
		_ = e.transport.SendJSON(ev.SessionID, protocol.ServerLLM{Type: "llm", State: "thinking"}, true)
		_ = e.transport.SendJSON(ev.SessionID, protocol.ServerTTS{Type: "tts", State: "start"}, true)
	}, true)

	e.bus.Subscribe("tts_audio_ready", func(ctx context.Context, evt events.Event) {
		ev := evt.(*events.TTSAudioReady)
		sc, ok := e.sessions.Get(ev.SessionID)
		if !ok {
			return
		}
		voiceID := ""
		if sc.Agent != nil {
			voiceID = sc.Agent.VoiceID
		}
		e.tts.AddMessage(ctx, ev.SessionID, voiceID, ev.Unit)
	}, true)

	e.bus.Subscribe("tts_end", func(ctx context.Context, evt events.Event) {
		ev := evt.(*events.TTSEnd)
		if m := e.abortMachine(ev.SessionID); m != nil {
			m.OnTTSEnd()
		}
		if sc, ok := e.sessions.Get(ev.SessionID); ok {
			sc.SetSpeaking(false)
		}
		_ = e.transport.SendJSON(ev.SessionID, protocol.ServerTTS{Type: "tts", State: "end"}, true)
	}, true)
}

// handleFinalText is IntentService's routing point ahead of DialogueService
// (spec.md #4.9): intent_llm mode runs a distinct classification call, and
// a matched intent is dispatched directly as a tool call instead of
// entering the LLM turn loop. nointent and function_call both fall through
// to ProcessUserInput unchanged — function_call folds recognition into the
// dialogue LLM's own tool schemas instead of a separate call.
func (e *Engine) handleFinalText(ctx context.Context, sessionID, text string) {
	sc, ok := e.sessions.Get(sessionID)
	if !ok || sc.Agent == nil {
		return
	}

	if sc.Agent.IntentMode == types.IntentLLM {
		result, err := e.intent.Recognize(ctx, *sc.Agent, text, historyToMessages(sc))
		if err != nil {
			e.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "intent", Err: err})
		} else if result.HasIntent {
			e.dispatchIntent(ctx, sc, text, result)
			return
		}
	}

	e.dialogue.ProcessUserInput(ctx, sessionID, text)
}

// dispatchIntent executes an intent_llm classification's matched tool
// directly, bracketing it with the same TTSStart/TTSEnd pair DialogueService
// uses so the abort machine and transport see a normal speaking turn.
func (e *Engine) dispatchIntent(ctx context.Context, sc *types.SessionContext, text string, result intent.Result) {
	sessionID := sc.SessionID
	sentenceID := uuid.Must(uuid.NewV7()).String()
	sc.SetCurrentSentence(sentenceID)
	sc.History.Append(types.RoleUser, text, "")
	e.bus.Publish(ctx, &events.TTSStart{SessionID: sessionID, SentenceID: sentenceID})

	call := types.ToolCall{ID: uuid.Must(uuid.NewV7()).String(), Name: result.Intent.Name, Arguments: result.Intent.Params}
	e.bus.Publish(ctx, &events.ToolCallRequested{SessionID: sessionID, ToolCall: call})
	res := e.tools.Execute(ctx, sessionID, call)
	e.bus.Publish(ctx, &events.ToolCallCompleted{SessionID: sessionID, Result: res})

	sc.History.Append(types.RoleTool, res.Text, res.ToolCallID)
	if res.Text != "" {
		e.bus.Publish(ctx, &events.TTSAudioReady{SessionID: sessionID, Unit: types.SentenceUnit{
			SentenceID:   sentenceID,
			SentenceType: types.SentenceMiddle,
			ContentType:  types.ContentText,
			Text:         res.Text,
		}})
	}
	e.bus.Publish(ctx, &events.TTSEnd{SessionID: sessionID, SentenceID: sentenceID})
}

func historyToMessages(sc *types.SessionContext) []types.Message {
	entries := sc.History.Entries()
	out := make([]types.Message, 0, len(entries))
	for _, entry := range entries {
		out = append(out, types.Message{Role: entry.Role, Text: entry.Content, ToolCallID: entry.ToolCallID})
	}
	return out
}

// HandleConnection is the entry point the HTTP handler calls once a
// WebSocket upgrade succeeds: it negotiates an AgentConfig, creates the
// session, and blocks on the connection's read loop until it ends.
func (e *Engine) HandleConnection(ctx context.Context, ws *websocket.Conn, deviceID, clientID, clientIP string) error {
	agent, err := e.configPort.AgentConfigForDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("engine: resolving agent config: %w", err)
	}

	sc, lc := e.sessions.Create(ctx, deviceID, clientID, clientIP)
	sc.Agent = &agent
	registerDefaultTools(e.tools.RegistryFor(sc.SessionID))

	e.transport.Register(lc.Context(), sc.SessionID, ws, transport.Config{
		PingInterval:      e.cfg.TransportPingInterval,
		WriteTimeout:      e.cfg.TransportWriteTimeout,
		ReadTimeout:       e.cfg.TransportReadTimeout,
		PriorityQueueSize: e.cfg.TransportPriorityQueueLen,
		NormalQueueSize:   e.cfg.TransportNormalQueueLen,
	})

	m := abort.New(sc.SessionID, sc, e.bus, e.tts)
	m.Subscribe(e.bus)
	e.abortMu.Lock()
	e.aborts[sc.SessionID] = m
	e.abortMu.Unlock()

	err = e.transport.ReadLoop(lc.Context(), sc.SessionID,
		func(text []byte) { e.router.HandleText(lc.Context(), sc.SessionID, text) },
		func(frame []byte) { e.router.HandleBinary(lc.Context(), sc.SessionID, frame, false) },
	)

	e.sessions.Destroy(ctx, sc.SessionID, "connection_closed")
	return err
}

// registerDefaultTools populates a freshly created session's tool registry
// with the user-level tools every agent gets regardless of AgentConfig.
// Today that set is just web_fetch; no SYSTEM_CTL tool is registered.
func registerDefaultTools(reg *tools.Registry) {
	reg.Register(webfetch.New())
}

// onSessionDestroy is SessionManager's teardown hook: it persists a memory
// summary, unregisters the transport connection, drops the abort machine
// and tool registry, and cleans the DI container's session-scoped cache.
func (e *Engine) onSessionDestroy(sessionID string) {
	if sc, ok := e.sessions.Get(sessionID); ok {
		if mem := e.memoryFor(sessionID); mem != nil && sc.History != nil {
			_ = mem.Summarize(context.Background(), sessionID, sc.History.Entries())
		}
	}
	e.transport.Unregister(sessionID)
	e.tts.Cleanup(sessionID)
	e.tools.Cleanup(sessionID)
	e.abortMu.Lock()
	delete(e.aborts, sessionID)
	e.abortMu.Unlock()
	e.container.CleanupSession(sessionID)
}

func (e *Engine) abortMachine(sessionID string) *abort.Machine {
	e.abortMu.Lock()
	defer e.abortMu.Unlock()
	return e.aborts[sessionID]
}

// Count reports the number of live sessions, satisfying
// handlers.SessionCounter for the readiness probe.
func (e *Engine) Count() int {
	return e.sessions.Count()
}

// Wait blocks until every live session finishes on its own, or ctx is
// cancelled, for graceful shutdown's drain step.
func (e *Engine) Wait(ctx context.Context) error {
	return e.sessions.Wait(ctx)
}

// CancelAll forcibly destroys every session still live, for graceful
// shutdown once Wait's grace period expires.
func (e *Engine) CancelAll() {
	e.reaper.Stop()
	e.sessions.DestroyAll(context.Background(), "shutdown")
}

// WarnDraining notifies every connected device that the process is
// shutting down, ahead of the hard cutoff CancelAll applies once the grace
// period in cmd/xiaozhi-server's shutdown sequence expires.
func (e *Engine) WarnDraining() {
	for _, id := range e.sessions.IDs() {
		_ = e.transport.SendJSON(id, protocol.ServerNotice{Type: "server", State: "draining"}, true)
	}
}

// SwapProvider hot-swaps sessionID's currently active ASR or TTS provider
// for a differently named one already registered in the DI container. Per
// AgentConfig's own contract, the swap never edits the negotiated
// AgentConfig: it resolves the replacement under its own binding key and
// grafts the resulting instance into the container under the key the
// session's existing config already resolves to, so every subsequent
// resolveBinding call for this session picks it up transparently.
func (e *Engine) SwapProvider(sessionID, port, name string) error {
	sc, ok := e.sessions.Get(sessionID)
	if !ok || sc.Agent == nil {
		return fmt.Errorf("engine: unknown session %q", sessionID)
	}

	var activeKey, newKey string
	switch port {
	case "asr":
		activeKey, newKey = ASRBindingKey(sc.Agent.ASR.Name), ASRBindingKey(name)
	case "tts":
		activeKey, newKey = TTSBindingKey(sc.Agent.TTS.Name), TTSBindingKey(name)
	default:
		return fmt.Errorf("engine: provider swap not supported for port %q", port)
	}

	if !e.container.IsRegistered(newKey) {
		return fmt.Errorf("engine: no %s provider registered under name %q", port, name)
	}
	instance, err := e.container.Resolve(newKey, sessionID)
	if err != nil {
		return fmt.Errorf("engine: resolving replacement %s provider %q: %w", port, name, err)
	}
	e.container.UpdateSessionService(activeKey, sessionID, instance)
	return nil
}

// DI registration names are namespaced by port so distinct ports can reuse
// a provider name (e.g. both ASR and TTS ship a "reference" adapter)
// without colliding in the container's cache. registerProviders passed to
// New must register under these same keys.
func VADBindingKey(name string) string    { return "vad:" + name }
func ASRBindingKey(name string) string    { return "asr:" + name }
func TTSBindingKey(name string) string    { return "tts:" + name }
func LLMBindingKey(name string) string    { return "llm:" + name }
func MemoryBindingKey(name string) string { return "memory:" + name }

func (e *Engine) vadFor(sessionID string) ports.VAD {
	return resolveBinding[ports.VAD](e, sessionID, func(sc *types.SessionContext) string { return VADBindingKey(sc.Agent.VAD.Name) })
}

func (e *Engine) asrFor(sessionID string) ports.ASR {
	return resolveBinding[ports.ASR](e, sessionID, func(sc *types.SessionContext) string { return ASRBindingKey(sc.Agent.ASR.Name) })
}

func (e *Engine) ttsFor(sessionID string) ports.TTS {
	return resolveBinding[ports.TTS](e, sessionID, func(sc *types.SessionContext) string { return TTSBindingKey(sc.Agent.TTS.Name) })
}

func (e *Engine) llmFor(sessionID string) ports.LLM {
	return resolveBinding[ports.LLM](e, sessionID, func(sc *types.SessionContext) string { return LLMBindingKey(sc.Agent.LLM.Name) })
}

func (e *Engine) memoryFor(sessionID string) ports.Memory {
	sc, ok := e.sessions.Get(sessionID)
	if !ok || sc.Agent == nil || sc.Agent.Memory.Name == "" || sc.Agent.Memory.Name == "none" {
		return nil
	}
	return resolveBinding[ports.Memory](e, sessionID, func(sc *types.SessionContext) string { return MemoryBindingKey(sc.Agent.Memory.Name) })
}

func resolveBinding[T any](e *Engine, sessionID string, key func(*types.SessionContext) string) T {
	var zero T
	sc, ok := e.sessions.Get(sessionID)
	if !ok || sc.Agent == nil {
		return zero
	}
	v, err := e.container.Resolve(key(sc), sessionID)
	if err != nil {
		e.logger.Error("resolving provider binding", "session_id", sessionID, "error", err)
		return zero
	}
	typed, ok := v.(T)
	if !ok {
		e.logger.Error("provider binding type mismatch", "session_id", sessionID, "key", key(sc))
		return zero
	}
	return typed
}
