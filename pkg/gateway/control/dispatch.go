// Package control turns decoded `/xiaozhi/v1/` text frames into
// SessionContext mutations and EventBus events: the "downstream parses
// JSON" half of MessageRouter's contract in spec.md #4.5. MessageRouter
// itself only classifies frames and publishes TextMessageReceived/
// AudioDataReceived; Dispatcher is what turns a hello into a session
// handshake, a listen into VAD-mode state, and an abort into AbortRequest.
package control

import (
	"context"
	"log/slog"

	"github.com/relaytone/xiaozhi-engine/pkg/core/bus"
	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/protocol"
)

// Sender is the subset of transport.Transport the dispatcher needs to reply
// to hello with a negotiated ack.
type Sender interface {
	SendJSON(sessionID string, v any, priority bool) error
}

// ProviderSwapper hot-swaps a session's ASR or TTS provider for a
// differently named one, without tearing the session down. Implemented by
// engine.Engine.
type ProviderSwapper interface {
	SwapProvider(sessionID, port, name string) error
}

type Dispatcher struct {
	bus      *bus.EventBus
	sessions func(sessionID string) (*types.SessionContext, bool)
	sender   Sender
	swapper  ProviderSwapper
	logger   *slog.Logger
}

func New(eventBus *bus.EventBus, lookup func(sessionID string) (*types.SessionContext, bool), sender Sender, swapper ProviderSwapper, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{bus: eventBus, sessions: lookup, sender: sender, swapper: swapper, logger: logger}
}

// HandleTextMessageReceived is the subscriber for MessageRouter's
// text_message_received event.
func (d *Dispatcher) HandleTextMessageReceived(ctx context.Context, evt *events.TextMessageReceived) {
	sc, ok := d.sessions(evt.SessionID)
	if !ok {
		return
	}

	msg, err := protocol.DecodeClientMessage([]byte(evt.Raw))
	if err != nil {
		d.logger.WarnContext(ctx, "dropping malformed frame", "session_id", evt.SessionID, "error", err)
		return
	}

	switch m := msg.(type) {
	case protocol.ClientHello:
		d.handleHello(sc, m)
	case protocol.ClientListen:
		d.handleListen(ctx, sc, m)
	case protocol.ClientAbort:
		d.bus.Publish(ctx, &events.AbortRequest{SessionID: sc.SessionID, Reason: nonEmpty(m.Reason, "client_abort")})
	case protocol.ClientServer:
		d.handleServer(ctx, sc, m)
	case protocol.ClientIOT, protocol.ClientMCP:
		// Device state and tool-protocol frames are consumed by the tool
		// layer; MessageRouter's contract in spec.md only requires
		// classification and delivery, which DecodeClientMessage above
		// already validated.
	}
}

// handleServer processes an administrative `server` frame. Today the only
// recognized op is swap_provider, a mid-session ASR/TTS hot-swap; unknown
// ops are acknowledged with an error notice rather than dropped silently,
// since a device operator waits on this reply.
func (d *Dispatcher) handleServer(ctx context.Context, sc *types.SessionContext, m protocol.ClientServer) {
	if m.Op != "swap_provider" {
		d.replyServerNotice(sc.SessionID, "error", "unsupported server op: "+m.Op)
		return
	}
	if d.swapper == nil {
		d.replyServerNotice(sc.SessionID, "error", "provider swap not available")
		return
	}

	port, _ := m.Args["port"].(string)
	name, _ := m.Args["name"].(string)
	if port == "" || name == "" {
		d.replyServerNotice(sc.SessionID, "error", "swap_provider requires port and name")
		return
	}

	if err := d.swapper.SwapProvider(sc.SessionID, port, name); err != nil {
		d.logger.WarnContext(ctx, "provider swap rejected", "session_id", sc.SessionID, "port", port, "name", name, "error", err)
		d.replyServerNotice(sc.SessionID, "error", err.Error())
		return
	}
	d.replyServerNotice(sc.SessionID, "swapped", "")
}

func (d *Dispatcher) replyServerNotice(sessionID, state, message string) {
	if d.sender == nil {
		return
	}
	_ = d.sender.SendJSON(sessionID, protocol.ServerNotice{Type: "server", State: state, Message: message}, true)
}

func (d *Dispatcher) handleHello(sc *types.SessionContext, m protocol.ClientHello) {
	if m.AudioParams.Format != "" {
		sc.AudioFormat = m.AudioParams.Format
	}
	if sc.Features == nil {
		sc.Features = map[string]any{}
	}
	for k, v := range m.Features {
		sc.Features[k] = v
	}

	ack := protocol.ServerHello{
		Type:        "hello",
		SessionID:   sc.SessionID,
		AudioParams: m.AudioParams,
	}
	if d.sender != nil {
		_ = d.sender.SendJSON(sc.SessionID, ack, true)
	}
}

func (d *Dispatcher) handleListen(ctx context.Context, sc *types.SessionContext, m protocol.ClientListen) {
	if mode := types.ListenMode(m.Mode); m.Mode != "" {
		sc.SetListenMode(mode)
	}
	switch m.State {
	case "start":
		sc.SetSpeaking(false)
		sc.ClientHaveVoice = false
		sc.ClientVoiceStop = false
	case "stop":
		sc.ClientVoiceStop = true
	case "detect":
		sc.JustWokenUp = true
	}
}

func nonEmpty(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
