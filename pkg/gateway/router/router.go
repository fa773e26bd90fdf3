// Package router implements the MessageRouter: classifies each inbound
// frame as text or binary audio, updates last-activity tracking, and
// publishes the corresponding typed event onto the EventBus.
package router

import (
	"context"
	"log/slog"

	"github.com/relaytone/xiaozhi-engine/pkg/core/bus"
	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/protocol"
)

// Router dispatches inbound frames for sessions whose SessionContext it can
// look up by id.
type Router struct {
	bus      *bus.EventBus
	sessions func(sessionID string) (*types.SessionContext, bool)
	logger   *slog.Logger
}

// New returns a Router that publishes onto eventBus. lookup resolves a
// session id to its SessionContext (typically SessionManager.Get);
// MessageRouter itself owns no session state.
func New(eventBus *bus.EventBus, lookup func(sessionID string) (*types.SessionContext, bool), logger *slog.Logger) *Router {
	return &Router{bus: eventBus, sessions: lookup, logger: logger}
}

// HandleText processes one inbound text frame for sessionID.
func (r *Router) HandleText(ctx context.Context, sessionID string, raw []byte) {
	if sess, ok := r.sessions(sessionID); ok {
		sess.Touch()
	}
	r.bus.Publish(ctx, &events.TextMessageReceived{SessionID: sessionID, Raw: string(raw)})
}

// HandleBinary processes one inbound binary frame for sessionID. When
// fromMQTTGateway is set and the frame is at least 16 bytes, it is parsed
// as an MQTT-gateway audio frame (timestamp + length-prefixed payload);
// otherwise the whole frame is treated as audio.
func (r *Router) HandleBinary(ctx context.Context, sessionID string, frame []byte, fromMQTTGateway bool) {
	if sess, ok := r.sessions(sessionID); ok {
		sess.Touch()
	}

	if fromMQTTGateway && len(frame) >= protocol.MQTTHeaderLen {
		ts, audio, err := protocol.DecodeMQTTAudioFrame(frame)
		if err != nil {
			r.logger.WarnContext(ctx, "dropping malformed mqtt audio frame", "session_id", sessionID, "error", err)
			return
		}
		r.bus.Publish(ctx, &events.AudioDataReceived{SessionID: sessionID, Audio: audio, TimestampMS: ts})
		return
	}

	r.bus.Publish(ctx, &events.AudioDataReceived{SessionID: sessionID, Audio: frame})
}
