// Package transport implements the device WebSocket connection: register,
// send (JSON or binary, serialized by a per-session mutex), unregister, and
// the priority-lane outbound writer that keeps control frames ahead of
// queued audio under backpressure.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send when the session has no registered
// connection (already unregistered or never registered).
var ErrNotConnected = errors.New("transport: session not connected")

// ErrOutboundFull is returned when the normal-priority outbound queue is at
// capacity. Per SPEC_FULL.md's outbound backpressure policy, sustained
// occurrences of this should trigger the same AbortRequest path as a
// client-initiated barge-in.
var ErrOutboundFull = errors.New("transport: outbound queue full")

// wsConn is the subset of *websocket.Conn the writer and reader loops use,
// narrowed to a small interface so fakes can stand in for tests.
type wsConn interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type outboundFrame struct {
	priority bool
	text     []byte
	binary   []byte
}

// Config tunes a connection's read/write behavior.
type Config struct {
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PriorityQueueSize int
	NormalQueueSize   int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.PriorityQueueSize <= 0 {
		c.PriorityQueueSize = 32
	}
	if c.NormalQueueSize <= 0 {
		c.NormalQueueSize = 256
	}
	return c
}

// connection is one registered device connection.
type connection struct {
	mu       sync.Mutex
	ws       wsConn
	cfg      Config
	priority chan outboundFrame
	normal   chan outboundFrame
	closed   bool
}

// Transport owns the registry of live connections, keyed by session id.
type Transport struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

// New returns an empty Transport.
func New() *Transport {
	return &Transport{conns: make(map[string]*connection)}
}

// Register adds ws under sessionID and starts its write loop on ctx.
// Register replaces any prior connection registered for sessionID (the
// caller is expected to have already unregistered the old one on
// reconnect).
func (t *Transport) Register(ctx context.Context, sessionID string, ws *websocket.Conn, cfg Config) {
	cfg = cfg.withDefaults()
	c := &connection{
		ws:       ws,
		cfg:      cfg,
		priority: make(chan outboundFrame, cfg.PriorityQueueSize),
		normal:   make(chan outboundFrame, cfg.NormalQueueSize),
	}

	t.mu.Lock()
	t.conns[sessionID] = c
	t.mu.Unlock()

	go t.runWriter(ctx, sessionID, c)
}

// IsConnected reports whether sessionID currently has a registered
// connection.
func (t *Transport) IsConnected(sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[sessionID]
	return ok
}

// Unregister removes sessionID's connection and closes its outbound
// channels, letting the write loop drain and exit.
func (t *Transport) Unregister(sessionID string) {
	t.mu.Lock()
	c, ok := t.conns[sessionID]
	delete(t.conns, sessionID)
	t.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.priority)
		close(c.normal)
	}
	c.mu.Unlock()
}

// SendJSON marshals v and enqueues it as a text frame. Control-plane
// payloads (errors, resets, tts start/end) should set priority=true so they
// jump ahead of queued audio.
func (t *Transport) SendJSON(sessionID string, v any, priority bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal payload: %w", err)
	}
	return t.enqueue(sessionID, outboundFrame{priority: priority, text: payload})
}

// SendBinary enqueues a raw binary frame, typically synthesized audio.
func (t *Transport) SendBinary(sessionID string, data []byte, priority bool) error {
	return t.enqueue(sessionID, outboundFrame{priority: priority, binary: data})
}

func (t *Transport) enqueue(sessionID string, frame outboundFrame) error {
	t.mu.RLock()
	c, ok := t.conns[sessionID]
	t.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	ch := c.normal
	if frame.priority {
		ch = c.priority
	}
	select {
	case ch <- frame:
		return nil
	default:
		if frame.priority {
			// Priority frames must never be dropped silently; block briefly
			// rather than report backpressure on the control plane.
			select {
			case ch <- frame:
				return nil
			case <-time.After(c.cfg.WriteTimeout):
				return ErrOutboundFull
			}
		}
		return ErrOutboundFull
	}
}

func (t *Transport) runWriter(ctx context.Context, sessionID string, c *connection) {
	defer func() {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	var pendingNormal *outboundFrame

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		default:
		}

		// Hard priority: drain anything queued on the priority lane first.
		select {
		case frame, ok := <-c.priority:
			if !ok {
				return
			}
			if err := t.writeFrame(c, frame); err != nil {
				return
			}
			continue
		default:
		}

		if pendingNormal != nil {
			select {
			case frame, ok := <-c.priority:
				if !ok {
					return
				}
				if err := t.writeFrame(c, frame); err != nil {
					return
				}
				continue
			default:
			}
			if err := t.writeFrame(c, *pendingNormal); err != nil {
				return
			}
			pendingNormal = nil
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return
			}
		case frame, ok := <-c.priority:
			if !ok {
				return
			}
			if err := t.writeFrame(c, frame); err != nil {
				return
			}
		case frame, ok := <-c.normal:
			if !ok {
				return
			}
			pendingNormal = &frame
		}
	}
}

func (t *Transport) writeFrame(c *connection, frame outboundFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if frame.text != nil {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return c.ws.WriteMessage(websocket.TextMessage, frame.text)
	}
	if frame.binary != nil {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return c.ws.WriteMessage(websocket.BinaryMessage, frame.binary)
	}
	return nil
}

// ReadLoop blocks reading frames from sessionID's connection, invoking
// onText for JSON text frames and onBinary for binary audio frames, until
// the connection closes or ctx is cancelled. The caller runs this on its
// own goroutine per session.
func (t *Transport) ReadLoop(ctx context.Context, sessionID string, onText func([]byte), onBinary func([]byte)) error {
	t.mu.RLock()
	c, ok := t.conns[sessionID]
	t.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		switch messageType {
		case websocket.TextMessage:
			onText(data)
		case websocket.BinaryMessage:
			onBinary(data)
		}
	}
}
