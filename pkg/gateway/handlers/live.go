package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/relaytone/xiaozhi-engine/pkg/gateway/lifecycle"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/mw"
)

// ConnectionHandler is the subset of *engine.Engine the WebSocket handler
// needs. Narrowed to an interface so tests can stand in a fake.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, ws *websocket.Conn, deviceID, clientID, clientIP string) error
}

// LiveHandler upgrades a device's WebSocket connection and hands it to the
// engine. Device and client identity travel as the Device-Id/Client-Id
// headers per the device firmware's convention; a caller behind a load
// balancer may also supply them as query parameters.
type LiveHandler struct {
	Engine    ConnectionHandler
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}

	deviceID := headerOrQuery(r, "Device-Id", "device_id")
	if deviceID == "" {
		http.Error(w, "missing Device-Id", http.StatusBadRequest)
		return
	}
	clientID := headerOrQuery(r, "Client-Id", "client_id")
	if clientID == "" {
		clientID = "client_" + randHex(8)
	}
	clientIP := resolveClientIP(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	reqID, _ := mw.RequestIDFrom(r.Context())
	if err := h.Engine.HandleConnection(r.Context(), conn, deviceID, clientID, clientIP); err != nil && h.Logger != nil {
		h.Logger.Info("connection ended", "request_id", reqID, "device_id", deviceID, "error", err)
	}
}

func headerOrQuery(r *http.Request, header, param string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(param))
}

func resolveClientIP(r *http.Request) string {
	if raw := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); raw != "" {
		first := strings.TrimSpace(strings.Split(raw, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return first
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		if ip := net.ParseIP(v); ip != nil {
			return v
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
