package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/relaytone/xiaozhi-engine/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// SessionCounter reports how many sessions are currently live, so readyz
// can surface load without reaching into sessionmgr directly.
type SessionCounter interface {
	Count() int
}

type ReadyHandler struct {
	Lifecycle *lifecycle.Lifecycle
	Sessions  SessionCounter
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK           bool `json:"ok"`
		Draining     bool `json:"draining"`
		LiveSessions int  `json:"live_sessions"`
	}

	draining := h.Lifecycle.IsDraining()
	sessions := 0
	if h.Sessions != nil {
		sessions = h.Sessions.Count()
	}

	status := http.StatusOK
	if draining {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{OK: !draining, Draining: draining, LiveSessions: sessions})
}
