// Package sessionmgr implements the SessionManager: creates and destroys
// SessionContext/LifecycleManager pairs, enforces the per-session
// inactivity timeout, and emits session lifecycle events.
package sessionmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaytone/xiaozhi-engine/pkg/core/bus"
	"github.com/relaytone/xiaozhi-engine/pkg/core/di"
	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/lifecycle"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// Config tunes SessionManager's inactivity enforcement.
type Config struct {
	InactivityTimeout time.Duration // default 120s per spec.md #5
	MonitorTick       time.Duration // default 10s per spec.md P7
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 120 * time.Second
	}
	if c.MonitorTick <= 0 {
		c.MonitorTick = 10 * time.Second
	}
	return c
}

type entry struct {
	ctx        *types.SessionContext
	lifecycle  *lifecycle.Manager
	destroying bool
}

// Manager tracks every live session and its teardown hooks, grounded on
// the teacher's sessions.Tracker (register/unregister/wait-all), extended
// with the inactivity sweep spec.md's SessionManager owns.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup

	cfg     Config
	bus     *bus.EventBus
	di      *di.Container
	logger  *slog.Logger

	onDestroy func(sessionID string) // teardown hook: transport unregister, DI cleanup
}

// New constructs a Manager. onDestroy is invoked once per session, after
// its lifecycle has been stopped but before the entry is removed from the
// registry, so it can unregister the transport connection and call
// di.CleanupSession.
func New(eventBus *bus.EventBus, container *di.Container, cfg Config, logger *slog.Logger, onDestroy func(sessionID string)) *Manager {
	return &Manager{
		sessions:  make(map[string]*entry),
		cfg:       cfg.withDefaults(),
		bus:       eventBus,
		di:        container,
		logger:    logger,
		onDestroy: onDestroy,
	}
}

// Create mints a new session id, builds its SessionContext and
// LifecycleManager, registers both, and publishes SessionCreated.
func (m *Manager) Create(parent context.Context, deviceID, clientID, clientIP string) (*types.SessionContext, *lifecycle.Manager) {
	sessionID := uuid.Must(uuid.NewV7()).String()

	lc := lifecycle.New(parent)
	sc := types.NewSessionContext(sessionID, deviceID, clientID, clientIP)
	sc.Lifecycle = lc

	m.mu.Lock()
	m.sessions[sessionID] = &entry{ctx: sc, lifecycle: lc}
	m.wg.Add(1)
	m.mu.Unlock()

	m.bus.Publish(parent, &events.SessionCreated{SessionID: sessionID, DeviceID: deviceID})
	return sc, lc
}

// Get resolves a session id to its SessionContext.
func (m *Manager) Get(sessionID string) (*types.SessionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.ctx, true
}

// Destroy tears a session down: stops its LifecycleManager (cancelling and
// awaiting every tracked task), runs onDestroy, publishes SessionDestroyed,
// and removes it from the registry. Safe to call more than once; a call
// for a session already being torn down, or for an unknown session id, is
// a no-op.
func (m *Manager) Destroy(ctx context.Context, sessionID, reason string) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok || e.destroying {
		m.mu.Unlock()
		return
	}
	e.destroying = true
	m.mu.Unlock()

	e.lifecycle.Stop()
	if m.onDestroy != nil {
		m.onDestroy(sessionID)
	}
	m.bus.Publish(ctx, &events.SessionDestroyed{SessionID: sessionID, Reason: reason})
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	m.wg.Done()
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Wait blocks until every session has been destroyed, or ctx is cancelled —
// used by graceful shutdown to give in-flight sessions a chance to drain.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep destroys every session idle for at least the configured inactivity
// timeout. Called by the cron-scheduled Reaper on Config.MonitorTick — see
// engine.New, which builds a Reaper against this Manager at startup.
func (m *Manager) Sweep(ctx context.Context) {
	m.mu.Lock()
	stale := make([]string, 0)
	for id, e := range m.sessions {
		if e.ctx.IdleSince() >= m.cfg.InactivityTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.logger.InfoContext(ctx, "destroying inactive session", "session_id", id)
		m.Destroy(ctx, id, "inactivity_timeout")
	}
}

// IDs returns the session ids currently live, used by graceful shutdown to
// broadcast a draining notice before the grace period starts.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// DestroyAll tears down every live session with reason, used by graceful
// shutdown once Wait's grace period expires and remaining sessions must be
// cut loose rather than left dangling.
func (m *Manager) DestroyAll(ctx context.Context, reason string) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Destroy(ctx, id, reason)
	}
}
