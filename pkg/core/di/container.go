// Package di implements the DIContainer: service factories registered
// under three scopes (singleton, session, transient), resolved by name and,
// for session scope, by session id.
package di

import (
	"fmt"
	"sync"
)

// Scope selects how a registered factory's result is cached.
type Scope int

const (
	// Singleton factories are invoked once per name and the instance is
	// shared process-wide (e.g. a shared VAD model, a connection pool) until
	// RecycleSingletons drops it and the next Resolve invokes the factory
	// again.
	Singleton Scope = iota
	// Session factories are invoked at most once per (name, session id)
	// pair, cached under the composite key "session_id:name".
	Session
	// Transient factories are invoked on every Resolve call.
	Transient
)

// SingletonFactory builds a singleton-scoped instance.
type SingletonFactory func() (any, error)

// SessionFactory builds a session-scoped instance for a given session id.
type SessionFactory func(sessionID string) (any, error)

// TransientFactory builds a transient instance from caller-supplied args.
type TransientFactory func(args ...any) (any, error)

type registration struct {
	scope      Scope
	singleton  SingletonFactory
	session    SessionFactory
	transient  TransientFactory
}

// Container is the DIContainer. It is safe for concurrent use: Resolve may
// be called from any session's loop, and cleanup_session/update_session_service
// from the SessionManager's own loop.
type Container struct {
	mu          sync.Mutex
	registrations map[string]registration
	cache       map[string]any // composite key "name" (singleton) or "session_id:name"
}

// New returns an empty Container.
func New() *Container {
	return &Container{
		registrations: make(map[string]registration),
		cache:         make(map[string]any),
	}
}

// RegisterSingleton registers a process-wide factory under name.
func (c *Container) RegisterSingleton(name string, factory SingletonFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[name] = registration{scope: Singleton, singleton: factory}
}

// RegisterSession registers a per-session factory under name.
func (c *Container) RegisterSession(name string, factory SessionFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[name] = registration{scope: Session, session: factory}
}

// RegisterTransient registers a per-call factory under name.
func (c *Container) RegisterTransient(name string, factory TransientFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[name] = registration{scope: Transient, transient: factory}
}

// Resolve looks up name. For session-scoped registrations sessionID selects
// the cache entry; it is ignored for singleton and transient registrations.
// args are forwarded only to transient factories. Resolving an unregistered
// name fails with a registration error.
func (c *Container) Resolve(name, sessionID string, args ...any) (any, error) {
	c.mu.Lock()
	reg, ok := c.registrations[name]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("di: no registration for %q", name)
	}

	switch reg.scope {
	case Transient:
		c.mu.Unlock()
		return reg.transient(args...)

	case Singleton:
		// A per-session override, written by UpdateSessionService for a
		// mid-session provider hot-swap, takes priority over the shared
		// process-wide instance.
		if v, cached := c.cache[sessionID+":"+name]; cached {
			c.mu.Unlock()
			return v, nil
		}
		if v, cached := c.cache[name]; cached {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()
		v, err := reg.singleton()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[name] = v
		c.mu.Unlock()
		return v, nil

	case Session:
		key := sessionID + ":" + name
		if v, cached := c.cache[key]; cached {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()
		v, err := reg.session(sessionID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = v
		c.mu.Unlock()
		return v, nil

	default:
		c.mu.Unlock()
		return nil, fmt.Errorf("di: unknown scope for %q", name)
	}
}

// IsRegistered reports whether name has a registered factory, without
// invoking it — used to validate a provider swap request before committing
// to it.
func (c *Container) IsRegistered(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.registrations[name]
	return ok
}

// UpdateSessionService atomically replaces the cached instance for a
// session-scoped (name, sessionID) pair, supporting a mid-session hot-swap
// of an ASR or TTS provider binding without tearing the session down.
func (c *Container) UpdateSessionService(name, sessionID string, instance any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[sessionID+":"+name] = instance
}

// RecycleSingletons drops every cached process-wide singleton instance,
// leaving session-scoped entries and per-session hot-swap overrides (written
// by UpdateSessionService) untouched. The next Resolve for a recycled name
// invokes its factory again, so a periodic caller can refresh a long-lived
// singleton — a connection pool, a warm model handle — without a restart.
func (c *Container) RecycleSingletons() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, reg := range c.registrations {
		if reg.scope == Singleton {
			delete(c.cache, name)
		}
	}
}

// CleanupSession removes every cached entry keyed "sessionID:*".
func (c *Container) CleanupSession(sessionID string) {
	prefix := sessionID + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.cache {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.cache, k)
		}
	}
}
