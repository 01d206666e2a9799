// Package conn owns the lifecycle of downstream sessions. Sessions are
// dialed lazily on first use, shared between callers, and reaped after an
// idle period.
package conn

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpagg/internal/domain"
	"mcpagg/internal/infra/registry"
	"mcpagg/internal/infra/transport"
)

const (
	// DefaultIdleTimeout is how long a session may sit unused before the
	// cleanup loop closes it.
	DefaultIdleTimeout = 30 * time.Minute

	minCleanupInterval = time.Minute
)

type managedSession struct {
	session transport.Session
	server  string

	mu       sync.Mutex
	lastUsed time.Time
}

func (m *managedSession) touch() {
	m.mu.Lock()
	m.lastUsed = time.Now()
	m.mu.Unlock()
}

func (m *managedSession) idleSince(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastUsed)
}

// Manager hands out live sessions keyed by canonical server name.
// Concurrent callers asking for the same server share one dial; callers
// asking for different servers dial in parallel.
type Manager struct {
	registry *registry.Registry
	factory  transport.Factory
	metrics  domain.Metrics
	logger   *zap.Logger

	idleTimeout time.Duration
	unsubscribe func()

	mu       sync.Mutex
	sessions map[string]*managedSession
	dialing  map[string]*sync.Mutex
	closed   bool
}

type ManagerOptions struct {
	Registry    *registry.Registry
	Factory     transport.Factory
	Metrics     domain.Metrics
	Logger      *zap.Logger
	IdleTimeout time.Duration
}

func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	m := &Manager{
		registry:    opts.Registry,
		factory:     opts.Factory,
		metrics:     opts.Metrics,
		logger:      logger.Named("conn"),
		idleTimeout: idle,
		sessions:    make(map[string]*managedSession),
		dialing:     make(map[string]*sync.Mutex),
	}
	m.unsubscribe = opts.Registry.Subscribe(m.onRegistryChange)
	return m
}

// GetSession returns the live session for a server, dialing one if none
// exists. The fast path is a map lookup; the slow path serializes dials
// per server so a burst of callers produces exactly one connection.
func (m *Manager) GetSession(ctx context.Context, name string) (transport.Session, error) {
	key := domain.CanonicalName(name)

	if ms := m.lookup(key); ms != nil {
		ms.touch()
		return ms.session, nil
	}

	lock := m.dialLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have finished dialing while we waited.
	if ms := m.lookup(key); ms != nil {
		ms.touch()
		return ms.session, nil
	}

	if err := m.registry.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	srv, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if !srv.Enabled {
		return nil, domain.UnavailableError("conn.getSession", srv.Name, nil)
	}

	session, err := m.factory.Dial(ctx, srv)
	if err != nil {
		m.metrics.ObserveDial(srv.Name, false)
		if domain.IsDomainError(err) {
			return nil, err
		}
		return nil, domain.UnavailableError("conn.getSession", srv.Name, err)
	}
	m.metrics.ObserveDial(srv.Name, true)

	ms := &managedSession{session: session, server: srv.Name, lastUsed: time.Now()}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = session.Close()
		return nil, domain.UnavailableError("conn.getSession", srv.Name, nil)
	}
	m.sessions[key] = ms
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(active)
	m.logger.Info("session established", zap.String("server", srv.Name))
	return session, nil
}

// IsConnected reports whether a live session exists without dialing.
func (m *Manager) IsConnected(name string) bool {
	return m.lookup(domain.CanonicalName(name)) != nil
}

// Disconnect closes and forgets the session for a server. Disconnecting
// a server with no session is a no-op.
func (m *Manager) Disconnect(name string) {
	key := domain.CanonicalName(name)

	m.mu.Lock()
	ms, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := ms.session.Close(); err != nil {
		m.logger.Warn("session close failed", zap.String("server", ms.server), zap.Error(err))
	}
	m.metrics.SetActiveSessions(active)
	m.logger.Info("session closed", zap.String("server", ms.server))
}

// CleanupIdle closes every session idle longer than the configured
// timeout and returns how many were closed.
func (m *Manager) CleanupIdle() int {
	now := time.Now()

	m.mu.Lock()
	var stale []*managedSession
	for key, ms := range m.sessions {
		if ms.idleSince(now) > m.idleTimeout {
			stale = append(stale, ms)
			delete(m.sessions, key)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, ms := range stale {
		if err := ms.session.Close(); err != nil {
			m.logger.Warn("idle session close failed", zap.String("server", ms.server), zap.Error(err))
		}
		m.logger.Info("idle session evicted", zap.String("server", ms.server))
	}
	if len(stale) > 0 {
		m.metrics.SetActiveSessions(active)
	}
	return len(stale)
}

// RunCleanupLoop sweeps idle sessions until ctx is done. The sweep
// interval is half the idle timeout, floored at one minute.
func (m *Manager) RunCleanupLoop(ctx context.Context) {
	interval := m.idleTimeout / 2
	if interval < minCleanupInterval {
		interval = minCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("idle cleanup loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanupIdle(); n > 0 {
				m.logger.Info("idle sweep complete", zap.Int("closed", n))
			}
		}
	}
}

// Close tears down every session and detaches from the registry. The
// manager refuses new sessions afterwards.
func (m *Manager) Close() {
	m.unsubscribe()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	all := make([]*managedSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		all = append(all, ms)
	}
	m.sessions = make(map[string]*managedSession)
	m.mu.Unlock()

	for _, ms := range all {
		if err := ms.session.Close(); err != nil {
			m.logger.Warn("session close failed", zap.String("server", ms.server), zap.Error(err))
		}
	}
	m.metrics.SetActiveSessions(0)
}

// onRegistryChange drops sessions whose server was removed or disabled.
// Sessions for still-enabled servers are left alone.
func (m *Manager) onRegistryChange() {
	m.mu.Lock()
	var stale []*managedSession
	for key, ms := range m.sessions {
		srv, ok := m.registry.TryGet(key)
		if ok && srv.Enabled {
			continue
		}
		stale = append(stale, ms)
		delete(m.sessions, key)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, ms := range stale {
		if err := ms.session.Close(); err != nil {
			m.logger.Warn("session close failed", zap.String("server", ms.server), zap.Error(err))
		}
		m.logger.Info("session dropped after registry change", zap.String("server", ms.server))
	}
	if len(stale) > 0 {
		m.metrics.SetActiveSessions(active)
	}
}

func (m *Manager) lookup(key string) *managedSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key]
}

func (m *Manager) dialLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.dialing[key]
	if !ok {
		lock = &sync.Mutex{}
		m.dialing[key] = lock
	}
	return lock
}
