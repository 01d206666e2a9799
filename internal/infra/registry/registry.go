// Package registry owns the durable catalog of downstream servers.
package registry

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpagg/internal/domain"
	"mcpagg/internal/infra/storage"
)

// Registry is the in-memory view of the registered server set, backed by
// a persistence collaborator. Lookups are case-insensitive; descriptors
// are handed out as value snapshots and only mutated through Registry
// methods.
type Registry struct {
	persistence storage.Persistence
	logger      *zap.Logger

	mu      sync.RWMutex
	servers map[string]domain.RegisteredServer

	loadMu sync.Mutex
	loaded bool

	obsMu     sync.Mutex
	observers map[int]func()
	nextObsID int
}

func New(persistence storage.Persistence, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		persistence: persistence,
		logger:      logger.Named("registry"),
		servers:     make(map[string]domain.RegisteredServer),
		observers:   make(map[int]func()),
	}
}

// Subscribe registers a change observer, invoked after a server is added
// or removed. Delivery is best-effort and observers must tolerate seeing
// the same change more than once. The returned function unsubscribes.
func (r *Registry) Subscribe(fn func()) func() {
	r.obsMu.Lock()
	id := r.nextObsID
	r.nextObsID++
	r.observers[id] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

// EnsureLoaded performs the one-time initial load from persistence.
// Concurrent first calls all wait on the same load; exactly one
// persistence read ever happens.
func (r *Registry) EnsureLoaded(ctx context.Context) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	if r.loaded {
		return nil
	}

	data, err := r.persistence.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, srv := range data.Servers {
		r.servers[domain.CanonicalName(srv.Name)] = srv
	}
	count := len(r.servers)
	r.mu.Unlock()

	r.loaded = true
	r.logger.Info("registry loaded", zap.Int("servers", count))
	return nil
}

// Reload replaces the in-memory table with the persisted state. Used when
// the backing file changed outside this process.
func (r *Registry) Reload(ctx context.Context) error {
	data, err := r.persistence.Load(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]domain.RegisteredServer, len(data.Servers))
	for _, srv := range data.Servers {
		next[domain.CanonicalName(srv.Name)] = srv
	}

	r.mu.Lock()
	r.servers = next
	r.mu.Unlock()

	r.loadMu.Lock()
	r.loaded = true
	r.loadMu.Unlock()

	r.logger.Info("registry reloaded", zap.Int("servers", len(next)))
	r.notify()
	return nil
}

// GetAll returns a snapshot of every descriptor.
func (r *Registry) GetAll() []domain.RegisteredServer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.RegisteredServer, 0, len(r.servers))
	for _, srv := range r.servers {
		out = append(out, srv)
	}
	return out
}

// Get looks up a descriptor by case-insensitive name.
func (r *Registry) Get(name string) (domain.RegisteredServer, error) {
	srv, ok := r.TryGet(name)
	if !ok {
		return domain.RegisteredServer{}, domain.NotFoundError("registry.get", name)
	}
	return srv, nil
}

func (r *Registry) TryGet(name string) (domain.RegisteredServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	srv, ok := r.servers[domain.CanonicalName(name)]
	return srv, ok
}

// Register validates and adds a new descriptor, persists the updated set,
// then notifies observers.
func (r *Registry) Register(ctx context.Context, srv domain.RegisteredServer) error {
	const op = "registry.register"

	if strings.TrimSpace(srv.Name) == "" {
		return domain.InvalidConfigError(op, "server name is required")
	}
	if err := validateTransportConfig(srv.Transport); err != nil {
		return err
	}

	key := domain.CanonicalName(srv.Name)
	srv.RegisteredAt = time.Now().UTC()

	r.mu.Lock()
	if _, exists := r.servers[key]; exists {
		r.mu.Unlock()
		return domain.AlreadyExistsError(op, srv.Name)
	}
	r.servers[key] = srv
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return err
	}
	r.logger.Info("server registered", zap.String("server", srv.Name), zap.String("transport", string(srv.Transport.Type)))
	r.notify()
	return nil
}

// Unregister removes a descriptor, persists, and notifies observers.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	key := domain.CanonicalName(name)

	r.mu.Lock()
	if _, exists := r.servers[key]; !exists {
		r.mu.Unlock()
		return domain.NotFoundError("registry.unregister", name)
	}
	delete(r.servers, key)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return err
	}
	r.logger.Info("server unregistered", zap.String("server", name))
	r.notify()
	return nil
}

// SetEnabled flips the enabled flag and persists. No notification:
// callers re-fetch state.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	if err := r.mutate("registry.setEnabled", name, func(srv *domain.RegisteredServer) {
		srv.Enabled = enabled
	}); err != nil {
		return err
	}
	if err := r.persist(ctx); err != nil {
		return err
	}
	r.logger.Info("server enabled state changed", zap.String("server", name), zap.Bool("enabled", enabled))
	return nil
}

// UpdateDocFlag records whether a skill document exists for the server.
func (r *Registry) UpdateDocFlag(ctx context.Context, name string, hasDoc bool) error {
	if err := r.mutate("registry.updateDocFlag", name, func(srv *domain.RegisteredServer) {
		srv.HasSkillDoc = hasDoc
	}); err != nil {
		return err
	}
	return r.persist(ctx)
}

// UpdateSummary stores the AI-generated summary text.
func (r *Registry) UpdateSummary(ctx context.Context, name, summary string) error {
	if err := r.mutate("registry.updateSummary", name, func(srv *domain.RegisteredServer) {
		srv.AISummary = summary
	}); err != nil {
		return err
	}
	return r.persist(ctx)
}

func (r *Registry) mutate(op, name string, apply func(*domain.RegisteredServer)) error {
	key := domain.CanonicalName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	srv, ok := r.servers[key]
	if !ok {
		return domain.NotFoundError(op, name)
	}
	apply(&srv)
	r.servers[key] = srv
	return nil
}

func (r *Registry) persist(ctx context.Context) error {
	data := domain.RegistryData{
		Version: domain.RegistryDataVersion,
		Servers: r.GetAll(),
	}
	return r.persistence.Save(ctx, data)
}

func (r *Registry) notify() {
	r.obsMu.Lock()
	fns := make([]func(), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.obsMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func validateTransportConfig(cfg domain.TransportConfig) error {
	const op = "registry.register"

	switch cfg.Type {
	case domain.TransportStdio:
		if strings.TrimSpace(cfg.Command) == "" {
			return domain.InvalidConfigError(op, "stdio transport requires a command")
		}
	case domain.TransportHTTP:
		if strings.TrimSpace(cfg.URL) == "" {
			return domain.InvalidConfigError(op, "http transport requires a url")
		}
		parsed, err := url.Parse(cfg.URL)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			return domain.InvalidConfigError(op, "invalid url: "+cfg.URL)
		}
	default:
		return domain.InvalidConfigError(op, "unknown transport type: "+string(cfg.Type))
	}
	return nil
}
