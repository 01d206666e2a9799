// Package index caches downstream tool catalogs with a TTL so listing the
// aggregate surface does not hammer every backend on every call.
package index

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpagg/internal/domain"
	"mcpagg/internal/infra/registry"
	"mcpagg/internal/infra/transport"
)

// DefaultCacheTTL bounds how long a fetched catalog is served without a
// fresh round-trip.
const DefaultCacheTTL = 5 * time.Minute

// SessionSource yields a live session for a named server. Satisfied by
// the connection manager.
type SessionSource interface {
	GetSession(ctx context.Context, name string) (transport.Session, error)
}

type cachedCatalog struct {
	tools     []domain.ToolDetail
	fetchedAt time.Time
}

// ToolIndex serves per-server catalogs from a TTL cache and assembles the
// aggregate listing across all registered servers.
type ToolIndex struct {
	registry *registry.Registry
	sessions SessionSource
	metrics  domain.Metrics
	logger   *zap.Logger
	ttl      time.Duration

	unsubscribe func()

	mu      sync.RWMutex
	cache   map[string]cachedCatalog
	fetches map[string]*sync.Mutex
}

type Options struct {
	Registry *registry.Registry
	Sessions SessionSource
	Metrics  domain.Metrics
	Logger   *zap.Logger
	CacheTTL time.Duration
}

func New(opts Options) *ToolIndex {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	idx := &ToolIndex{
		registry: opts.Registry,
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
		logger:   logger.Named("index"),
		ttl:      ttl,
		cache:    make(map[string]cachedCatalog),
		fetches:  make(map[string]*sync.Mutex),
	}
	idx.unsubscribe = opts.Registry.Subscribe(idx.evictUnregistered)
	return idx
}

// Close detaches the index from registry notifications.
func (idx *ToolIndex) Close() {
	idx.unsubscribe()
}

// GetIndex returns one row per registered server, sorted by name. A
// disabled server appears with no tools and no fetch; a server whose
// catalog cannot be fetched appears unavailable instead of failing the
// whole listing.
func (idx *ToolIndex) GetIndex(ctx context.Context) ([]domain.ServiceIndex, error) {
	if err := idx.registry.EnsureLoaded(ctx); err != nil {
		return nil, err
	}

	servers := idx.registry.GetAll()
	sort.Slice(servers, func(i, j int) bool {
		return domain.CanonicalName(servers[i].Name) < domain.CanonicalName(servers[j].Name)
	})

	out := make([]domain.ServiceIndex, 0, len(servers))
	for _, srv := range servers {
		row := domain.ServiceIndex{
			Name:        srv.Name,
			DisplayName: srv.DisplayName,
			Description: srv.Description,
			Enabled:     srv.Enabled,
			HasSkillDoc: srv.HasSkillDoc,
			AISummary:   srv.AISummary,
			Tools:       []domain.ToolSummary{},
		}

		if srv.Enabled {
			tools, err := idx.GetToolsForServer(ctx, srv.Name)
			if err != nil {
				idx.logger.Warn("catalog fetch failed, listing server as unavailable",
					zap.String("server", srv.Name), zap.Error(err))
			} else {
				row.Available = true
				for _, tool := range tools {
					row.Tools = append(row.Tools, domain.ToolSummary{
						Name:        tool.Name,
						Description: tool.Description,
					})
				}
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// GetDetails returns the full-schema view for one server. Unlike
// GetIndex, a fetch failure here propagates to the caller.
func (idx *ToolIndex) GetDetails(ctx context.Context, name string) (domain.ServiceDetails, error) {
	if err := idx.registry.EnsureLoaded(ctx); err != nil {
		return domain.ServiceDetails{}, err
	}

	srv, err := idx.registry.Get(name)
	if err != nil {
		return domain.ServiceDetails{}, err
	}

	details := domain.ServiceDetails{
		Name:        srv.Name,
		DisplayName: srv.DisplayName,
		Description: srv.Description,
		Enabled:     srv.Enabled,
		HasSkillDoc: srv.HasSkillDoc,
		AISummary:   srv.AISummary,
		Tools:       []domain.ToolDetail{},
	}
	if !srv.Enabled {
		return details, nil
	}

	tools, err := idx.GetToolsForServer(ctx, srv.Name)
	if err != nil {
		return domain.ServiceDetails{}, err
	}
	details.Available = true
	details.Tools = tools
	return details, nil
}

// GetToolsForServer returns the cached catalog for a server, fetching a
// fresh one when the entry is missing or older than the TTL. Concurrent
// callers hitting an expired entry share a single round-trip.
func (idx *ToolIndex) GetToolsForServer(ctx context.Context, name string) ([]domain.ToolDetail, error) {
	key := domain.CanonicalName(name)

	if tools, ok := idx.cached(key); ok {
		idx.metrics.ObserveCatalogFetch(name, true)
		return tools, nil
	}

	lock := idx.fetchLock(key)
	lock.Lock()
	defer lock.Unlock()

	if tools, ok := idx.cached(key); ok {
		idx.metrics.ObserveCatalogFetch(name, true)
		return tools, nil
	}

	session, err := idx.sessions.GetSession(ctx, name)
	if err != nil {
		return nil, err
	}
	raw, err := session.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	idx.metrics.ObserveCatalogFetch(name, false)

	tools := make([]domain.ToolDetail, 0, len(raw))
	for _, tool := range raw {
		tools = append(tools, domain.ToolDetail{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	idx.mu.Lock()
	idx.cache[key] = cachedCatalog{tools: tools, fetchedAt: time.Now()}
	idx.mu.Unlock()

	idx.logger.Debug("catalog refreshed", zap.String("server", name), zap.Int("tools", len(tools)))
	return tools, nil
}

// Invalidate drops the cached catalog for one server.
func (idx *ToolIndex) Invalidate(name string) {
	key := domain.CanonicalName(name)
	idx.mu.Lock()
	delete(idx.cache, key)
	idx.mu.Unlock()
}

// InvalidateAll drops every cached catalog.
func (idx *ToolIndex) InvalidateAll() {
	idx.mu.Lock()
	idx.cache = make(map[string]cachedCatalog)
	idx.mu.Unlock()
}

// evictUnregistered drops cached catalogs for servers no longer in the
// registry. Catalogs for surviving servers keep their TTL.
func (idx *ToolIndex) evictUnregistered() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for key := range idx.cache {
		if _, ok := idx.registry.TryGet(key); !ok {
			delete(idx.cache, key)
		}
	}
}

func (idx *ToolIndex) cached(key string) ([]domain.ToolDetail, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entry, ok := idx.cache[key]
	if !ok || time.Since(entry.fetchedAt) >= idx.ttl {
		return nil, false
	}
	return entry.tools, true
}

func (idx *ToolIndex) fetchLock(key string) *sync.Mutex {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	lock, ok := idx.fetches[key]
	if !ok {
		lock = &sync.Mutex{}
		idx.fetches[key] = lock
	}
	return lock
}
