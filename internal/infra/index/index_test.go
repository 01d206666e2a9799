package index

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"mcpagg/internal/domain"
	"mcpagg/internal/infra/registry"
	"mcpagg/internal/infra/telemetry"
	"mcpagg/internal/infra/transport"
)

type memPersistence struct {
	mu   sync.Mutex
	data domain.RegistryData
}

func (p *memPersistence) Load(context.Context) (domain.RegistryData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data, nil
}

func (p *memPersistence) Save(_ context.Context, data domain.RegistryData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = data
	return nil
}

type listSession struct {
	tools   []*mcp.Tool
	listErr error
	lists   atomic.Int64
}

func (s *listSession) ListTools(context.Context) ([]*mcp.Tool, error) {
	s.lists.Add(1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tools, nil
}

func (s *listSession) CallTool(context.Context, string, any) (*mcp.CallToolResult, error) {
	return nil, errors.New("not implemented")
}

func (s *listSession) Close() error { return nil }

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*listSession
}

func (f *fakeSessions) GetSession(_ context.Context, name string) (transport.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[domain.CanonicalName(name)]
	if !ok {
		return nil, domain.UnavailableError("test", name, errors.New("no session"))
	}
	return s, nil
}

func newTestIndex(t *testing.T, ttl time.Duration, servers ...domain.RegisteredServer) (*ToolIndex, *registry.Registry, *fakeSessions) {
	t.Helper()

	reg := registry.New(&memPersistence{}, nil)
	ctx := context.Background()
	require.NoError(t, reg.EnsureLoaded(ctx))
	for _, srv := range servers {
		require.NoError(t, reg.Register(ctx, srv))
	}

	sessions := &fakeSessions{sessions: make(map[string]*listSession)}
	idx := New(Options{
		Registry: reg,
		Sessions: sessions,
		Metrics:  telemetry.NewNoopMetrics(),
		CacheTTL: ttl,
	})
	t.Cleanup(idx.Close)
	return idx, reg, sessions
}

func server(name string, enabled bool) domain.RegisteredServer {
	return domain.RegisteredServer{
		Name:    name,
		Enabled: enabled,
		Transport: domain.TransportConfig{
			Type:    domain.TransportStdio,
			Command: "fake-server",
		},
	}
}

func TestToolIndex_CacheWithinTTL(t *testing.T) {
	idx, _, sessions := newTestIndex(t, time.Minute, server("alpha", true))
	sessions.sessions["alpha"] = &listSession{tools: []*mcp.Tool{{Name: "ping"}}}

	ctx := context.Background()
	for range 3 {
		tools, err := idx.GetToolsForServer(ctx, "Alpha")
		require.NoError(t, err)
		require.Len(t, tools, 1)
		require.Equal(t, "ping", tools[0].Name)
	}
	require.EqualValues(t, 1, sessions.sessions["alpha"].lists.Load())
}

func TestToolIndex_ExpiryTriggersSingleRefetch(t *testing.T) {
	idx, _, sessions := newTestIndex(t, time.Minute, server("alpha", true))
	sessions.sessions["alpha"] = &listSession{tools: []*mcp.Tool{{Name: "ping"}}}

	ctx := context.Background()
	_, err := idx.GetToolsForServer(ctx, "alpha")
	require.NoError(t, err)

	idx.mu.Lock()
	entry := idx.cache["alpha"]
	entry.fetchedAt = time.Now().Add(-2 * time.Minute)
	idx.cache["alpha"] = entry
	idx.mu.Unlock()

	_, err = idx.GetToolsForServer(ctx, "alpha")
	require.NoError(t, err)
	require.EqualValues(t, 2, sessions.sessions["alpha"].lists.Load())
}

func TestToolIndex_GetIndexAbsorbsFailures(t *testing.T) {
	idx, _, sessions := newTestIndex(t, time.Minute,
		server("alpha", true), server("broken", true), server("off", false))
	sessions.sessions["alpha"] = &listSession{tools: []*mcp.Tool{
		{Name: "ping", Description: "pings"},
	}}
	sessions.sessions["broken"] = &listSession{listErr: errors.New("connection refused")}

	rows, err := idx.GetIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, "alpha", rows[0].Name)
	require.True(t, rows[0].Available)
	require.Equal(t, []domain.ToolSummary{{Name: "ping", Description: "pings"}}, rows[0].Tools)

	require.Equal(t, "broken", rows[1].Name)
	require.True(t, rows[1].Enabled)
	require.False(t, rows[1].Available)
	require.Empty(t, rows[1].Tools)

	require.Equal(t, "off", rows[2].Name)
	require.False(t, rows[2].Enabled)
	require.False(t, rows[2].Available)
	require.Empty(t, rows[2].Tools)
}

func TestToolIndex_GetIndexSkipsFetchForDisabled(t *testing.T) {
	idx, _, sessions := newTestIndex(t, time.Minute, server("off", false))
	sessions.sessions["off"] = &listSession{tools: []*mcp.Tool{{Name: "ping"}}}

	_, err := idx.GetIndex(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, sessions.sessions["off"].lists.Load())
}

func TestToolIndex_GetDetailsPropagatesFailure(t *testing.T) {
	idx, _, sessions := newTestIndex(t, time.Minute, server("broken", true))
	sessions.sessions["broken"] = &listSession{listErr: errors.New("connection refused")}

	_, err := idx.GetDetails(context.Background(), "broken")
	require.Error(t, err)
	require.ErrorContains(t, err, "connection refused")
}

func TestToolIndex_GetDetailsDisabledServer(t *testing.T) {
	idx, _, _ := newTestIndex(t, time.Minute, server("off", false))

	details, err := idx.GetDetails(context.Background(), "off")
	require.NoError(t, err)
	require.False(t, details.Available)
	require.Empty(t, details.Tools)
}

func TestToolIndex_GetDetailsUnknownServer(t *testing.T) {
	idx, _, _ := newTestIndex(t, time.Minute)

	_, err := idx.GetDetails(context.Background(), "ghost")
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeNotFound, code)
}

func TestToolIndex_InvalidateForcesRefetch(t *testing.T) {
	idx, _, sessions := newTestIndex(t, time.Minute, server("alpha", true))
	sessions.sessions["alpha"] = &listSession{tools: []*mcp.Tool{{Name: "ping"}}}

	ctx := context.Background()
	_, err := idx.GetToolsForServer(ctx, "alpha")
	require.NoError(t, err)

	idx.Invalidate("ALPHA")
	_, err = idx.GetToolsForServer(ctx, "alpha")
	require.NoError(t, err)
	require.EqualValues(t, 2, sessions.sessions["alpha"].lists.Load())
}

func TestToolIndex_RegistryChangeEvictsOnlyRemoved(t *testing.T) {
	idx, reg, sessions := newTestIndex(t, time.Minute, server("alpha", true), server("beta", true))
	sessions.sessions["alpha"] = &listSession{tools: []*mcp.Tool{{Name: "ping"}}}
	sessions.sessions["beta"] = &listSession{tools: []*mcp.Tool{{Name: "pong"}}}

	ctx := context.Background()
	_, err := idx.GetToolsForServer(ctx, "alpha")
	require.NoError(t, err)
	_, err = idx.GetToolsForServer(ctx, "beta")
	require.NoError(t, err)

	require.NoError(t, reg.Unregister(ctx, "beta"))

	idx.mu.RLock()
	_, alphaCached := idx.cache["alpha"]
	_, betaCached := idx.cache["beta"]
	idx.mu.RUnlock()
	require.True(t, alphaCached)
	require.False(t, betaCached)

	// Alpha is still served from cache after the change.
	_, err = idx.GetToolsForServer(ctx, "alpha")
	require.NoError(t, err)
	require.EqualValues(t, 1, sessions.sessions["alpha"].lists.Load())
}

func TestToolIndex_RegisterKeepsExistingCache(t *testing.T) {
	idx, reg, sessions := newTestIndex(t, time.Minute, server("alpha", true))
	sessions.sessions["alpha"] = &listSession{tools: []*mcp.Tool{{Name: "ping"}}}

	ctx := context.Background()
	_, err := idx.GetToolsForServer(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, reg.Register(ctx, server("beta", true)))

	_, err = idx.GetToolsForServer(ctx, "alpha")
	require.NoError(t, err)
	require.EqualValues(t, 1, sessions.sessions["alpha"].lists.Load())
}

func TestToolIndex_GetIndexLoadsRegistry(t *testing.T) {
	persistence := &memPersistence{
		data: domain.RegistryData{Servers: []domain.RegisteredServer{server("seeded", true)}},
	}
	reg := registry.New(persistence, nil)
	sessions := &fakeSessions{sessions: map[string]*listSession{
		"seeded": {tools: []*mcp.Tool{{Name: "ping"}}},
	}}
	idx := New(Options{
		Registry: reg,
		Sessions: sessions,
		Metrics:  telemetry.NewNoopMetrics(),
		CacheTTL: time.Minute,
	})
	t.Cleanup(idx.Close)

	// No caller has loaded the registry yet; the listing does it itself.
	rows, err := idx.GetIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "seeded", rows[0].Name)
	require.True(t, rows[0].Available)
}

func TestToolIndex_GetDetailsLoadsRegistry(t *testing.T) {
	persistence := &memPersistence{
		data: domain.RegistryData{Servers: []domain.RegisteredServer{server("seeded", true)}},
	}
	reg := registry.New(persistence, nil)
	sessions := &fakeSessions{sessions: map[string]*listSession{
		"seeded": {tools: []*mcp.Tool{{Name: "ping"}}},
	}}
	idx := New(Options{
		Registry: reg,
		Sessions: sessions,
		Metrics:  telemetry.NewNoopMetrics(),
		CacheTTL: time.Minute,
	})
	t.Cleanup(idx.Close)

	details, err := idx.GetDetails(context.Background(), "seeded")
	require.NoError(t, err)
	require.Len(t, details.Tools, 1)
	require.Equal(t, "ping", details.Tools[0].Name)
}
