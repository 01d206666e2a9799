package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"mcpagg/internal/domain"
)

func newBackendServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "backend",
		Version: "0.1.0",
	}, nil)
	server.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "echoes back its input",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "echoed"}},
		}, nil
	})

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})

	httpServer := httptest.NewServer(handler)
	t.Cleanup(httpServer.Close)
	return httpServer
}

func TestMCPFactory_DialHTTPAndListTools(t *testing.T) {
	backend := newBackendServer(t)
	factory := NewMCPFactory(MCPFactoryOptions{})

	session, err := factory.Dial(context.Background(), domain.RegisteredServer{
		Name:    "backend",
		Enabled: true,
		Transport: domain.TransportConfig{
			Type: domain.TransportHTTP,
			URL:  backend.URL,
		},
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, session.Close())
	}()

	tools, err := session.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].Name)
}

func TestMCPFactory_CallTool(t *testing.T) {
	backend := newBackendServer(t)
	factory := NewMCPFactory(MCPFactoryOptions{})

	session, err := factory.Dial(context.Background(), domain.RegisteredServer{
		Name:      "backend",
		Transport: domain.TransportConfig{Type: domain.TransportHTTP, URL: backend.URL},
	})
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	result, err := session.CallTool(context.Background(), "echo", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	require.Equal(t, "echoed", result.Content[0].(*mcp.TextContent).Text)
}

func TestMCPFactory_InvalidConfigs(t *testing.T) {
	factory := NewMCPFactory(MCPFactoryOptions{})
	ctx := context.Background()

	_, err := factory.Dial(ctx, domain.RegisteredServer{
		Name:      "bad",
		Transport: domain.TransportConfig{Type: domain.TransportStdio},
	})
	code, _ := domain.CodeFrom(err)
	require.Equal(t, domain.CodeInvalidConfig, code)

	_, err = factory.Dial(ctx, domain.RegisteredServer{
		Name:      "bad",
		Transport: domain.TransportConfig{Type: domain.TransportHTTP},
	})
	code, _ = domain.CodeFrom(err)
	require.Equal(t, domain.CodeInvalidConfig, code)

	_, err = factory.Dial(ctx, domain.RegisteredServer{
		Name:      "bad",
		Transport: domain.TransportConfig{Type: "carrier-pigeon"},
	})
	code, _ = domain.CodeFrom(err)
	require.Equal(t, domain.CodeInvalidConfig, code)
}
