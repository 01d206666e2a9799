package transport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpagg/internal/domain"
)

const defaultHTTPMaxRetries = 3

// MCPFactory dials downstream servers with the MCP go-sdk: stdio servers
// via a spawned subprocess, HTTP servers via the streamable transport.
type MCPFactory struct {
	logger     *zap.Logger
	impl       *mcp.Implementation
	httpClient *http.Client
}

// MCPFactoryOptions configures the factory.
type MCPFactoryOptions struct {
	Logger     *zap.Logger
	ClientName string
	Version    string
	HTTPClient *http.Client
}

func NewMCPFactory(opts MCPFactoryOptions) *MCPFactory {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := opts.ClientName
	if name == "" {
		name = "mcpagg"
	}
	version := opts.Version
	if version == "" {
		version = "0.1.0"
	}
	return &MCPFactory{
		logger:     logger.Named("transport"),
		impl:       &mcp.Implementation{Name: name, Version: version},
		httpClient: opts.HTTPClient,
	}
}

func (f *MCPFactory) Dial(ctx context.Context, srv domain.RegisteredServer) (Session, error) {
	t, err := f.buildTransport(srv)
	if err != nil {
		return nil, err
	}

	client := mcp.NewClient(f.impl, nil)
	session, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", srv.Transport.Type, err)
	}

	f.logger.Info("session established",
		zap.String("server", srv.Name),
		zap.String("transport", string(srv.Transport.Type)))
	return &mcpSession{session: session}, nil
}

func (f *MCPFactory) buildTransport(srv domain.RegisteredServer) (mcp.Transport, error) {
	cfg := srv.Transport
	switch cfg.Type {
	case domain.TransportStdio:
		if cfg.Command == "" {
			return nil, domain.InvalidConfigError("transport.dial", "stdio transport requires a command")
		}
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Env = append(os.Environ(), formatEnv(cfg.Env)...)
		return &mcp.CommandTransport{Command: cmd}, nil
	case domain.TransportHTTP:
		if cfg.URL == "" {
			return nil, domain.InvalidConfigError("transport.dial", "http transport requires a url")
		}
		return &mcp.StreamableClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: f.httpClient,
			MaxRetries: defaultHTTPMaxRetries,
		}, nil
	default:
		return nil, domain.InvalidConfigError("transport.dial", "unknown transport type: "+string(cfg.Type))
	}
}

func formatEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

type mcpSession struct {
	session *mcp.ClientSession
}

func (s *mcpSession) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var tools []*mcp.Tool
	cursor := ""
	for {
		res, err := s.session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	return s.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

func (s *mcpSession) Close() error {
	return s.session.Close()
}
