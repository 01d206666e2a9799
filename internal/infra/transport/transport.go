// Package transport dials MCP sessions to downstream servers. The rest of
// the gateway treats sessions as opaque capabilities and never sees
// protocol framing.
package transport

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpagg/internal/domain"
)

// Session is a live connection to one downstream server.
type Session interface {
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error)
	Close() error
}

// Factory opens a session for a descriptor's transport configuration.
// Dial errors are returned raw; the connection manager is responsible for
// classifying them.
type Factory interface {
	Dial(ctx context.Context, srv domain.RegisteredServer) (Session, error)
}
