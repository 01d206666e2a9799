// Package proxy forwards tool invocations to downstream servers and
// normalizes their results into plain text for the caller.
package proxy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpagg/internal/domain"
	"mcpagg/internal/infra/transport"
)

// DefaultToolTimeout bounds a single invocation when the caller's context
// carries no deadline of its own.
const DefaultToolTimeout = 30 * time.Second

// NoContentSentinel is returned when a tool succeeds without producing
// any content blocks.
const NoContentSentinel = "Tool completed with no content."

// Executor runs an operation against a named server's session, retrying
// once on transient transport failures. Satisfied by the connection
// manager.
type Executor interface {
	ExecuteWithRetry(ctx context.Context, name string, fn func(transport.Session) error) error
}

// Handler is the tool invocation proxy.
type Handler struct {
	executor Executor
	metrics  domain.Metrics
	logger   *zap.Logger
	timeout  time.Duration
}

type Options struct {
	Executor Executor
	Metrics  domain.Metrics
	Logger   *zap.Logger
	Timeout  time.Duration
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Handler{
		executor: opts.Executor,
		metrics:  opts.Metrics,
		logger:   logger.Named("proxy"),
		timeout:  timeout,
	}
}

// Invoke parses argsJSON, calls the named tool on the named server, and
// returns the normalized text result. Results flagged as errors by the
// downstream tool surface as a ToolExecutionError.
func (h *Handler) Invoke(ctx context.Context, server, tool, argsJSON string) (string, error) {
	const op = "proxy.invoke"

	args, err := parseArgs(argsJSON)
	if err != nil {
		return "", domain.E(domain.CodeInvalidConfig, op, "invalid tool arguments", err)
	}

	invocationID := uuid.NewString()
	logger := h.logger.With(
		zap.String("invocation", invocationID),
		zap.String("server", server),
		zap.String("tool", tool),
	)
	logger.Info("invoking tool")

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	var result *mcp.CallToolResult
	err = h.executor.ExecuteWithRetry(callCtx, server, func(session transport.Session) error {
		r, callErr := session.CallTool(callCtx, tool, args)
		if callErr != nil {
			return callErr
		}
		result = r
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		status, wrapped := h.classifyFailure(ctx, callCtx, op, server, tool, err)
		h.metrics.ObserveInvocation(server, tool, status, duration)
		logger.Warn("invocation failed", zap.String("status", status), zap.Error(wrapped))
		return "", wrapped
	}

	text := renderContent(result.Content)
	if result.IsError {
		msg := text
		if len(result.Content) == 0 {
			msg = "No error details provided"
		}
		h.metrics.ObserveInvocation(server, tool, "tool_error", duration)
		logger.Info("tool reported error", zap.Duration("duration", duration))
		return "", &domain.ToolExecutionError{Server: server, Tool: tool, Message: msg}
	}
	if len(result.Content) == 0 {
		text = NoContentSentinel
	}

	h.metrics.ObserveInvocation(server, tool, "ok", duration)
	logger.Info("invocation complete", zap.Duration("duration", duration))
	return text, nil
}

// classifyFailure separates the caller giving up from the proxy's own
// deadline firing. Everything else passes through, wrapped only when it
// carries no domain code yet.
func (h *Handler) classifyFailure(ctx, callCtx context.Context, op, server, tool string, err error) (string, error) {
	if ctx.Err() != nil {
		return "canceled", domain.E(domain.CodeCanceled, op,
			fmt.Sprintf("invocation of %q on %q canceled by caller", tool, server), err)
	}
	if callCtx.Err() == context.DeadlineExceeded {
		return "timeout", domain.E(domain.CodeTimeout, op,
			fmt.Sprintf("invocation of %q on %q timed out after %s", tool, server, h.timeout), err)
	}
	if domain.IsDomainError(err) {
		return "error", err
	}
	return "error", domain.E(domain.CodeInternal, op, "", err)
}

func parseArgs(argsJSON string) (*domain.ValueMap, error) {
	if strings.TrimSpace(argsJSON) == "" {
		return domain.NewValueMap(), nil
	}
	return domain.ParseArguments(argsJSON)
}

// renderContent joins text blocks with newlines; non-text blocks keep
// their position as a placeholder tag.
func renderContent(blocks []mcp.Content) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch c := block.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, "[image content block]")
		case *mcp.AudioContent:
			parts = append(parts, "[audio content block]")
		case *mcp.ResourceLink:
			parts = append(parts, "[resource_link content block]")
		case *mcp.EmbeddedResource:
			parts = append(parts, "[resource content block]")
		default:
			parts = append(parts, fmt.Sprintf("[%T content block]", block))
		}
	}
	return strings.Join(parts, "\n")
}
