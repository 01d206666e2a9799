package app

import (
	"context"

	"go.uber.org/zap"

	"mcpagg/internal/domain"
	"mcpagg/internal/infra/conn"
	"mcpagg/internal/infra/index"
	"mcpagg/internal/infra/proxy"
	"mcpagg/internal/infra/registry"
	"mcpagg/internal/infra/skills"
)

// SummaryGenerator is the optional AI summarizer. A nil field means the
// feature is off.
type SummaryGenerator interface {
	Generate(ctx context.Context, srv domain.RegisteredServer, tools []domain.ToolSummary) (string, error)
}

// Service implements the gateway's caller-facing operations on top of
// the registry, connection manager, index, proxy, and skill store.
type Service struct {
	registry *registry.Registry
	conns    *conn.Manager
	index    *index.ToolIndex
	proxy    *proxy.Handler
	skills   *skills.Store
	summary  SummaryGenerator
	logger   *zap.Logger
}

type ServiceOptions struct {
	Registry *registry.Registry
	Conns    *conn.Manager
	Index    *index.ToolIndex
	Proxy    *proxy.Handler
	Skills   *skills.Store
	Summary  SummaryGenerator
	Logger   *zap.Logger
}

func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: opts.Registry,
		conns:    opts.Conns,
		index:    opts.Index,
		proxy:    opts.Proxy,
		skills:   opts.Skills,
		summary:  opts.Summary,
		logger:   logger.Named("service"),
	}
}

// ListServices returns the aggregate catalog listing.
func (s *Service) ListServices(ctx context.Context) ([]domain.ServiceIndex, error) {
	return s.index.GetIndex(ctx)
}

// GetServiceDetails returns the full-schema view for one server.
func (s *Service) GetServiceDetails(ctx context.Context, name string) (domain.ServiceDetails, error) {
	return s.index.GetDetails(ctx, name)
}

// GetServiceSkill returns the server's skill document.
func (s *Service) GetServiceSkill(name string) (string, error) {
	if _, err := s.registry.Get(name); err != nil {
		return "", err
	}
	return s.skills.Get(name)
}

// InvokeTool proxies a tool call to a downstream server.
func (s *Service) InvokeTool(ctx context.Context, server, tool, argsJSON string) (string, error) {
	return s.proxy.Invoke(ctx, server, tool, argsJSON)
}

// EnableService marks a server usable again.
func (s *Service) EnableService(ctx context.Context, name string) error {
	if err := s.registry.SetEnabled(ctx, name, true); err != nil {
		return err
	}
	s.index.Invalidate(name)
	return nil
}

// DisableService stops routing to a server. Any live session is closed
// and its catalog entry dropped.
func (s *Service) DisableService(ctx context.Context, name string) error {
	if err := s.registry.SetEnabled(ctx, name, false); err != nil {
		return err
	}
	s.conns.Disconnect(name)
	s.index.Invalidate(name)
	return nil
}

// RegisterServer adds a new downstream server. When an AI summarizer is
// configured, a summary is generated best-effort; a failure there never
// fails the registration.
func (s *Service) RegisterServer(ctx context.Context, srv domain.RegisteredServer) error {
	if err := s.registry.Register(ctx, srv); err != nil {
		return err
	}
	if s.summary != nil {
		if err := s.generateSummary(ctx, srv.Name); err != nil {
			s.logger.Warn("summary generation failed after registration",
				zap.String("server", srv.Name), zap.Error(err))
		}
	}
	return nil
}

// UnregisterServer removes a server and all its side state: the live
// session, the skill document, and the cached catalog go with it.
func (s *Service) UnregisterServer(ctx context.Context, name string) error {
	if _, err := s.registry.Get(name); err != nil {
		return err
	}

	s.conns.Disconnect(name)
	if err := s.skills.Delete(name); err != nil {
		s.logger.Warn("skill document cleanup failed", zap.String("server", name), zap.Error(err))
	}
	s.index.Invalidate(name)
	return s.registry.Unregister(ctx, name)
}

// UpdateSkill stores the skill document for a server and flags the
// descriptor accordingly.
func (s *Service) UpdateSkill(ctx context.Context, name, content string) error {
	if _, err := s.registry.Get(name); err != nil {
		return err
	}
	if err := s.skills.Set(name, content); err != nil {
		return err
	}
	return s.registry.UpdateDocFlag(ctx, name, true)
}

// RegenerateSummary rebuilds the AI summary for a server on demand.
func (s *Service) RegenerateSummary(ctx context.Context, name string) error {
	const op = "service.regenerateSummary"

	if s.summary == nil {
		return domain.E(domain.CodeUnavailable, op, "AI summary generation is not configured", nil)
	}
	if _, err := s.registry.Get(name); err != nil {
		return err
	}
	return s.generateSummary(ctx, name)
}

// Close releases background resources held by the service's
// collaborators.
func (s *Service) Close() {
	s.index.Close()
	s.conns.Close()
}

func (s *Service) generateSummary(ctx context.Context, name string) error {
	srv, err := s.registry.Get(name)
	if err != nil {
		return err
	}

	var tools []domain.ToolSummary
	details, err := s.index.GetToolsForServer(ctx, name)
	if err != nil {
		s.logger.Warn("catalog unavailable for summary, using metadata only",
			zap.String("server", name), zap.Error(err))
	} else {
		tools = make([]domain.ToolSummary, 0, len(details))
		for _, t := range details {
			tools = append(tools, domain.ToolSummary{Name: t.Name, Description: t.Description})
		}
	}

	text, err := s.summary.Generate(ctx, srv, tools)
	if err != nil {
		return err
	}
	return s.registry.UpdateSummary(ctx, name, text)
}
