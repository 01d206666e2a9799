// Package app wires the gateway's components together and exposes them
// as an MCP server over stdio or streamable HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpagg/internal/domain"
	"mcpagg/internal/infra/conn"
	"mcpagg/internal/infra/index"
	"mcpagg/internal/infra/proxy"
	"mcpagg/internal/infra/registry"
	"mcpagg/internal/infra/skills"
	"mcpagg/internal/infra/storage"
	"mcpagg/internal/infra/summary"
	"mcpagg/internal/infra/telemetry"
	"mcpagg/internal/infra/transport"
)

const httpShutdownGrace = 5 * time.Second

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath string
	// AdminTools exposes register/unregister/update_skill/regenerate_summary
	// alongside the consumer tools.
	AdminTools bool
}

type ValidateConfig struct {
	ConfigPath string
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger.Named("app")}
}

// Serve runs the gateway over stdio until ctx is done.
func (a *App) Serve(ctx context.Context, serveCfg ServeConfig) error {
	cfg, err := LoadConfig(serveCfg.ConfigPath)
	if err != nil {
		return err
	}

	rt, err := a.build(ctx, cfg, serveCfg.AdminTools)
	if err != nil {
		return err
	}
	defer rt.close()

	err = rt.server.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ServeHTTP runs the gateway as a streamable HTTP endpoint until ctx is
// done.
func (a *App) ServeHTTP(ctx context.Context, serveCfg ServeConfig) error {
	cfg, err := LoadConfig(serveCfg.ConfigPath)
	if err != nil {
		return err
	}

	rt, err := a.build(ctx, cfg, serveCfg.AdminTools)
	if err != nil {
		return err
	}
	defer rt.close()

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return rt.server
	}, &mcp.StreamableHTTPOptions{})

	httpServer := &http.Server{
		Addr:    cfg.HTTPListenAddress,
		Handler: handler,
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("gateway listening", zap.String("addr", cfg.HTTPListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("gateway server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// Validate loads the config and the persisted registry and reports what
// it finds, without connecting to anything.
func (a *App) Validate(ctx context.Context, validateCfg ValidateConfig) error {
	cfg, err := LoadConfig(validateCfg.ConfigPath)
	if err != nil {
		return err
	}

	persistence, cleanup, err := a.openPersistence(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := persistence.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	enabled := 0
	for _, srv := range data.Servers {
		if srv.Enabled {
			enabled++
		}
	}
	a.logger.Info("configuration valid",
		zap.String("backend", cfg.RegistryBackend),
		zap.String("registry", cfg.RegistryPath),
		zap.Int("servers", len(data.Servers)),
		zap.Int("enabled", enabled),
	)
	return nil
}

// runtime holds the wired components for one serve invocation.
type runtime struct {
	server  *mcp.Server
	service *Service
	cleanup []func()
}

func (rt *runtime) close() {
	if rt.service != nil {
		rt.service.Close()
	}
	for i := len(rt.cleanup) - 1; i >= 0; i-- {
		rt.cleanup[i]()
	}
}

func (a *App) build(ctx context.Context, cfg Config, adminTools bool) (*runtime, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	rt := &runtime{}

	persistence, cleanup, err := a.openPersistence(cfg)
	if err != nil {
		return nil, err
	}
	rt.cleanup = append(rt.cleanup, cleanup)

	var metrics domain.Metrics = telemetry.NewNoopMetrics()
	if cfg.MetricsListenAddress != "" {
		promRegistry := prometheus.NewRegistry()
		metrics = telemetry.NewPrometheusMetrics(promRegistry)
		go func() {
			if err := telemetry.StartHTTPServer(ctx, cfg.MetricsListenAddress, promRegistry, a.logger); err != nil {
				a.logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	reg := registry.New(persistence, a.logger)
	if err := reg.EnsureLoaded(ctx); err != nil {
		rt.close()
		return nil, fmt.Errorf("load registry: %w", err)
	}

	if cfg.WatchRegistry {
		jsonFile, ok := persistence.(*storage.JSONFile)
		if !ok {
			rt.close()
			return nil, errors.New("registry watching requires the json backend")
		}
		watcher, err := registry.NewWatcher(reg, jsonFile.Path(), a.logger)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("start registry watcher: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("registry watcher stopped", zap.Error(err))
			}
		}()
	}

	factory := transport.NewMCPFactory(transport.MCPFactoryOptions{
		Logger:     a.logger,
		ClientName: gatewayName,
		Version:    gatewayVersion,
	})

	conns := conn.NewManager(conn.ManagerOptions{
		Registry:    reg,
		Factory:     factory,
		Metrics:     metrics,
		Logger:      a.logger,
		IdleTimeout: cfg.IdleTimeout,
	})
	go conns.RunCleanupLoop(ctx)

	toolIndex := index.New(index.Options{
		Registry: reg,
		Sessions: conns,
		Metrics:  metrics,
		Logger:   a.logger,
		CacheTTL: cfg.IndexCacheTTL,
	})

	proxyHandler := proxy.NewHandler(proxy.Options{
		Executor: conns,
		Metrics:  metrics,
		Logger:   a.logger,
		Timeout:  cfg.ToolTimeout,
	})

	var generator SummaryGenerator
	gen, err := summary.NewGenerator(ctx, cfg.AI, a.logger)
	if err != nil {
		rt.close()
		return nil, err
	}
	if gen != nil {
		generator = gen
	}

	rt.service = NewService(ServiceOptions{
		Registry: reg,
		Conns:    conns,
		Index:    toolIndex,
		Proxy:    proxyHandler,
		Skills:   skills.NewStore(cfg.SkillsDir, a.logger),
		Summary:  generator,
		Logger:   a.logger,
	})
	rt.server = NewGatewayServer(rt.service, adminTools)

	a.logger.Info("gateway ready",
		zap.String("backend", cfg.RegistryBackend),
		zap.Int("servers", len(reg.GetAll())),
		zap.Bool("adminTools", adminTools),
	)
	return rt, nil
}

func (a *App) openPersistence(cfg Config) (storage.Persistence, func(), error) {
	switch cfg.RegistryBackend {
	case BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.RegistryPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create registry directory: %w", err)
		}
		store, err := storage.OpenBoltStore(cfg.RegistryPath, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open registry store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("registry store close failed", zap.Error(err))
			}
		}, nil
	default:
		return storage.NewJSONFile(cfg.RegistryPath, a.logger), func() {}, nil
	}
}
