package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"mcpagg/internal/app"
)

type rootOptions struct {
	configPath string
	adminTools bool
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := rootOptions{}

	root := &cobra.Command{
		Use:   "mcpagg",
		Short: "MCP aggregator gateway exposing many servers behind one endpoint",
	}

	bindRootFlags(root.PersistentFlags(), &opts)

	root.AddCommand(
		newServeCmd(logger, &opts),
		newServeHTTPCmd(logger, &opts),
		newValidateCmd(logger, &opts),
	)

	return root
}

func bindRootFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVar(&opts.configPath, "config", opts.configPath, "path to config file (defaults apply when omitted)")
	flags.BoolVar(&opts.adminTools, "admin", true, "expose admin tools (register_server, unregister_server, update_skill, regenerate_summary)")
}

func newServeCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)
			return application.Serve(ctx, app.ServeConfig{
				ConfigPath: opts.configPath,
				AdminTools: opts.adminTools,
			})
		},
	}
}

func newServeHTTPCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-http",
		Short: "Run the gateway as a streamable HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)
			return application.ServeHTTP(ctx, app.ServeConfig{
				ConfigPath: opts.configPath,
				AdminTools: opts.adminTools,
			})
		},
	}
}

func newValidateCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and the persisted registry without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := app.New(logger)
			return application.Validate(cmd.Context(), app.ValidateConfig{
				ConfigPath: opts.configPath,
			})
		},
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
