package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lattiq/sestemplates"
	"github.com/lattiq/sestemplates/internal/httpapi"
)

func main() {
	root := &cobra.Command{
		Use:           "sestemplates",
		Short:         "Manage and send Amazon SES email templates over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		staticDir  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []sestemplates.Option
			if addr != "" {
				opts = append(opts, sestemplates.WithListenAddr(addr))
			}
			if staticDir != "" {
				opts = append(opts, sestemplates.WithStaticDir(staticDir))
			}

			cfg, err := sestemplates.LoadConfig(configPath, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("SESTEMPLATES_CONFIG"), "YAML config file (env SESTEMPLATES_CONFIG)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides PORT and HTTP_ADDR")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "directory with the built web UI")

	return cmd
}

func serve(ctx context.Context, cfg sestemplates.Config) error {
	logger, err := sestemplates.NewLogger(cfg.Monitoring.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	var metrics *sestemplates.Metrics
	if cfg.Monitoring.Metrics.Enabled {
		metrics, err = sestemplates.NewMetrics(cfg.Monitoring.Metrics.Namespace)
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
	}

	client, err := sestemplates.New(ctx, cfg,
		sestemplates.WithLogger(logger),
		sestemplates.WithMetricsCollector(metrics),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	var limiter *sestemplates.RateLimiter
	if cfg.RateLimit.Enabled {
		store, err := sestemplates.NewWindowStore(cfg.RateLimit)
		if err != nil {
			return fmt.Errorf("create rate limit store: %w", err)
		}
		limiter = sestemplates.NewRateLimiter(cfg.RateLimit, store, metrics)
		defer limiter.Close()
	}

	srv := httpapi.New(httpapi.Options{
		Config:  cfg,
		Manager: client,
		Limiter: limiter,
		Metrics: metrics,
		Logger:  logger,
	})

	info := sestemplates.GetVersionInfo()
	if info.DevBuild {
		logger.Warn("running a development build", zap.String("commit", info.GitCommit))
	}
	logger.Info("starting sestemplates",
		zap.String("version", info.Version),
		zap.String("default_region", cfg.Provider.DefaultRegion),
		zap.String("rate_limit_store", cfg.RateLimit.Store),
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			sestemplates.PrintVersion(cmd.OutOrStdout())
		},
	}
}
