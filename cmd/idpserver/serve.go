package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/idpserver/idp/internal/config"
	"github.com/idpserver/idp/pkg/op"
	"github.com/idpserver/idp/pkg/storage/memory"
	"github.com/idpserver/idp/pkg/storage/redis"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML configuration file. Environment variables IDP_* override it.")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	configuration := memory.NewStorage()
	defer configuration.Close()
	servers, clients := cfg.Seed()
	for _, server := range servers {
		configuration.AddServer(server)
	}
	for _, client := range clients {
		configuration.AddClient(client)
	}

	var storage op.Storage = configuration
	if cfg.Storage == config.StorageRedis {
		redisStorage, err := redis.NewStorage(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisStorage.Close()
		storage = redisStorage
	}

	mtls, err := cfg.MTLSConfig()
	if err != nil {
		return err
	}
	opts := []op.Option{
		op.WithLogger(logger),
		op.WithMTLSConfig(mtls),
		op.WithRequestObjectFetcher(op.NewHTTPRequestObjectFetcher(cfg.RequestURI.Timeout, cfg.RequestURI.MaxAttempts, cfg.RequestURI.AllowHTTP)),
		op.WithMetricsHandler(promhttp.Handler()),
	}
	if cfg.DisableReplayProtection {
		opts = append(opts, op.WithoutReplayProtection())
	}
	if cfg.DisablePollLimit {
		opts = append(opts, op.WithoutPollLimit())
	}
	provider, err := op.NewProvider(configuration, storage, &opaqueTokenIssuer{}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: provider.HttpHandler(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr, "storage", cfg.Storage, "tenants", len(servers))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
