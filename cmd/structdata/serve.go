package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ryanbastic/go-structdata/internal/api"
	"github.com/ryanbastic/go-structdata/internal/circuitbreaker"
	"github.com/ryanbastic/go-structdata/internal/config"
	"github.com/ryanbastic/go-structdata/internal/datamgmt"
	"github.com/ryanbastic/go-structdata/internal/metrics"
	"github.com/ryanbastic/go-structdata/internal/storage"
	"github.com/ryanbastic/go-structdata/internal/trigger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)

	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to database", "max_conns", cfg.DBMaxConns)

	if err := storage.RunMigrations(ctx, pool); err != nil {
		return err
	}
	logger.Info("migrations complete")

	prometheus.MustRegister(metrics.NewPoolCollector(pool))

	// Change notifications
	registry := trigger.NewPluginRegistry(trigger.NewPostgresPluginStore(pool, cfg.QueryTimeout))
	if err := registry.LoadAll(ctx); err != nil {
		return err
	}
	logger.Info("plugins loaded", "count", len(registry.List()))

	breakers := circuitbreaker.NewSet(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout,
		circuitbreaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
			metrics.BreakerStateChanged(name, from, to)
			logger.Warn("plugin circuit changed state", "endpoint", name, "from", from.String(), "to", to.String())
		}))
	client := trigger.NewRPCClient(cfg.TriggerRetryMax, cfg.TriggerRetryBackoff, cfg.TriggerRPCTimeout)
	notifier := trigger.NewNotifier(registry, client, breakers, metrics.Changes{}, logger)

	svc := datamgmt.NewService(
		storage.NewPostgresStore(pool, cfg.QueryTimeout),
		logger,
		datamgmt.WithListener(metrics.Changes{}),
		datamgmt.WithListener(notifier),
		datamgmt.WithHistoryLimit(cfg.HistoryDefaultLimit),
	)

	handler := api.NewServer(logger, svc, registry, map[string]api.Pinger{"postgres": pool},
		api.Options{RowsDefaultLimit: cfg.RowsDefaultLimit})
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if err := notifier.Wait(shutdownCtx); err != nil {
		logger.Warn("pending plugin notifications dropped", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
