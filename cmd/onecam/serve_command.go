package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"onecam/internal/adapter/repo"
	"onecam/internal/domain"
	"onecam/internal/generation"
	"onecam/internal/http/handlers"
	httpapi "onecam/internal/http/httpapi"
	"onecam/internal/infra"
	"onecam/internal/infra/geoip"
	"onecam/internal/push"
	"onecam/internal/watcher"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the engine folders and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, cc *commandContext) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	logger := cc.logger(cfg)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job ledger (optional)
	var ledger domain.JobLedger = repo.NopLedger{}
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	if dbpool != nil {
		defer dbpool.Close()
		pg := repo.NewJobLedger(infra.NewSQLRunner(dbpool, logger))
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		ledger = pg
		logger.Info().Msg("job ledger enabled")
	}

	var country geoip.CountryResolver
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		return err
	}
	if resolver != nil {
		defer resolver.Close()
		country = resolver
	}

	hub := push.NewHub(push.Options{
		AllowedOrigins: cfg.WSAllowedOrigins,
		Logger:         infra.ComponentLogger(logger, "push"),
	})
	defer hub.Close()

	roots := cfg.WatchedRoots()
	replicator, err := watcher.NewReplicator(roots, hub, cfg.WatchSettle, infra.ComponentLogger(logger, "replicator"))
	if err != nil {
		return err
	}
	folderWatcher := watcher.New(watcher.Options{
		Roots:     roots,
		Handler:   replicator,
		QueueSize: cfg.WatchQueueSize,
		Workers:   cfg.WatchWorkers,
		Logger:    infra.ComponentLogger(logger, "watcher"),
	})

	client, poller, tmpl, err := engineParts(cfg, logger)
	if err != nil {
		return err
	}
	svc, err := generation.NewService(generation.Config{
		Template:  tmpl,
		Submitter: client,
		Awaiter:   poller,
		Ledger:    ledger,
		OutputDir: cfg.OutputDir,
		Logger:    infra.ComponentLogger(logger, "generation"),
	})
	if err != nil {
		return err
	}

	app := &handlers.App{
		Generator: svc,
		Ledger:    ledger,
		Push:      hub,
		Watcher:   folderWatcher,
		Logger:    infra.ComponentLogger(logger, "http"),
	}
	router := httpapi.NewRouter(cfg, httpapi.Deps{App: app, WS: hub.ServeWS, SocketIO: hub.ServeSocketIO, Geo: country, Logger: logger})
	server := infra.NewHTTPServer(cfg, router)

	if err := folderWatcher.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("engine", client.BaseURL()).Msgf("API listening on %s", server.Addr())
		serveErr <- server.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			logger.Error().Err(runErr).Msg("http server failed")
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("failed to shutdown server")
		errs = append(errs, shutdownErr)
	}
	hub.Close()
	if stopErr := folderWatcher.Stop(shutdownCtx); stopErr != nil {
		logger.Error().Err(stopErr).Msg("failed to stop watcher")
		errs = append(errs, stopErr)
	}
	logger.Info().Msg("server stopped")
	return errors.Join(append(errs, runErr)...)
}
