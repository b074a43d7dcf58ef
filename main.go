package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/api"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/baseline"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/config"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/journal"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/logging"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/middleware"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/review"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/tracker"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/watch"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/workspace"
)

func main() {
	configPath := flag.String("config", "pcr.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize workspace
	ws, err := workspace.New(cfg.Root)
	if err != nil {
		logger.Fatal("failed to open workspace", zap.Error(err))
	}

	// Initialize operation journal
	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(ws.Abs(cfg.Journal.Path), logger.Logger)
		if err != nil {
			logger.Fatal("failed to open journal", zap.Error(err))
		}
		defer jnl.Close()
	}

	// Initialize baseline store
	store, err := baseline.NewStore(ws, logger.Logger, baseline.Options{
		CompressMinBytes: cfg.Baselines.CompressMinBytes,
	})
	if err != nil {
		logger.Fatal("failed to initialize baseline store", zap.Error(err))
	}

	buffers := workspace.NewBuffers()
	bus := workspace.NewBus()

	// Initialize filesystem watcher
	watcher, err := watch.New(ws.Root(), cfg.Watch.Globs, cfg.Watch.Exclude, logger.Logger)
	if err != nil {
		logger.Fatal("failed to start watcher", zap.Error(err))
	}
	defer watcher.Close()

	// Initialize change tracker
	trk, err := tracker.New(tracker.Deps{
		Store:   store,
		FS:      ws,
		Buffers: buffers,
		Bus:     bus,
		Files:   watcher,
		Logger:  logger.Logger,
	}, tracker.Options{
		CacheMaxEntries: cfg.Cache.MaxEntries,
		Exclusions:      cfg.Watch.Exclude,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracker", zap.Error(err))
	}

	svc := review.NewService(review.Deps{
		Store:   store,
		Tracker: trk,
		Journal: jnl,
		WS:      ws,
		Buffers: buffers,
		Muter:   watcher,
		Logger:  logger.Logger,
	})

	trk.Start()
	defer trk.Stop()

	// Re-apply watch patterns when the config file changes on disk.
	stopConfigWatch, err := config.Watch(*configPath, logger.Logger, func(next *config.Config) {
		if err := watcher.Rewatch(next.Watch.Globs, next.Watch.Exclude); err != nil {
			logger.Warn("applying new watch patterns failed", zap.Error(err))
			return
		}
		trk.SetExclusions(next.Watch.Exclude)
	})
	if err != nil {
		logger.Warn("config reload disabled", zap.Error(err))
	} else {
		defer stopConfigWatch()
	}

	// Set up router
	mux := http.NewServeMux()
	api.NewHandlers(svc, ws, buffers, bus, logger).Register(mux)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: handler,
	}

	go func() {
		logger.Info("starting server",
			zap.String("address", srv.Addr),
			zap.String("root", ws.Root()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown incomplete", zap.Error(err))
	}
}
