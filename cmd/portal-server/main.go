// cmd/portal-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"citizen-portal/internal/artifacts"
	"citizen-portal/internal/common/config"
	"citizen-portal/internal/common/database"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/common/observability"
	"citizen-portal/internal/convert"
	"citizen-portal/internal/notifier"
	"citizen-portal/internal/presence"
	"citizen-portal/internal/render"
	"citizen-portal/internal/socket"
	"citizen-portal/internal/store"
	"citizen-portal/internal/transport/httpapi"
	"citizen-portal/internal/workflow"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting portal server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readyChecks := map[string]httpapi.Pinger{}

	// --- Persistence ---
	var st store.Store
	switch cfg.Database.Driver {
	case "memory":
		st = store.NewMemoryStore()
		zapLog.Warn("Using in-memory store; records are lost on restart")
	default:
		var pg *database.Postgres
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.OpenPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		pgStore := store.NewPostgresStore(pg.DB)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		st = pgStore
		readyChecks["postgres"] = pg
		zapLog.Info("PostgreSQL connected successfully", zap.String("target", pg.Target()))
	}

	// --- Artifact stamps ---
	var stamps artifacts.StampStore = artifacts.NewMemoryStampStore()
	if cfg.Artifacts.StampStore == "redis" {
		var rc *database.Redis
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.OpenRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()

		stamps = artifacts.NewRedisStampStore(rc.Client, "")
		readyChecks["redis"] = rc
		zapLog.Info("Redis connected successfully")
	}

	// --- Artifact pipeline ---
	renderer := render.New(cfg.Artifacts.PortalTitle, log)
	chain := convert.NewDefaultChain(convert.Options{
		PdftoppmPath:    cfg.Artifacts.PdftoppmPath,
		GhostscriptPath: cfg.Artifacts.GhostscriptPath,
		DPI:             cfg.Artifacts.DPI,
		Quality:         cfg.Artifacts.JPEGQuality,
		Timeout:         config.GetDuration(cfg.Artifacts.ConvertTimeout),
	}, log)
	pipeline, err := artifacts.NewPipeline(cfg.Artifacts.Dir, renderer, chain, stamps, obs, log)
	if err != nil {
		zapLog.Fatal("artifact pipeline init failed", zap.Error(err))
	}
	zapLog.Info("Artifact pipeline ready",
		zap.String("dir", cfg.Artifacts.Dir),
		zap.Strings("strategies", chain.Strategies()),
	)

	// --- Presence, notifications, workflows ---
	registry := presence.NewRegistry()
	n := notifier.New(registry, log, config.GetDuration(cfg.Socket.WriteTimeout))
	svc := workflow.NewService(st, n, pipeline, log)
	hub := socket.NewHub(registry, log, socket.Options{
		WriteTimeout:   config.GetDuration(cfg.Socket.WriteTimeout),
		PingInterval:   config.GetDuration(cfg.Socket.PingInterval),
		AllowedOrigins: cfg.Socket.AllowedOrigins,
	})

	srv := &http.Server{
		Addr: cfg.Server.Address,
		Handler: httpapi.NewRouter(httpapi.Options{
			Workflow:       svc,
			Socket:         hub,
			Logger:         log,
			ReadyChecks:    readyChecks,
			RequestTimeout: config.GetDuration(cfg.Server.WriteTimeout),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout:      config.GetDuration(cfg.Server.WriteTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// --- Graceful Shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		zapLog.Info("Shutdown signal received, draining connections...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("Portal server stopped with error", zap.Error(err))
		return
	}
	zapLog.Info("Portal server stopped gracefully")
}
