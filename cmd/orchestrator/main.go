// Command orchestrator is the entry point for the sandbox control plane's
// HTTP API surface (spec.md §4.5), grounded on the teacher's
// cmd/boxed-server/main.go: same zerolog bootstrap, signal handling, and
// echo.Start/Shutdown shape, generalized to wire the Lifecycle Manager, its
// background loops, and a configurable registry backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sandboxforge/orchestrator/internal/api"
	"github.com/sandboxforge/orchestrator/internal/config"
	"github.com/sandboxforge/orchestrator/internal/enginedriver/docker"
	"github.com/sandboxforge/orchestrator/internal/lifecycle"
	"github.com/sandboxforge/orchestrator/internal/objectstore"
	"github.com/sandboxforge/orchestrator/internal/registry"
	"github.com/sandboxforge/orchestrator/internal/registry/postgres"
)

// Version information, set via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.LogFormat == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	if level, lerr := zerolog.ParseLevel(cfg.LogLevel); lerr == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Str("version", Version).Str("commit", GitCommit).Msg("sandbox orchestrator starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open registry store")
	}
	defer store.Close()

	driver, err := docker.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize container driver")
	}
	defer driver.Close()

	healthCtx, healthCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := driver.Healthy(healthCtx); err != nil {
		log.Fatal().Err(err).Msg("container engine health check failed")
	}
	healthCancel()

	objStore := objectstore.New(cfg.ObjectStoreBucket, objectstore.LocalDiskChecker{Root: cfg.ObjectStoreBucket})
	reachCtx, reachCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objStore.CheckReachable(reachCtx); err != nil {
		log.Fatal().Err(err).Msg("object-store bucket not reachable at startup")
	}
	reachCancel()

	manager := lifecycle.New(store, driver, objStore, lifecycle.Config{
		DefaultTTL:         cfg.DefaultTTL(),
		ExecDefaultTimeout: cfg.ExecDefaultTimeout(),
		ShutdownTimeout:    cfg.ShutdownTimeout(),
		ReadinessDeadline:  cfg.ReadinessDeadline(),
	}, log.Logger)

	go manager.RunReconciliationLoop(ctx, cfg.ReconcileInterval())
	go manager.RunExpiryLoop(ctx, cfg.ExpiryInterval())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	h := api.NewHandler(manager, log.Logger)
	h.RegisterRoutes(e, cfg.APIKey, cfg.APIKeyHeaderName)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr()).Msg("http server listening")
		serverErr <- e.Start(cfg.ListenAddr())
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shut down")
		}
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("server startup failed")
		}
	}
}

// openStore selects the registry backend named by cfg.SandboxStoreBackend
// (§6.4: sandbox_store_backend ∈ {memory, postgres}).
func openStore(ctx context.Context, cfg *config.Config) (registry.Store, error) {
	switch cfg.SandboxStoreBackend {
	case "postgres":
		return postgres.Open(ctx, cfg.DatabaseURL)
	default:
		return registry.NewMemory(), nil
	}
}
