// Command sandbox-agent is the process a sandbox image's entrypoint runs
// (spec.md §4.6): it validates the sandbox environment, runs the startup
// sequence, blocks until a termination signal arrives, then runs the
// shutdown sequence before exiting. Grounded on the teacher's
// cmd/boxed-server/main.go signal-handling shape, minus the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sandboxforge/orchestrator/internal/protocol"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if os.Getenv("LOG_FORMAT") != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	env, err := protocol.LoadEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sandbox environment, aborting startup")
	}
	logger := log.Logger.With().Str("sandbox_id", env.SandboxID).Logger()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := protocol.Startup(startupCtx, env, logger); err != nil {
		startupCancel()
		logger.Fatal().Err(err).Msg("startup sequence failed")
	}
	startupCancel()
	logger.Info().Msg("sandbox ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("termination signal received, running shutdown sequence")

	shutdownTimeout := time.Duration(env.ShutdownTimeoutSecs) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := protocol.Shutdown(shutdownCtx, env, logger); err != nil {
		logger.Error().Err(err).Msg("shutdown sequence failed")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}
