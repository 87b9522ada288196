package protocol

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// Shutdown runs the in-container shutdown sequence (§4.6), triggered by a
// termination signal: remove the readiness marker, hot-sync up, and
// best-effort cold unmount. The hot sync is best-effort by design (§4.6:
// "data loss of writes made strictly during a hard crash is acceptable"),
// so a failure here is logged and returned, but nothing downstream retries
// beyond the configured attempts.
func Shutdown(ctx context.Context, e *Env, log zerolog.Logger) error {
	log.Info().Str("sandbox_id", e.SandboxID).Msg("shutdown: removing readiness marker")
	if err := os.Remove(e.ReadinessMarkerPath()); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("shutdown: failed to remove readiness marker")
	}

	log.Info().Str("sandbox_id", e.SandboxID).Msg("shutdown: hot-sync up")
	if err := hotSyncUp(ctx, e.Bucket, e.HotPrefix(), e.HotPath); err != nil {
		log.Error().Err(err).Msg("shutdown: hot-sync up failed")
		return sandbox.Wrap(sandbox.KindInternal, "hot-sync up", err)
	}

	log.Info().Str("sandbox_id", e.SandboxID).Msg("shutdown: cold unmount")
	if err := coldUnmount(e.ColdPath); err != nil {
		log.Warn().Err(err).Msg("shutdown: cold unmount failed")
	}

	return nil
}
