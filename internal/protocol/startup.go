package protocol

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// Startup runs the blocking in-container startup sequence (§4.6): hot-sync
// down, cold mount, agent-user environment preparation, and the readiness
// marker. It does not block waiting for a termination signal — that is
// cmd/sandbox-agent's job, so tests can call Startup and Shutdown directly
// without a process to kill.
func Startup(ctx context.Context, e *Env, log zerolog.Logger) error {
	log.Info().Str("sandbox_id", e.SandboxID).Msg("startup: hot-sync down")
	if err := hotSyncDown(ctx, e.Bucket, e.HotPrefix(), e.HotPath); err != nil {
		return sandbox.Wrap(sandbox.KindInternal, "hot-sync down", err)
	}

	log.Info().Str("sandbox_id", e.SandboxID).Msg("startup: cold mount")
	if err := coldMount(e.Bucket, e.ColdPrefix(), e.ColdPath); err != nil {
		// Per §4.6 step 3, a platform that cannot project cold storage may
		// proceed without it; log and continue rather than fail startup.
		log.Warn().Err(err).Msg("startup: cold mount unavailable, proceeding without it")
	}

	if err := prepareAgentEnv(e); err != nil {
		return sandbox.Wrap(sandbox.KindInternal, "prepare agent environment", err)
	}

	log.Info().Str("sandbox_id", e.SandboxID).Msg("startup: writing readiness marker")
	if err := os.WriteFile(e.ReadinessMarkerPath(), []byte(e.SandboxID), 0o644); err != nil {
		return sandbox.Wrap(sandbox.KindInternal, "write readiness marker", err)
	}

	return nil
}

// prepareAgentEnv writes the agent user's environment files (§4.6 startup
// step 4): a profile snippet exporting the sandbox identity so interactive
// shells opened via exec see the same values the orchestrator already
// knows.
func prepareAgentEnv(e *Env) error {
	if err := os.MkdirAll(e.HotPath, 0o755); err != nil {
		return err
	}
	profile := filepath.Join(e.HotPath, ".sandbox_profile")
	contents := "export SANDBOX_ID=" + e.SandboxID + "\nexport USER_ID=" + e.UserID + "\n"
	return os.WriteFile(profile, []byte(contents), 0o644)
}
