package lifecycle

import (
	"context"
	"time"

	"github.com/sandboxforge/orchestrator/internal/enginedriver"
	"github.com/sandboxforge/orchestrator/internal/metrics"
	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// ExecInSandbox runs command inside sandboxID's container (§4.4 contract
// #4). Concurrent execs against the same sandbox are serialized by the
// per-sandbox lock so cwd updates stay linearizable (§5).
func (m *Manager) ExecInSandbox(ctx context.Context, sandboxID, requestingUser, command string, cwdOverride *string, timeout time.Duration) (*enginedriver.ExecResult, error) {
	if !sandbox.ValidCommand(command) {
		return nil, sandbox.New(sandbox.KindValidation, "command must be 1-10000 bytes")
	}

	lock := m.lockFor(sandboxID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return nil, err
	}
	if err := authorize(record, requestingUser); err != nil {
		return nil, err
	}
	if record.Status != sandbox.StatusReady && record.Status != sandbox.StatusRunning {
		return nil, sandbox.New(sandbox.KindInvalidState, "sandbox is not ready or running")
	}

	cwd := record.CWD
	if cwdOverride != nil && *cwdOverride != "" {
		cwd = *cwdOverride
	}

	if timeout <= 0 {
		timeout = m.cfg.ExecDefaultTimeout
	}
	deadline := time.Now().Add(timeout)

	timer := metrics.NewTimer()
	result, err := m.driver.Exec(ctx, record.ContainerID, command, cwd, deadline)
	timer.ObserveDuration(metrics.ExecDuration)
	if err != nil {
		if sandbox.KindOf(err) == sandbox.KindNotFound {
			return nil, m.reconcileVanished(ctx, record)
		}
		return nil, err
	}

	now := time.Now().UTC()
	nowPtr := &now
	patch := sandbox.Patch{LastHeartbeatAt: &nowPtr}
	if record.Status == sandbox.StatusReady {
		running := sandbox.StatusRunning
		patch.Status = &running
	}
	if result.ExitCode == 0 && result.NewCWD != "" {
		patch.CWD = &result.NewCWD
	}

	if _, err := m.store.Update(ctx, sandboxID, patch); err != nil {
		return nil, err
	}
	return result, nil
}

// reconcileVanished handles the §7 propagation policy for an exec that finds
// its container already gone: the record is moved to stopped/error on the
// spot (the periodic reconciliation pass would eventually find the same
// drift, but the caller shouldn't have to wait for it) and the caller sees
// InvalidState rather than the driver's raw NotFound. The sandbox's lock is
// already held by ExecInSandbox, so this updates directly rather than
// through recoverDrift, which acquires it itself.
func (m *Manager) reconcileVanished(ctx context.Context, record *sandbox.Record) error {
	if err := m.markVanishedLocked(ctx, record.SandboxID); err != nil {
		m.log.Error().Str("sandbox_id", record.SandboxID).Err(err).Msg("failed to record vanished container")
	} else {
		metrics.ReconciliationDriftTotal.Inc()
		m.log.Warn().Str("sandbox_id", record.SandboxID).Msg("exec found container gone, marked stopped")
	}
	return sandbox.New(sandbox.KindInvalidState, "sandbox container is gone")
}
