package lifecycle

import (
	"context"
	"time"

	"github.com/sandboxforge/orchestrator/internal/enginedriver"
	"github.com/sandboxforge/orchestrator/internal/metrics"
	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// RunReconciliationLoop runs Reconcile every interval until ctx is
// cancelled. Intended to be started as a background goroutine at process
// startup.
func (m *Manager) RunReconciliationLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Reconcile(ctx); err != nil {
				m.log.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}

// Reconcile performs a single reconciliation pass: records with a
// container_id but no matching live container are marked stopped (drift
// recovery); live containers with no owning record are logged, not
// destroyed (§4.4 safer default).
func (m *Manager) Reconcile(ctx context.Context) error {
	metrics.ReconciliationRunsTotal.Inc()

	all, err := m.store.List(ctx, "")
	if err != nil {
		return err
	}
	var records []*sandbox.Record
	for _, r := range all {
		if r.Status.Live() {
			records = append(records, r)
		}
	}
	metrics.LiveSandboxesGauge.Set(float64(len(records)))

	live, err := m.driver.ListByLabel(ctx, enginedriver.ManagedLabel, "true")
	if err != nil {
		return err
	}
	liveSet := make(map[string]bool, len(live))
	for _, id := range live {
		liveSet[id] = true
	}

	recordedContainers := make(map[string]bool, len(records))
	for _, record := range records {
		if record.ContainerID == "" {
			continue
		}
		recordedContainers[record.ContainerID] = true

		if !liveSet[record.ContainerID] {
			m.recoverDrift(ctx, record)
		}
	}

	for _, containerID := range live {
		if !recordedContainers[containerID] {
			metrics.ReconciliationOrphansTotal.Inc()
			m.log.Warn().Str("container_id", containerID).Msg("live container has no owning sandbox record")
		}
	}
	return nil
}

func (m *Manager) recoverDrift(ctx context.Context, record *sandbox.Record) {
	lock := m.lockFor(record.SandboxID)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.store.Get(ctx, record.SandboxID)
	if err != nil || current.Status.Terminal() {
		return
	}

	if err := m.markVanishedLocked(ctx, record.SandboxID); err != nil {
		m.log.Error().Str("sandbox_id", record.SandboxID).Err(err).Msg("failed to record drift recovery")
		return
	}
	metrics.ReconciliationDriftTotal.Inc()
	m.log.Warn().Str("sandbox_id", record.SandboxID).Msg("reconciliation: container missing, marked stopped")
}

// markVanishedLocked records that sandboxID's container is gone from the
// engine: the record moves to stopped/error and its per-sandbox lock is
// pruned. Callers must already hold sandboxID's lock.
func (m *Manager) markVanishedLocked(ctx context.Context, sandboxID string) error {
	stopped := sandbox.StatusStopped
	reason := sandbox.StopReasonError
	now := time.Now().UTC()
	nowPtr := &now
	if _, err := m.store.Update(ctx, sandboxID, sandbox.Patch{
		Status:     &stopped,
		StopReason: &reason,
		StoppedAt:  &nowPtr,
	}); err != nil {
		return err
	}
	m.pruneLock(sandboxID)
	return nil
}
