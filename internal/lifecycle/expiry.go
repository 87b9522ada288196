package lifecycle

import (
	"context"
	"time"

	"github.com/sandboxforge/orchestrator/internal/metrics"
	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// RunExpiryLoop runs ExpireDue every interval until ctx is cancelled.
func (m *Manager) RunExpiryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.ExpireDue(ctx); err != nil {
				m.log.Error().Err(err).Msg("expiry pass failed")
			}
		}
	}
}

// ExpireDue destroys every sandbox whose lease has elapsed (§4.4 Background
// loops). Each destroy goes through DestroySandbox, which serializes
// against concurrent user-initiated destroys via the per-sandbox lock —
// whichever caller wins the race transitions the record; the loser observes
// the new status and returns success.
func (m *Manager) ExpireDue(ctx context.Context) error {
	metrics.ExpirySweepTotal.Inc()

	expired, err := m.store.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, record := range expired {
		if _, err := m.DestroySandbox(ctx, record.SandboxID, "", true, sandbox.StopReasonExpired); err != nil {
			m.log.Error().Str("sandbox_id", record.SandboxID).Err(err).Msg("failed to destroy expired sandbox")
			continue
		}
		metrics.SandboxesExpiredTotal.Inc()
	}
	return nil
}
