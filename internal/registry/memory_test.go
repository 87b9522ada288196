package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

func newRecord(id, userID string) *sandbox.Record {
	now := time.Now().UTC()
	return &sandbox.Record{
		SandboxID: id,
		UserID:    userID,
		Status:    sandbox.StatusCreating,
		HotPath:   sandbox.DefaultHotPath,
		ColdPath:  sandbox.DefaultColdPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemorySaveAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec := newRecord("sb-1", "user-a")
	require.NoError(t, m.Save(ctx, rec))

	got, err := m.Get(ctx, "sb-1")
	require.NoError(t, err)
	assert.Equal(t, "sb-1", got.SandboxID)
	assert.Equal(t, "user-a", got.UserID)
}

func TestMemorySaveDuplicateConflicts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, newRecord("sb-1", "user-a")))
	err := m.Save(ctx, newRecord("sb-1", "user-a"))
	require.Error(t, err)
	assert.Equal(t, sandbox.KindConflict, sandbox.KindOf(err))
}

func TestMemoryGetNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, sandbox.KindNotFound, sandbox.KindOf(err))
}

func TestMemoryListFiltersByUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, newRecord("sb-1", "user-a")))
	require.NoError(t, m.Save(ctx, newRecord("sb-2", "user-b")))
	require.NoError(t, m.Save(ctx, newRecord("sb-3", "user-a")))

	userA, err := m.List(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, userA, 2)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryUpdateAppliesPatchAndBumpsUpdatedAt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec := newRecord("sb-1", "user-a")
	require.NoError(t, m.Save(ctx, rec))

	status := sandbox.StatusReady
	cid := "container-123"
	updated, err := m.Update(ctx, "sb-1", sandbox.Patch{Status: &status, ContainerID: &cid})
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusReady, updated.Status)
	assert.Equal(t, "container-123", updated.ContainerID)
	assert.True(t, updated.UpdatedAt.After(rec.CreatedAt) || updated.UpdatedAt.Equal(rec.CreatedAt))
}

func TestMemoryUpdateNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Update(context.Background(), "missing", sandbox.Patch{})
	require.Error(t, err)
	assert.Equal(t, sandbox.KindNotFound, sandbox.KindOf(err))
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, newRecord("sb-1", "user-a")))
	require.NoError(t, m.Delete(ctx, "sb-1"))

	_, err := m.Get(ctx, "sb-1")
	require.Error(t, err)

	err = m.Delete(ctx, "sb-1")
	require.Error(t, err)
	assert.Equal(t, sandbox.KindNotFound, sandbox.KindOf(err))
}

func TestMemoryListExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expiredRec := newRecord("sb-expired", "user-a")
	expiredRec.Status = sandbox.StatusRunning
	expiredRec.ExpiresAt = &past
	require.NoError(t, m.Save(ctx, expiredRec))

	liveRec := newRecord("sb-live", "user-a")
	liveRec.Status = sandbox.StatusReady
	liveRec.ExpiresAt = &future
	require.NoError(t, m.Save(ctx, liveRec))

	stoppedRec := newRecord("sb-stopped", "user-a")
	stoppedRec.Status = sandbox.StatusStopped
	stoppedRec.ExpiresAt = &past
	require.NoError(t, m.Save(ctx, stoppedRec))

	expired, err := m.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "sb-expired", expired[0].SandboxID)
}

func TestMemoryCloneIsolatesConfig(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec := newRecord("sb-1", "user-a")
	rec.Config = map[string]string{"k": "v"}
	require.NoError(t, m.Save(ctx, rec))

	got, err := m.Get(ctx, "sb-1")
	require.NoError(t, err)
	got.Config["k"] = "mutated"

	again, err := m.Get(ctx, "sb-1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Config["k"])
}
