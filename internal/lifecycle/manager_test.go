package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxforge/orchestrator/internal/enginedriver"
	"github.com/sandboxforge/orchestrator/internal/objectstore"
	"github.com/sandboxforge/orchestrator/internal/registry"
	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

func newTestManager(t *testing.T) (*Manager, *fakeDriver, registry.Store) {
	t.Helper()
	store := registry.NewMemory()
	driver := newFakeDriver()
	objStore := objectstore.New("test-bucket", objectstore.LocalDiskChecker{Root: t.TempDir()})

	cfg := Config{
		DefaultTTL:         time.Hour,
		ExecDefaultTimeout: 5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		ReadinessDeadline:  2 * time.Second,
	}
	return New(store, driver, objStore, cfg, zerolog.Nop()), driver, store
}

func TestCreateSandboxHappyPath(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "sandboxforge/base:latest"})
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusReady, record.Status)
	assert.NotEmpty(t, record.ContainerID)
	require.NotNil(t, record.ExpiresAt)
}

func TestCreateSandboxInvalidUserID(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.CreateSandbox(context.Background(), "bad user id!", CreateOptions{Image: "x"})
	require.Error(t, err)
	assert.Equal(t, sandbox.KindValidation, sandbox.KindOf(err))
}

func TestCreateSandboxStartFailureMarksFailed(t *testing.T) {
	m, driver, store := newTestManager(t)
	driver.startErr = assertError("boom")

	_, err := m.CreateSandbox(context.Background(), "user-1", CreateOptions{Image: "x"})
	require.Error(t, err)

	all, listErr := store.List(context.Background(), "user-1")
	require.NoError(t, listErr)
	require.Len(t, all, 1)
	assert.Equal(t, sandbox.StatusFailed, all[0].Status)
	assert.Equal(t, sandbox.StopReasonError, all[0].StopReason)
}

func TestGetSandboxEnforcesOwnership(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)

	// A non-owner gets NotFound, not Forbidden, so the endpoint can't be
	// used as an existence oracle for other users' sandboxes (§8 scenario 4).
	_, err = m.GetSandbox(ctx, record.SandboxID, "user-2")
	require.Error(t, err)
	assert.Equal(t, sandbox.KindNotFound, sandbox.KindOf(err))

	got, err := m.GetSandbox(ctx, record.SandboxID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, record.SandboxID, got.SandboxID)
}

func TestExecInSandboxRequiresReadyOrRunning(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)

	creating := sandbox.StatusCreating
	_, err = store.Update(ctx, record.SandboxID, sandbox.Patch{Status: &creating})
	require.NoError(t, err)

	_, err = m.ExecInSandbox(ctx, record.SandboxID, "user-1", "echo hi", nil, 0)
	require.Error(t, err)
	assert.Equal(t, sandbox.KindInvalidState, sandbox.KindOf(err))
}

func TestExecInSandboxReconcilesVanishedContainer(t *testing.T) {
	m, driver, store := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)

	driver.execErr = sandbox.New(sandbox.KindNotFound, "container not found")
	_, err = m.ExecInSandbox(ctx, record.SandboxID, "user-1", "echo hi", nil, 0)
	require.Error(t, err)
	assert.Equal(t, sandbox.KindInvalidState, sandbox.KindOf(err))

	updated, err := store.Get(ctx, record.SandboxID)
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusStopped, updated.Status)
	assert.Equal(t, sandbox.StopReasonError, updated.StopReason)
}

func TestExecInSandboxUpdatesCWDOnSuccessOnly(t *testing.T) {
	m, driver, store := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)

	driver.execResult = &enginedriver.ExecResult{ExitCode: 1, Stderr: "boom", NewCWD: "/should/not/be/applied"}
	_, err = m.ExecInSandbox(ctx, record.SandboxID, "user-1", "false", nil, 0)
	require.NoError(t, err)

	got, err := store.Get(ctx, record.SandboxID)
	require.NoError(t, err)
	assert.Equal(t, record.CWD, got.CWD)

	driver.execResult = nil
	override := "/tmp/newdir"
	_, err = m.ExecInSandbox(ctx, record.SandboxID, "user-1", "cd /tmp/newdir", &override, 0)
	require.NoError(t, err)

	got, err = store.Get(ctx, record.SandboxID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/newdir", got.CWD)
	assert.Equal(t, sandbox.StatusRunning, got.Status)
}

func TestDestroySandboxIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)

	first, err := m.DestroySandbox(ctx, record.SandboxID, "user-1", false, sandbox.StopReasonUserRequested)
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusStopped, first.Status)

	second, err := m.DestroySandbox(ctx, record.SandboxID, "user-1", false, sandbox.StopReasonUserRequested)
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusStopped, second.Status)
}

func TestExpireDueDestroysExpiredSandboxes(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Minute)
	pastPtr := &past
	_, err = store.Update(ctx, record.SandboxID, sandbox.Patch{ExpiresAt: &pastPtr})
	require.NoError(t, err)

	require.NoError(t, m.ExpireDue(ctx))

	got, err := store.Get(ctx, record.SandboxID)
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusStopped, got.Status)
	assert.Equal(t, sandbox.StopReasonExpired, got.StopReason)
}

func TestReconcileRecoversDrift(t *testing.T) {
	m, driver, store := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)

	// Simulate the container vanishing out from under the orchestrator.
	require.NoError(t, driver.Remove(ctx, record.ContainerID))

	require.NoError(t, m.Reconcile(ctx))

	got, err := store.Get(ctx, record.SandboxID)
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusStopped, got.Status)
	assert.Equal(t, sandbox.StopReasonError, got.StopReason)
}

func TestHeartbeatUpdatesTimestamp(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)
	require.Nil(t, record.LastHeartbeatAt)

	require.NoError(t, m.Heartbeat(ctx, record.SandboxID, "user-1"))

	got, err := store.Get(ctx, record.SandboxID)
	require.NoError(t, err)
	require.NotNil(t, got.LastHeartbeatAt)
}

func TestMarkCompleteAndMarkErrorDoNotTransitionStatus(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateSandbox(ctx, "user-1", CreateOptions{Image: "x"})
	require.NoError(t, err)

	require.NoError(t, m.MarkComplete(ctx, record.SandboxID, "user-1", "done"))
	got, err := store.Get(ctx, record.SandboxID)
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusReady, got.Status)
	assert.Equal(t, "done", got.Config[completionMetadataKey])

	require.NoError(t, m.MarkError(ctx, record.SandboxID, "user-1", "oops"))
	got, err = store.Get(ctx, record.SandboxID)
	require.NoError(t, err)
	assert.Equal(t, sandbox.StatusReady, got.Status)
	assert.Equal(t, "oops", got.Config[errorMetadataKey])
}

type assertError string

func (e assertError) Error() string { return string(e) }
