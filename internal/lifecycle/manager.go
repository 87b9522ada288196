// Package lifecycle implements the Sandbox Lifecycle Manager (spec.md
// §4.4): the single source of truth for sandbox state transitions. Every
// mutation of a Sandbox Record passes through the Manager in this package.
package lifecycle

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sandboxforge/orchestrator/internal/enginedriver"
	"github.com/sandboxforge/orchestrator/internal/metrics"
	"github.com/sandboxforge/orchestrator/internal/objectstore"
	"github.com/sandboxforge/orchestrator/internal/registry"
	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// Config holds the policy knobs the Manager needs beyond its collaborators,
// mirrored from spec.md §6.4.
type Config struct {
	DefaultTTL         time.Duration
	ExecDefaultTimeout time.Duration
	ShutdownTimeout    time.Duration
	ReadinessDeadline  time.Duration
}

// CreateOptions carries the caller-supplied knobs for CreateSandbox. Zero
// values fall back to Manager-wide defaults.
type CreateOptions struct {
	Image      string
	TTLSeconds int64
	MemoryMB   int64
	CPUCores   float64
	NetworkOff bool
	Env        map[string]string
	Config     map[string]string
}

// Manager is the Sandbox Lifecycle Manager. It owns all collaborators as
// explicit dependencies (§9: no global singletons) and is safe for
// concurrent use.
type Manager struct {
	store       registry.Store
	driver      enginedriver.Driver
	objectStore objectstore.Gateway
	cfg         Config
	log         zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs a Manager from its collaborators.
func New(store registry.Store, driver enginedriver.Driver, objStore objectstore.Gateway, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		store:       store,
		driver:      driver,
		objectStore: objStore,
		cfg:    cfg,
		log:    logger.With().Str("component", "lifecycle").Logger(),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-sandbox mutex, creating it on first use. Entries
// are pruned by pruneLock once a record reaches a terminal status, so
// the map does not grow without bound (§9: "safe entry pruning on terminal
// transitions").
func (m *Manager) lockFor(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) pruneLock(id string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.locks, id)
}

// authorize enforces ownership: a non-empty requestingUser must match the
// record's user_id, or be rejected as Forbidden. An empty requestingUser
// denotes an internal/admin caller: the background loops, or an API request
// that carries no X-User-Id header.
func authorize(record *sandbox.Record, requestingUser string) error {
	if requestingUser != "" && requestingUser != record.UserID {
		return sandbox.New(sandbox.KindForbidden, "not the owner of this sandbox")
	}
	return nil
}

// CreateSandbox provisions a new sandbox for userID (§4.4 contract #1).
func (m *Manager) CreateSandbox(ctx context.Context, userID string, opts CreateOptions) (*sandbox.Record, error) {
	timer := metrics.NewTimer()
	if !sandbox.ValidUserID(userID) {
		return nil, sandbox.New(sandbox.KindValidation, "user_id does not match required shape")
	}

	ttl := time.Duration(opts.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	now := time.Now().UTC()
	record := &sandbox.Record{
		SandboxID:  uuid.NewString(),
		UserID:     userID,
		Status:     sandbox.StatusCreating,
		HotPath:    sandbox.DefaultHotPath,
		ColdPath:   sandbox.DefaultColdPath,
		CWD:        "/workspace",
		Config:     opts.Config,
		TTLSeconds: int64(ttl.Seconds()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.store.Save(ctx, record); err != nil {
		return nil, err
	}
	lock := m.lockFor(record.SandboxID)
	lock.Lock()
	defer lock.Unlock()

	containerID, err := m.provision(ctx, record, opts)
	if err != nil {
		m.failRecord(ctx, record, err)
		return nil, err
	}

	record.ContainerID = containerID
	if err := m.updateAndRefresh(ctx, record, sandbox.Patch{ContainerID: &containerID}); err != nil {
		return nil, err
	}

	startingStatus := sandbox.StatusStarting
	if err := m.updateAndRefresh(ctx, record, sandbox.Patch{Status: &startingStatus}); err != nil {
		return nil, err
	}

	if err := m.driver.Start(ctx, containerID); err != nil {
		m.failRecord(ctx, record, err)
		_ = m.driver.Remove(context.Background(), containerID)
		return nil, err
	}

	if err := m.waitReady(ctx, containerID); err != nil {
		m.failRecord(ctx, record, err)
		_ = m.driver.Remove(context.Background(), containerID)
		return nil, err
	}

	readyStatus := sandbox.StatusReady
	expiresAt := time.Now().UTC().Add(ttl)
	expiresAtPtr := &expiresAt
	if err := m.updateAndRefresh(ctx, record, sandbox.Patch{
		Status:    &readyStatus,
		ExpiresAt: &expiresAtPtr,
	}); err != nil {
		return nil, err
	}

	timer.ObserveDuration(metrics.SandboxCreateDuration)
	metrics.SandboxesCreatedTotal.Inc()
	return record, nil
}

// provision builds the engine spec and calls driver.Create.
func (m *Manager) provision(ctx context.Context, record *sandbox.Record, opts CreateOptions) (string, error) {
	env := make(map[string]string, len(opts.Env)+8)
	for k, v := range opts.Env {
		env[k] = v
	}
	env["SANDBOX_ID"] = record.SandboxID
	env["USER_ID"] = record.UserID
	env["S3_BUCKET"] = m.objectStore.Bucket()
	env["HOT_PATH"] = record.HotPath
	env["COLD_PATH"] = record.ColdPath
	env["HOT_PREFIX"] = m.objectStore.HotPrefix(record.UserID)
	env["COLD_PREFIX"] = m.objectStore.ColdPrefix(record.UserID)
	env["SHUTDOWN_TIMEOUT_SECONDS"] = strconv.Itoa(int(m.cfg.ShutdownTimeout.Seconds()))

	spec := enginedriver.Spec{
		Image:    opts.Image,
		Env:      env,
		CPUCores: opts.CPUCores,
		MemoryMB: opts.MemoryMB,
		Labels: map[string]string{
			enginedriver.SandboxIDLabel: record.SandboxID,
			enginedriver.UserIDLabel:    record.UserID,
		},
		HotMount:   record.HotPath,
		ColdMount:  record.ColdPath,
		WorkDir:    record.CWD,
		NetworkOff: opts.NetworkOff,
	}

	return m.driver.Create(ctx, spec)
}

// waitReady polls driver.Inspect until the container is running or the
// readiness deadline elapses. The in-container agent's own readiness marker
// (§4.6) is opaque to the orchestrator beyond "the engine reports it
// running"; a more elaborate readiness probe is left to deployments that
// need it.
func (m *Manager) waitReady(ctx context.Context, containerID string) error {
	deadline := time.Now().Add(m.cfg.ReadinessDeadline)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		insp, err := m.driver.Inspect(ctx, containerID)
		if err == nil && insp.State == enginedriver.ContainerRunning {
			return nil
		}
		if time.Now().After(deadline) {
			return sandbox.New(sandbox.KindTimeout, "sandbox did not become ready before deadline")
		}
		select {
		case <-ctx.Done():
			return sandbox.Wrap(sandbox.KindTimeout, "readiness wait cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) failRecord(ctx context.Context, record *sandbox.Record, cause error) {
	status := sandbox.StatusFailed
	reason := sandbox.StopReasonError
	now := time.Now().UTC()
	nowPtr := &now
	_, _ = m.store.Update(ctx, record.SandboxID, sandbox.Patch{
		Status:     &status,
		StopReason: &reason,
		StoppedAt:  &nowPtr,
	})
	m.pruneLock(record.SandboxID)
	metrics.SandboxesFailedTotal.Inc()
	m.log.Error().Str("sandbox_id", record.SandboxID).Err(cause).Msg("sandbox creation failed")
}

func (m *Manager) updateAndRefresh(ctx context.Context, record *sandbox.Record, patch sandbox.Patch) error {
	updated, err := m.store.Update(ctx, record.SandboxID, patch)
	if err != nil {
		return err
	}
	*record = *updated
	return nil
}

// GetSandbox fetches a record, scoped to requestingUser. A sandbox owned by
// someone else is reported as NotFound rather than Forbidden, so a caller
// cannot use this endpoint as an existence oracle for other users' sandboxes
// (§8 scenario 4).
func (m *Manager) GetSandbox(ctx context.Context, sandboxID, requestingUser string) (*sandbox.Record, error) {
	record, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return nil, err
	}
	if requestingUser != "" && requestingUser != record.UserID {
		return nil, sandbox.New(sandbox.KindNotFound, "sandbox not found")
	}
	return record, nil
}

// ListSandboxes returns all records owned by requestingUser, or every
// record when requestingUser is empty (admin use).
func (m *Manager) ListSandboxes(ctx context.Context, requestingUser string) ([]*sandbox.Record, error) {
	return m.store.List(ctx, requestingUser)
}

// Heartbeat updates last_heartbeat_at on an existing sandbox.
func (m *Manager) Heartbeat(ctx context.Context, sandboxID, requestingUser string) error {
	lock := m.lockFor(sandboxID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return err
	}
	if err := authorize(record, requestingUser); err != nil {
		return err
	}

	now := time.Now().UTC()
	nowPtr := &now
	_, err = m.store.Update(ctx, sandboxID, sandbox.Patch{LastHeartbeatAt: &nowPtr})
	return err
}

// completionMetadataKey and errorMetadataKey are the Config map keys used to
// stash agent-signalled completion/error metadata (§4.4 contracts #6, #7).
const (
	completionMetadataKey = "last_completion"
	errorMetadataKey      = "last_error"
)

// MarkComplete records an agent-signalled successful completion. It does
// not itself destroy the sandbox.
func (m *Manager) MarkComplete(ctx context.Context, sandboxID, requestingUser, result string) error {
	return m.annotate(ctx, sandboxID, requestingUser, completionMetadataKey, result)
}

// MarkError records an agent-signalled error. Per §9 this intentionally does
// not transition the record to failed — the sandbox is still alive.
func (m *Manager) MarkError(ctx context.Context, sandboxID, requestingUser, errorInfo string) error {
	return m.annotate(ctx, sandboxID, requestingUser, errorMetadataKey, errorInfo)
}

func (m *Manager) annotate(ctx context.Context, sandboxID, requestingUser, key, value string) error {
	lock := m.lockFor(sandboxID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return err
	}
	if err := authorize(record, requestingUser); err != nil {
		return err
	}

	_, err = m.store.Update(ctx, sandboxID, sandbox.Patch{Config: map[string]string{key: value}})
	return err
}

// DestroySandbox terminates a sandbox (§4.4 contract #8). Idempotent
// against already-terminal records.
func (m *Manager) DestroySandbox(ctx context.Context, sandboxID, requestingUser string, graceful bool, reason sandbox.StopReason) (*sandbox.Record, error) {
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
	if record.Status.Terminal() {
		return record, nil
	}

	if graceful && record.ContainerID != "" {
		shuttingDown := sandbox.StatusShuttingDown
		if err := m.updateAndRefresh(ctx, record, sandbox.Patch{Status: &shuttingDown}); err != nil {
			return nil, err
		}
		if err := m.driver.Stop(ctx, record.ContainerID, m.cfg.ShutdownTimeout); err != nil {
			m.log.Warn().Str("sandbox_id", sandboxID).Err(err).Msg("graceful stop failed, forcing removal")
		}
	}

	if record.ContainerID != "" {
		if err := m.driver.Remove(ctx, record.ContainerID); err != nil {
			m.log.Warn().Str("sandbox_id", sandboxID).Err(err).Msg("remove failed during destroy")
		}
	}

	stopped := sandbox.StatusStopped
	now := time.Now().UTC()
	nowPtr := &now
	updated, err := m.store.Update(ctx, sandboxID, sandbox.Patch{
		Status:     &stopped,
		StopReason: &reason,
		StoppedAt:  &nowPtr,
	})
	if err != nil {
		return nil, err
	}
	m.pruneLock(sandboxID)
	metrics.SandboxesDestroyedTotal.WithLabelValues(string(reason)).Inc()
	return updated, nil
}
