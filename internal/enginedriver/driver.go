// Package enginedriver defines the Container Driver abstraction (spec.md
// §4.2): the small capability interface every container engine backend
// implements, generalized from the teacher's internal/driver package.
package enginedriver

import (
	"context"
	"time"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// ManagedLabel marks every container this orchestrator creates, so
// reconciliation and orphan cleanup can find them by label selector alone.
const ManagedLabel = "forge.sandbox.managed"

// SandboxIDLabel and UserIDLabel carry identity onto the container so the
// reconciliation loop and operator tooling can inspect ownership without a
// registry round-trip.
const (
	SandboxIDLabel = "forge.sandbox.id"
	UserIDLabel    = "forge.sandbox.user_id"
)

// Spec carries everything the driver needs to provision one sandbox
// container (§4.2 create operation).
type Spec struct {
	Image      string
	Env        map[string]string
	Labels     map[string]string
	CPUCores   float64
	MemoryMB   int64
	DiskMB     int64
	HotMount   string
	ColdMount  string
	WorkDir    string
	NetworkOff bool
}

// ContainerState is the coarse engine-reported state of a container, used by
// reconciliation and readiness polling.
type ContainerState string

const (
	ContainerRunning ContainerState = "running"
	ContainerExited  ContainerState = "exited"
	ContainerDead    ContainerState = "dead"
	ContainerUnknown ContainerState = "unknown"
)

// Inspection is the result of inspect(container_id).
type Inspection struct {
	State     ContainerState
	ExitCode  int
	StartedAt time.Time
}

// ExecResult is the result of running a command inside a sandbox.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	NewCWD   string
}

// Driver mediates all interaction with the container engine. Implementations
// must be safe for concurrent use and must honor ctx deadlines on every
// call — unbounded waits are forbidden (§5).
type Driver interface {
	// Create provisions a new container for spec and returns its id. On any
	// failure after partial creation, the driver removes what it created
	// before returning (§4.2 failure semantics).
	Create(ctx context.Context, spec Spec) (containerID string, err error)

	// Start begins execution. It returns once the engine accepts the start
	// request, not once the in-container agent reports readiness — readiness
	// is the caller's responsibility via Inspect polling.
	Start(ctx context.Context, containerID string) error

	// Inspect reports the engine's current view of containerID.
	Inspect(ctx context.Context, containerID string) (*Inspection, error)

	// Exec runs command inside the container with the given working
	// directory, aborting at deadline. The command runs as the container's
	// default user; Exec does not switch to a separate non-privileged user.
	// The driver
	// MUST re-inspect the container immediately before running the command
	// and refuse with a NotFound/InvalidState-flavored error if it is not
	// running.
	Exec(ctx context.Context, containerID, command, cwd string, deadline time.Time) (*ExecResult, error)

	// Stop delivers an orderly termination signal and waits up to timeout
	// before the caller is expected to fall back to Remove.
	Stop(ctx context.Context, containerID string, timeout time.Duration) error

	// Remove force-removes a container. Idempotent: removing an
	// already-gone container is treated as success.
	Remove(ctx context.Context, containerID string) error

	// ListByLabel enumerates containers carrying label=value, used by the
	// reconciliation loop to find orphans and drift.
	ListByLabel(ctx context.Context, label, value string) ([]string, error)

	// Healthy performs a lightweight check of the engine connection.
	Healthy(ctx context.Context) error

	// Close releases resources held by the driver (e.g. the engine client).
	Close() error
}

// Validate applies defaults and rejects out-of-policy values, mirroring the
// shape of the teacher's SandboxConfig.Validate.
func (s *Spec) Validate() error {
	if s.Image == "" {
		return sandbox.New(sandbox.KindValidation, "image is required")
	}
	if s.CPUCores <= 0 {
		s.CPUCores = 1.0
	}
	if s.MemoryMB <= 0 {
		s.MemoryMB = 512
	}
	if s.WorkDir == "" {
		s.WorkDir = "/workspace"
	}
	if s.CPUCores > 8.0 {
		return sandbox.New(sandbox.KindValidation, "cpu_cores cannot exceed 8")
	}
	if s.MemoryMB > 16384 {
		return sandbox.New(sandbox.KindValidation, "memory_mb cannot exceed 16GB")
	}
	return nil
}
