// Package sandbox defines the central Sandbox Record type, its lifecycle
// states, and the tagged error taxonomy shared by every other package in
// this module.
package sandbox

import "time"

// Status is the lifecycle state of a Sandbox Record.
type Status string

const (
	StatusCreating     Status = "creating"
	StatusStarting     Status = "starting"
	StatusReady        Status = "ready"
	StatusRunning      Status = "running"
	StatusShuttingDown Status = "shutting_down"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
	StatusExpired      Status = "expired"
)

// Terminal reports whether a status is absorbing: no further transition is
// ever permitted out of it.
func (s Status) Terminal() bool {
	switch s {
	case StatusStopped, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// Live reports whether a record in this status is expected to have a
// corresponding live container in the engine.
func (s Status) Live() bool {
	switch s {
	case StatusCreating, StatusStarting, StatusReady, StatusRunning, StatusShuttingDown:
		return true
	default:
		return false
	}
}

// StopReason explains why a sandbox left a live status.
type StopReason string

const (
	StopReasonUserRequested   StopReason = "user_requested"
	StopReasonExpired         StopReason = "expired"
	StopReasonError           StopReason = "error"
	StopReasonGracefulRestart StopReason = "graceful_shutdown"
	StopReasonAdmin           StopReason = "admin"
)

// Default mount points fixed by the in-container lifecycle protocol (§4.6).
const (
	DefaultHotPath  = "/mnt/hot"
	DefaultColdPath = "/mnt/cold"
)

// Record is the central entity: one row describing a sandbox's entire
// lifetime. Record is never physically deleted by the Lifecycle Manager —
// only transitioned to a terminal status — so it doubles as an audit trail.
type Record struct {
	SandboxID       string            `json:"sandbox_id"`
	UserID          string            `json:"user_id"`
	ContainerID     string            `json:"container_id,omitempty"`
	Status          Status            `json:"status"`
	HotPath         string            `json:"hot_path"`
	ColdPath        string            `json:"cold_path"`
	CWD             string            `json:"cwd"`
	Config          map[string]string `json:"config,omitempty"`
	TTLSeconds      int64             `json:"ttl_seconds"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	LastHeartbeatAt *time.Time        `json:"last_heartbeat_at,omitempty"`
	StoppedAt       *time.Time        `json:"stopped_at,omitempty"`
	StopReason      StopReason        `json:"stop_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Clone returns a deep-enough copy safe for a caller to read without holding
// the registry's internal lock. Config is copied; nothing else in Record is
// a reference type that mutates in place after being handed out.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Config != nil {
		cp.Config = make(map[string]string, len(r.Config))
		for k, v := range r.Config {
			cp.Config[k] = v
		}
	}
	return &cp
}

// Expired reports whether the record's lease has passed now. A record whose
// expires_at exactly equals now is considered expired (§8 boundary case).
func (r *Record) Expired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return !r.ExpiresAt.After(now)
}

// Patch describes a partial update to a Record. Nil fields are left
// unchanged. Update always advances UpdatedAt regardless of which fields are
// set.
type Patch struct {
	ContainerID     *string
	Status          *Status
	CWD             *string
	Config          map[string]string
	TTLSeconds      *int64
	ExpiresAt       **time.Time
	LastHeartbeatAt **time.Time
	StoppedAt       **time.Time
	StopReason      *StopReason
}

// Apply mutates r in place according to p, leaving UpdatedAt to the caller
// (the Registry Store sets it, per §4.1's schema hints).
func (p Patch) Apply(r *Record) {
	if p.ContainerID != nil {
		r.ContainerID = *p.ContainerID
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.CWD != nil {
		r.CWD = *p.CWD
	}
	if p.Config != nil {
		if r.Config == nil {
			r.Config = make(map[string]string, len(p.Config))
		}
		for k, v := range p.Config {
			r.Config[k] = v
		}
	}
	if p.TTLSeconds != nil {
		r.TTLSeconds = *p.TTLSeconds
	}
	if p.ExpiresAt != nil {
		r.ExpiresAt = *p.ExpiresAt
	}
	if p.LastHeartbeatAt != nil {
		r.LastHeartbeatAt = *p.LastHeartbeatAt
	}
	if p.StoppedAt != nil {
		r.StoppedAt = *p.StoppedAt
	}
	if p.StopReason != nil {
		r.StopReason = *p.StopReason
	}
}
