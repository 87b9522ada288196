// Package registry implements the durable Registry Store (spec.md §4.1):
// the persistent record of every sandbox, keyed by sandbox id, with
// per-user indexing, status, timestamps, TTL, and stop reason.
//
// Two interchangeable backends are provided: an in-process map (Memory, for
// development and tests) and a PostgreSQL-backed implementation
// (postgres.Store, for production multi-instance deployments). Both satisfy Store.
package registry

import (
	"context"
	"time"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// Store is the uniform interface every Registry Store backend implements.
// Implementations must make each individual operation atomic; no
// cross-record transactions are required by the protocol.
type Store interface {
	// Save inserts a new record. Returns a *sandbox.Error of KindConflict
	// if sandbox_id already exists.
	Save(ctx context.Context, record *sandbox.Record) error

	// Get returns the record for id, or a *sandbox.Error of KindNotFound.
	Get(ctx context.Context, id string) (*sandbox.Record, error)

	// List returns all records for userID, or every record known to the
	// store when userID is empty (admin use). Order is unspecified.
	List(ctx context.Context, userID string) ([]*sandbox.Record, error)

	// Update applies patch atomically to the record named by id, advancing
	// UpdatedAt. Returns a *sandbox.Error of KindNotFound if absent.
	Update(ctx context.Context, id string, patch sandbox.Patch) (*sandbox.Record, error)

	// Delete hard-removes a record. The Lifecycle Manager does not call
	// this in normal operation (it uses Update to mark a record stopped),
	// but operators and tests may use it directly.
	Delete(ctx context.Context, id string) error

	// ListExpired returns every record with Status in {ready, running}
	// whose ExpiresAt is at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]*sandbox.Record, error)

	// Close releases any resources held by the store (e.g. a database
	// connection pool). Safe to call on the Memory backend as a no-op.
	Close() error
}
