// Package objectstore implements the orchestrator-side half of the
// Object-Store Gateway (spec.md §4.3). The orchestrator's own
// responsibility is narrow — verify the bucket is reachable at startup and
// compute the per-user prefix layout passed to each sandbox — the actual
// object transfer happens inside the sandbox container during the
// in-container lifecycle protocol (§4.6), so this package has no SDK
// dependency of its own (see DESIGN.md for why no object-store client
// library from the pack was wired here).
package objectstore

import (
	"context"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// Gateway reports reachability of the configured bucket and computes the
// per-user prefix layout handed to sandbox containers via environment.
type Gateway interface {
	// CheckReachable verifies through the Checker that the configured bucket
	// exists, failing fast if not. Ownership of the bucket is not checked
	// separately.
	CheckReachable(ctx context.Context) error

	// Bucket returns the configured bucket name.
	Bucket() string

	// HotPrefix returns the object-store prefix holding userID's hot tier.
	HotPrefix(userID string) string

	// ColdPrefix returns the object-store prefix holding userID's cold tier.
	ColdPrefix(userID string) string
}

// Checker is implemented by whatever client Gateway uses to confirm the
// bucket exists, kept minimal so Gateway stays swappable without pulling an
// SDK into this package's public surface.
type Checker interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

type gateway struct {
	bucket  string
	checker Checker
}

// New constructs a Gateway for bucket, verified through checker.
func New(bucket string, checker Checker) Gateway {
	return &gateway{bucket: bucket, checker: checker}
}

func (g *gateway) CheckReachable(ctx context.Context) error {
	ok, err := g.checker.BucketExists(ctx, g.bucket)
	if err != nil {
		return sandbox.Wrap(sandbox.KindStoreUnavailable, "check object-store bucket reachability", err)
	}
	if !ok {
		return sandbox.New(sandbox.KindStoreUnavailable, "object-store bucket not reachable or not owned: "+g.bucket)
	}
	return nil
}

func (g *gateway) Bucket() string { return g.bucket }

func (g *gateway) HotPrefix(userID string) string {
	return "users/" + userID + "/hot/"
}

func (g *gateway) ColdPrefix(userID string) string {
	return "users/" + userID + "/cold/"
}
