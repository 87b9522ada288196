package objectstore

import (
	"context"
	"os"
)

// LocalDiskChecker treats the configured "bucket" as a directory on local
// disk, for development and the test suite. No object-store SDK exists
// anywhere in the retrieved corpus (see DESIGN.md), so the stdlib os
// package is the only reasonable implementation for this narrow check.
type LocalDiskChecker struct {
	Root string
}

func (c LocalDiskChecker) BucketExists(_ context.Context, bucket string) (bool, error) {
	info, err := os.Stat(c.Root)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = bucket
	return info.IsDir(), nil
}
