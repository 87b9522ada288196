package protocol

import (
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// excludePatterns are transient files the hot sync leaves behind in both
// directions (§4.6 startup step 2: "Exclude a small fixed set of transient
// patterns").
var excludePatterns = []string{
	"*.tmp",
	"*.swp",
	"*~",
	".DS_Store",
	".#*",
}

func excluded(name string) bool {
	for _, pattern := range excludePatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// retryConfig is the bounded exponential back-off policy shared by hot-sync
// down and hot-sync up (§4.6: "with retries (bounded exponential
// back-off; at least 3 attempts)").
type retryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

var hotSyncRetry = retryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, Multiplier: 2.0}

func withRetry(ctx context.Context, cfg retryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}
	return lastErr
}

// hotSyncDown mirrors the object store's bucket/prefix into localDir (§4.6
// startup step 2). The configured bucket is treated as a local directory
// root, consistent with internal/objectstore's LocalDiskChecker — no
// object-store SDK survived retrieval for this pack (see DESIGN.md) so the
// agent and the orchestrator share the same local-disk convention for
// development and tests.
func hotSyncDown(ctx context.Context, bucketRoot, prefix, localDir string) error {
	return withRetry(ctx, hotSyncRetry, func() error {
		src := filepath.Join(bucketRoot, filepath.FromSlash(prefix))
		if _, err := os.Stat(src); os.IsNotExist(err) {
			return os.MkdirAll(localDir, 0o755)
		}
		return mirrorDir(src, localDir)
	})
}

// hotSyncUp mirrors localDir back into the object store (§4.6 shutdown
// step 2).
func hotSyncUp(ctx context.Context, bucketRoot, prefix, localDir string) error {
	return withRetry(ctx, hotSyncRetry, func() error {
		dst := filepath.Join(bucketRoot, filepath.FromSlash(prefix))
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		return mirrorDir(localDir, dst)
	})
}

// mirrorDir copies src's tree into dst, skipping excluded transient
// patterns. Best-effort: a source that does not exist yet is not an error.
func mirrorDir(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if excluded(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// coldMount projects the object store's cold prefix at coldPath as a
// read-on-access directory. No FUSE-capable lazy-filesystem library exists
// anywhere in the retrieved pack (see DESIGN.md), so this is implemented as
// a best-effort one-shot population of coldPath rather than a true lazy
// mount; per §4.6 step 3, a sandbox MAY proceed without a true cold mount
// and callers then see whatever was populated (possibly empty).
func coldMount(bucketRoot, prefix, coldPath string) error {
	if err := os.MkdirAll(coldPath, 0o755); err != nil {
		return sandbox.Wrap(sandbox.KindInternal, "prepare cold mount point", err)
	}
	src := filepath.Join(bucketRoot, filepath.FromSlash(prefix))
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	if err := mirrorDir(src, coldPath); err != nil {
		return sandbox.Wrap(sandbox.KindInternal, "project cold storage", err)
	}
	return nil
}

// coldUnmount is a best-effort no-op cleanup: since coldMount never bind-
// mounts anything, there is nothing to unmount. It exists so Shutdown's
// step ordering matches §4.6 exactly and so a future FUSE-backed
// implementation has a single call site to replace.
func coldUnmount(_ string) error {
	return nil
}
