package protocol

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(t *testing.T, bucketRoot string) *Env {
	t.Helper()
	return &Env{
		SandboxID: "sb-1",
		UserID:    "u-alice",
		Bucket:    bucketRoot,
		HotPath:   filepath.Join(t.TempDir(), "hot"),
		ColdPath:  filepath.Join(t.TempDir(), "cold"),
	}
}

func TestStartupWritesReadinessMarker(t *testing.T) {
	bucketRoot := t.TempDir()
	e := testEnv(t, bucketRoot)

	err := Startup(context.Background(), e, zerolog.Nop())
	require.NoError(t, err)

	_, err = os.Stat(e.ReadinessMarkerPath())
	require.NoError(t, err)
}

func TestStartupHotSyncDownMirrorsExistingObjects(t *testing.T) {
	bucketRoot := t.TempDir()
	e := testEnv(t, bucketRoot)

	hotSrc := filepath.Join(bucketRoot, filepath.FromSlash(e.HotPrefix()))
	require.NoError(t, os.MkdirAll(hotSrc, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(hotSrc, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(hotSrc, "scratch.tmp"), []byte("ignore me"), 0o644))

	require.NoError(t, Startup(context.Background(), e, zerolog.Nop()))

	data, err := os.ReadFile(filepath.Join(e.HotPath, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = os.Stat(filepath.Join(e.HotPath, "scratch.tmp"))
	assert.True(t, os.IsNotExist(err), "transient .tmp file must be excluded from hot sync")
}

func TestShutdownHotSyncUpMirrorsBackToBucket(t *testing.T) {
	bucketRoot := t.TempDir()
	e := testEnv(t, bucketRoot)

	require.NoError(t, Startup(context.Background(), e, zerolog.Nop()))
	require.NoError(t, os.WriteFile(filepath.Join(e.HotPath, "result.txt"), []byte("done"), 0o644))

	require.NoError(t, Shutdown(context.Background(), e, zerolog.Nop()))

	hotDst := filepath.Join(bucketRoot, filepath.FromSlash(e.HotPrefix()))
	data, err := os.ReadFile(filepath.Join(hotDst, "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "done", string(data))

	_, err = os.Stat(e.ReadinessMarkerPath())
	assert.True(t, os.IsNotExist(err), "readiness marker must be removed on shutdown")
}

func TestShutdownThenStartupRoundTripsHotStorage(t *testing.T) {
	// Mirrors the spec's §8 scenario 6: a marker written during one
	// sandbox's lifetime is visible to the next sandbox for the same user.
	bucketRoot := t.TempDir()

	first := testEnv(t, bucketRoot)
	require.NoError(t, Startup(context.Background(), first, zerolog.Nop()))
	require.NoError(t, os.WriteFile(filepath.Join(first.HotPath, "marker.txt"), []byte("was here"), 0o644))
	require.NoError(t, Shutdown(context.Background(), first, zerolog.Nop()))

	second := testEnv(t, bucketRoot)
	second.UserID = first.UserID
	require.NoError(t, Startup(context.Background(), second, zerolog.Nop()))

	data, err := os.ReadFile(filepath.Join(second.HotPath, "marker.txt"))
	require.NoError(t, err)
	assert.Equal(t, "was here", string(data))
}

func TestLoadEnvRejectsMissingRequiredVars(t *testing.T) {
	t.Setenv("SANDBOX_ID", "")
	t.Setenv("USER_ID", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("HOT_PATH", "")
	t.Setenv("COLD_PATH", "")

	_, err := LoadEnv()
	require.Error(t, err)
}
