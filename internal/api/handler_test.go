package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxforge/orchestrator/internal/enginedriver"
	"github.com/sandboxforge/orchestrator/internal/lifecycle"
	"github.com/sandboxforge/orchestrator/internal/objectstore"
	"github.com/sandboxforge/orchestrator/internal/registry"
)

// stubDriver is a minimal enginedriver.Driver for exercising the HTTP layer
// end to end without a real container engine, mirroring the teacher's
// integration-test style of exercising real (if fake) implementations
// rather than mocks.
type stubDriver struct {
	mu      sync.Mutex
	running map[string]bool
	next    int
}

func newStubDriver() *stubDriver { return &stubDriver{running: make(map[string]bool)} }

func (d *stubDriver) Create(_ context.Context, _ enginedriver.Spec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	id := "container-" + strconv.Itoa(d.next)
	d.running[id] = false
	return id, nil
}

func (d *stubDriver) Start(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[id] = true
	return nil
}

func (d *stubDriver) Inspect(_ context.Context, id string) (*enginedriver.Inspection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state := enginedriver.ContainerExited
	if d.running[id] {
		state = enginedriver.ContainerRunning
	}
	return &enginedriver.Inspection{State: state, StartedAt: time.Now()}, nil
}

func (d *stubDriver) Exec(_ context.Context, _ string, _ string, cwd string, _ time.Time) (*enginedriver.ExecResult, error) {
	return &enginedriver.ExecResult{ExitCode: 0, Stdout: "hi\n", NewCWD: cwd}, nil
}

func (d *stubDriver) Stop(_ context.Context, id string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[id] = false
	return nil
}

func (d *stubDriver) Remove(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, id)
	return nil
}

func (d *stubDriver) ListByLabel(_ context.Context, _, _ string) ([]string, error) { return nil, nil }
func (d *stubDriver) Healthy(_ context.Context) error                              { return nil }
func (d *stubDriver) Close() error                                                 { return nil }

func newTestServer(t *testing.T, apiKey string) (*echo.Echo, *lifecycle.Manager) {
	t.Helper()
	store := registry.NewMemory()
	driver := newStubDriver()
	objStore := objectstore.New("test-bucket", objectstore.LocalDiskChecker{Root: t.TempDir()})

	manager := lifecycle.New(store, driver, objStore, lifecycle.Config{
		DefaultTTL:         time.Hour,
		ExecDefaultTimeout: 5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		ReadinessDeadline:  2 * time.Second,
	}, zerolog.Nop())

	e := echo.New()
	h := NewHandler(manager, zerolog.Nop())
	h.RegisterRoutes(e, apiKey, "X-API-Key")
	return e, manager
}

func doRequest(e *echo.Echo, method, path, body, apiKey, user string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthRequiresNoAuth(t *testing.T) {
	e, _ := newTestServer(t, "secret")
	rec := doRequest(e, http.MethodGet, "/health", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMissingHeaderRejected(t *testing.T) {
	e, _ := newTestServer(t, "secret")
	rec := doRequest(e, http.MethodGet, "/sandboxes", "", "", "u-alice")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthWrongKeyForbidden(t *testing.T) {
	e, _ := newTestServer(t, "secret")
	rec := doRequest(e, http.MethodGet, "/sandboxes", "", "wrong", "u-alice")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAndExecHappyPath(t *testing.T) {
	e, _ := newTestServer(t, "secret")

	createRec := doRequest(e, http.MethodPost, "/sandboxes", `{"user_id":"u-alice","ttl_seconds":60}`, "secret", "u-alice")
	require.Equal(t, http.StatusCreated, createRec.Code)
	assert.Contains(t, createRec.Body.String(), `"status":"ready"`)

	var created struct {
		SandboxID string `json:"sandbox_id"`
	}
	require.NoError(t, decodeJSON(createRec.Body.String(), &created))

	execRec := doRequest(e, http.MethodPost, "/sandboxes/"+created.SandboxID+"/exec", `{"command":"echo hi"}`, "secret", "u-alice")
	require.Equal(t, http.StatusOK, execRec.Code)
	assert.Contains(t, execRec.Body.String(), `"exit_code":0`)
}

func TestExecRejectsOversizedCommand(t *testing.T) {
	e, _ := newTestServer(t, "secret")
	createRec := doRequest(e, http.MethodPost, "/sandboxes", `{"user_id":"u-alice"}`, "secret", "u-alice")
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created struct {
		SandboxID string `json:"sandbox_id"`
	}
	require.NoError(t, decodeJSON(createRec.Body.String(), &created))

	huge := strings.Repeat("a", 10_001)
	execRec := doRequest(e, http.MethodPost, "/sandboxes/"+created.SandboxID+"/exec", `{"command":"`+huge+`"}`, "secret", "u-alice")
	assert.Equal(t, http.StatusUnprocessableEntity, execRec.Code)
}

func TestOwnershipIsolationReturnsNotFound(t *testing.T) {
	e, _ := newTestServer(t, "secret")
	createRec := doRequest(e, http.MethodPost, "/sandboxes", `{"user_id":"u-alice"}`, "secret", "u-alice")
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created struct {
		SandboxID string `json:"sandbox_id"`
	}
	require.NoError(t, decodeJSON(createRec.Body.String(), &created))

	getRec := doRequest(e, http.MethodGet, "/sandboxes/"+created.SandboxID, "", "secret", "u-bob")
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestDestroyIsIdempotent(t *testing.T) {
	e, _ := newTestServer(t, "secret")
	createRec := doRequest(e, http.MethodPost, "/sandboxes", `{"user_id":"u-alice"}`, "secret", "u-alice")
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created struct {
		SandboxID string `json:"sandbox_id"`
	}
	require.NoError(t, decodeJSON(createRec.Body.String(), &created))

	first := doRequest(e, http.MethodDelete, "/sandboxes/"+created.SandboxID+"?graceful=false", "", "secret", "u-alice")
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(e, http.MethodDelete, "/sandboxes/"+created.SandboxID+"?graceful=false", "", "secret", "u-alice")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"status":"stopped"`)
}

func TestUnknownFieldRejectedWith422(t *testing.T) {
	e, _ := newTestServer(t, "secret")
	rec := doRequest(e, http.MethodPost, "/sandboxes", `{"user_id":"u-alice","bogus_field":true}`, "secret", "u-alice")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func decodeJSON(body string, out any) error {
	return json.NewDecoder(strings.NewReader(body)).Decode(out)
}
