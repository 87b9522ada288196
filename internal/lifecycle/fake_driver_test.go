package lifecycle

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sandboxforge/orchestrator/internal/enginedriver"
)

// fakeDriver is an in-memory enginedriver.Driver for Manager tests,
// grounded in the teacher's style of exercising the driver.Driver interface
// through a real implementation rather than a generated mock.
type fakeDriver struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	nextID     int

	createErr  error
	startErr   error
	execResult *enginedriver.ExecResult
	execErr    error
}

type fakeContainer struct {
	id      string
	running bool
	labels  map[string]string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{containers: make(map[string]*fakeContainer)}
}

func (f *fakeDriver) Create(_ context.Context, spec enginedriver.Spec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := "container-" + strconv.Itoa(f.nextID)
	f.containers[id] = &fakeContainer{id: id, labels: spec.Labels}
	return id, nil
}

func (f *fakeDriver) Start(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if c, ok := f.containers[containerID]; ok {
		c.running = true
	}
	return nil
}

func (f *fakeDriver) Inspect(_ context.Context, containerID string) (*enginedriver.Inspection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[containerID]
	if !ok {
		return &enginedriver.Inspection{State: enginedriver.ContainerUnknown}, nil
	}
	state := enginedriver.ContainerExited
	if c.running {
		state = enginedriver.ContainerRunning
	}
	return &enginedriver.Inspection{State: state, StartedAt: time.Now()}, nil
}

func (f *fakeDriver) Exec(_ context.Context, containerID, command, cwd string, _ time.Time) (*enginedriver.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.execResult != nil {
		return f.execResult, nil
	}
	return &enginedriver.ExecResult{ExitCode: 0, Stdout: "ok", NewCWD: cwd}, nil
}

func (f *fakeDriver) Stop(_ context.Context, containerID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[containerID]; ok {
		c.running = false
	}
	return nil
}

func (f *fakeDriver) Remove(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, containerID)
	return nil
}

func (f *fakeDriver) ListByLabel(_ context.Context, label, value string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, c := range f.containers {
		if c.labels[label] == value {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeDriver) Healthy(_ context.Context) error { return nil }
func (f *fakeDriver) Close() error                    { return nil }
