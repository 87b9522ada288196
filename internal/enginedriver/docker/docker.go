// Package docker implements enginedriver.Driver on top of the Docker
// engine, adapted from the teacher's internal/driver/docker package: same
// "tail -f /dev/null" persistent-container pattern and label-based orphan
// cleanup, generalized to the new exec/inspect/list-by-label contract.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"

	"github.com/sandboxforge/orchestrator/internal/enginedriver"
	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// cwdMarkerPath is where the wrapped exec command writes its resulting
// working directory, per the §9 strategy (a) tmpfile-capture approach.
const cwdMarkerPath = "/tmp/.forge-exec-cwd"

// Driver implements enginedriver.Driver using the Docker engine API.
type Driver struct {
	cli *client.Client
}

var _ enginedriver.Driver = (*Driver)(nil)

// New creates a Driver from the ambient Docker environment (DOCKER_HOST and
// friends), matching the teacher's client.FromEnv bootstrap, and performs a
// best-effort startup sweep of orphaned containers from a prior process.
func New(ctx context.Context) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindEngineUnavailable, "create docker client", err)
	}
	d := &Driver{cli: cli}
	go d.cleanupOrphans()
	return d, nil
}

func (d *Driver) cleanupOrphans() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := d.cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", enginedriver.ManagedLabel+"=true")),
	})
	if err != nil {
		log.Warn().Err(err).Msg("startup orphan sweep: failed to list containers")
		return
	}

	removed := 0
	for _, c := range list {
		if err := d.cli.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			log.Warn().Str("container_id", c.ID).Err(err).Msg("startup orphan sweep: failed to remove")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("count", removed).Msg("startup orphan sweep: removed containers")
	}
}

func (d *Driver) Healthy(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return sandbox.Wrap(sandbox.KindEngineUnavailable, "ping docker engine", err)
	}
	return nil
}

func (d *Driver) Close() error {
	return d.cli.Close()
}

func (d *Driver) Create(ctx context.Context, spec enginedriver.Spec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: int64(spec.CPUCores * 1e9),
			Memory:   spec.MemoryMB * 1024 * 1024,
		},
		Mounts: []mount.Mount{
			{Type: mount.TypeTmpfs, Target: "/tmp"},
		},
	}
	if spec.NetworkOff {
		hostConfig.NetworkMode = "none"
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[enginedriver.ManagedLabel] = "true"

	if _, _, err := d.cli.ImageInspectWithRaw(ctx, spec.Image); client.IsErrNotFound(err) {
		reader, pullErr := d.cli.ImagePull(ctx, spec.Image, types.ImagePullOptions{})
		if pullErr != nil {
			return "", sandbox.Wrap(sandbox.KindEngineUnavailable, "pull sandbox image", pullErr)
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	} else if err != nil {
		return "", sandbox.Wrap(sandbox.KindEngineUnavailable, "inspect sandbox image", err)
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      spec.Image,
			Cmd:        []string{"tail", "-f", "/dev/null"},
			Env:        env,
			Labels:     labels,
			WorkingDir: spec.WorkDir,
		},
		hostConfig,
		nil, nil, "",
	)
	if err != nil {
		return "", sandbox.Wrap(sandbox.KindEngineUnavailable, "create sandbox container", err)
	}
	return resp.ID, nil
}

func (d *Driver) Start(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return sandbox.New(sandbox.KindNotFound, "container not found")
		}
		return sandbox.Wrap(sandbox.KindEngineUnavailable, "start sandbox container", err)
	}
	return nil
}

func (d *Driver) Inspect(ctx context.Context, containerID string) (*enginedriver.Inspection, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, sandbox.New(sandbox.KindNotFound, "container not found")
		}
		return nil, sandbox.Wrap(sandbox.KindEngineUnavailable, "inspect container", err)
	}

	state := enginedriver.ContainerUnknown
	switch {
	case info.State.Running:
		state = enginedriver.ContainerRunning
	case info.State.Dead || info.State.OOMKilled:
		state = enginedriver.ContainerDead
	case info.State.Status == "exited":
		state = enginedriver.ContainerExited
	}

	startedAt, _ := time.Parse(time.RFC3339Nano, info.State.StartedAt)
	return &enginedriver.Inspection{
		State:     state,
		ExitCode:  info.State.ExitCode,
		StartedAt: startedAt,
	}, nil
}

// Exec wraps command so the shell reports its final working directory into
// cwdMarkerPath (§9 strategy (a)), runs it with a hard deadline, and demuxes
// stdout/stderr from Docker's stdcopy stream format.
func (d *Driver) Exec(ctx context.Context, containerID, command, cwd string, deadline time.Time) (*enginedriver.ExecResult, error) {
	insp, err := d.Inspect(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if insp.State != enginedriver.ContainerRunning {
		return nil, sandbox.New(sandbox.KindInvalidState, "container is not running")
	}

	execCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	wrapped := fmt.Sprintf(
		"cd %s && { %s; }; __rc=$?; pwd > %s; exit $__rc",
		shellQuote(cwd), command, cwdMarkerPath,
	)

	execConfig := types.ExecConfig{
		Cmd:          []string{"sh", "-c", wrapped},
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}

	created, err := d.cli.ContainerExecCreate(execCtx, containerID, execConfig)
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindEngineUnavailable, "create exec", err)
	}

	attach, err := d.cli.ContainerExecAttach(execCtx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindEngineUnavailable, "attach exec", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- copyErr
	}()

	select {
	case <-execCtx.Done():
		return nil, sandbox.New(sandbox.KindTimeout, "exec deadline exceeded")
	case copyErr := <-copyDone:
		if copyErr != nil && copyErr != io.EOF {
			return nil, sandbox.Wrap(sandbox.KindEngineUnavailable, "read exec output", copyErr)
		}
	}

	inspExec, err := d.cli.ContainerExecInspect(execCtx, created.ID)
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindEngineUnavailable, "inspect exec result", err)
	}

	result := &enginedriver.ExecResult{
		ExitCode: inspExec.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	// Only read back the reported cwd on a clean exit, per the "least
	// surprise" policy choice in §9.
	if result.ExitCode == 0 {
		if newCWD, readErr := d.readFile(execCtx, containerID, cwdMarkerPath); readErr == nil {
			result.NewCWD = strings.TrimSpace(newCWD)
		}
	}
	return result, nil
}

// readFile cats a small file out of the container via exec, used only to
// retrieve the cwd marker written by Exec's wrapped command.
func (d *Driver) readFile(ctx context.Context, containerID, path string) (string, error) {
	execConfig := types.ExecConfig{
		Cmd:          []string{"cat", path},
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := d.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return "", err
	}
	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return "", err
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil && err != io.EOF {
		return "", err
	}
	return stdout.String(), nil
}

func (d *Driver) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return sandbox.Wrap(sandbox.KindEngineUnavailable, "stop container", err)
	}
	return nil
}

func (d *Driver) Remove(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !client.IsErrNotFound(err) {
		return sandbox.Wrap(sandbox.KindEngineUnavailable, "remove container", err)
	}
	return nil
}

func (d *Driver) ListByLabel(ctx context.Context, label, value string) ([]string, error) {
	selector := label
	if value != "" {
		selector = label + "=" + value
	}
	containers, err := d.cli.ContainerList(ctx, types.ContainerListOptions{
		All:     false,
		Filters: filters.NewArgs(filters.Arg("label", selector)),
	})
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindEngineUnavailable, "list containers by label", err)
	}

	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// shellQuote wraps a path in single quotes for safe interpolation into the
// wrapped exec command, escaping any embedded single quotes.
func shellQuote(s string) string {
	if s == "" {
		return "'/'"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
