// Sandbox primitives: isolated networks, resource-limited containers, exec,
// file transfer, logs and one-shot stats.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/pkg/errs"
)

// SandboxSpec describes one container to provision inside an environment.
type SandboxSpec struct {
	Name        string
	Image       string
	Env         map[string]string
	Labels      map[string]string
	NetworkID   string
	NetworkName string
	Cmd         []string // empty uses the image default
	WorkingDir  string
	NanoCPUs    int64
	MemoryBytes int64

	// AppPort, when set, is exposed and published on an ephemeral host port.
	AppPort int
}

// ExecResult is the outcome of one in-sandbox command.
type ExecResult struct {
	ExitCode int
	Output   string // combined stdout+stderr
}

// ─────────────────────────────────────────────────────────────────────────────
// Networks
// ─────────────────────────────────────────────────────────────────────────────

// CreateNetwork provisions an isolated bridge network for an environment.
func (c *Client) CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	resp, err := c.docker.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver: "bridge",
		Labels: labels,
	})
	if err != nil {
		return "", errs.Wrap(err, errs.ErrRuntimeCreate, "runtime.network.create").WithResource(name)
	}
	c.log.Info("network created", "name", name, "id", shortID(resp.ID))
	return resp.ID, nil
}

// RemoveNetwork tears down an environment network.
func (c *Client) RemoveNetwork(ctx context.Context, id string) error {
	if err := c.docker.NetworkRemove(ctx, id); err != nil {
		return errs.Wrap(err, errs.ErrRuntimeRemove, "runtime.network.remove").WithResource(shortID(id))
	}
	c.log.Info("network removed", "id", shortID(id))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Containers
// ─────────────────────────────────────────────────────────────────────────────

// PullImage pulls the specified image and streams progress to the logger.
func (c *Client) PullImage(ctx context.Context, img string) error {
	c.log.Info("pulling image", "image", img)
	rc, err := c.docker.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("image pull %q: %w", img, err)
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	for {
		var msg struct {
			Status   string `json:"status"`
			Progress string `json:"progress"`
			Error    string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if msg.Error != "" {
			return fmt.Errorf("image pull error: %s", msg.Error)
		}
		if msg.Status != "" {
			c.log.Debug("pull", "status", msg.Status, "progress", msg.Progress)
		}
	}
	return nil
}

// CreateSandbox pulls the image if needed, then creates and starts a
// resource-limited container attached to the environment network.
func (c *Client) CreateSandbox(ctx context.Context, spec SandboxSpec) (string, error) {
	if err := c.PullImage(ctx, spec.Image); err != nil {
		return "", errs.Wrap(err, errs.ErrRuntimeCreate, "runtime.sandbox.pull").
			WithResource(spec.Name).
			WithAdvice("Check the image name and your registry access")
	}

	envSlice := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	containerCfg := &containertypes.Config{
		Image:  spec.Image,
		Env:    envSlice,
		Labels: spec.Labels,
	}
	if len(spec.Cmd) > 0 {
		containerCfg.Cmd = spec.Cmd
	}
	if spec.WorkingDir != "" {
		containerCfg.WorkingDir = spec.WorkingDir
	}

	hostCfg := &containertypes.HostConfig{
		Resources: containertypes.Resources{
			NanoCPUs: spec.NanoCPUs,
			Memory:   spec.MemoryBytes,
		},
		RestartPolicy: containertypes.RestartPolicy{
			Name: containertypes.RestartPolicyUnlessStopped,
		},
	}

	if spec.AppPort > 0 {
		port, err := nat.NewPort("tcp", fmt.Sprintf("%d", spec.AppPort))
		if err != nil {
			return "", errs.Wrap(err, errs.ErrRuntimeCreate, "runtime.sandbox.port").WithResource(spec.Name)
		}
		containerCfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1"}}, // ephemeral host port
		}
	}

	netCfg := &networktypes.NetworkingConfig{}
	if spec.NetworkName != "" {
		netCfg.EndpointsConfig = map[string]*networktypes.EndpointSettings{
			spec.NetworkName: {NetworkID: spec.NetworkID},
		}
	}

	resp, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", errs.Wrap(err, errs.ErrRuntimeCreate, "runtime.sandbox.create").WithResource(spec.Name)
	}

	if err := c.docker.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		_ = c.docker.ContainerRemove(ctx, resp.ID, containertypes.RemoveOptions{Force: true})
		return "", errs.Wrap(err, errs.ErrRuntimeCreate, "runtime.sandbox.start").WithResource(shortID(resp.ID))
	}

	c.log.Info("sandbox started", "name", spec.Name, "id", shortID(resp.ID))
	return resp.ID, nil
}

// StopSandbox gracefully stops a container and optionally removes it.
func (c *Client) StopSandbox(ctx context.Context, id string, remove bool) error {
	timeout := 10
	if err := c.docker.ContainerStop(ctx, id, containertypes.StopOptions{Timeout: &timeout}); err != nil {
		return errs.Wrap(err, errs.ErrRuntimeRemove, "runtime.sandbox.stop").WithResource(shortID(id))
	}
	c.log.Info("sandbox stopped", "id", shortID(id))

	if remove {
		if err := c.docker.ContainerRemove(ctx, id, containertypes.RemoveOptions{}); err != nil {
			return errs.Wrap(err, errs.ErrRuntimeRemove, "runtime.sandbox.remove").WithResource(shortID(id))
		}
		c.log.Info("sandbox removed", "id", shortID(id))
	}
	return nil
}

// InspectRunning reports whether the container exists and is running.
func (c *Client) InspectRunning(ctx context.Context, id string) (bool, error) {
	info, err := c.docker.ContainerInspect(ctx, id)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return false, nil
		}
		return false, errs.Wrap(err, errs.ErrRuntimeInspect, "runtime.sandbox.inspect").WithResource(shortID(id))
	}
	return info.State != nil && info.State.Running, nil
}

// ListSandboxes returns all containers carrying the environment label,
// including stopped ones. Pass a non-empty id to filter to one environment.
func (c *Client) ListSandboxes(ctx context.Context, environmentID string) ([]types.Container, error) {
	f := filters.NewArgs()
	f.Add("label", LabelEnvironment)
	if environmentID != "" {
		f.Add("label", LabelEnvironment+"="+environmentID)
	}
	ctrs, err := c.docker.ContainerList(ctx, containertypes.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrRuntimeInspect, "runtime.sandbox.list")
	}
	return ctrs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Exec and file transfer
// ─────────────────────────────────────────────────────────────────────────────

// Exec runs a command inside a sandbox and returns its combined output and
// exit code. Blocks until the command completes or ctx is cancelled.
func (c *Client) Exec(ctx context.Context, containerID string, cmd []string, workDir string) (ExecResult, error) {
	execCfg := types.ExecConfig{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := c.docker.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return ExecResult{}, errs.Wrap(err, errs.ErrRuntimeExec, "runtime.exec.create").WithResource(shortID(containerID))
	}

	attach, err := c.docker.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return ExecResult{}, errs.Wrap(err, errs.ErrRuntimeExec, "runtime.exec.attach").WithResource(shortID(containerID))
	}
	defer attach.Close()

	// Demux the multiplexed stream into one combined buffer
	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, cpErr := stdcopy.StdCopy(&buf, &buf, attach.Reader)
		done <- cpErr
	}()

	select {
	case <-ctx.Done():
		return ExecResult{}, ctx.Err()
	case cpErr := <-done:
		if cpErr != nil {
			return ExecResult{}, errs.Wrap(cpErr, errs.ErrRuntimeExec, "runtime.exec.stream").WithResource(shortID(containerID))
		}
	}

	inspect, err := c.docker.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, errs.Wrap(err, errs.ErrRuntimeExec, "runtime.exec.inspect").WithResource(shortID(containerID))
	}

	return ExecResult{ExitCode: inspect.ExitCode, Output: buf.String()}, nil
}

// CopyTo streams a tar archive into the container at dstPath.
func (c *Client) CopyTo(ctx context.Context, containerID, dstPath string, tarStream io.Reader) error {
	err := c.docker.CopyToContainer(ctx, containerID, dstPath, tarStream, types.CopyToContainerOptions{})
	if err != nil {
		return errs.Wrap(err, errs.ErrRuntimeExec, "runtime.copy").WithResource(shortID(containerID))
	}
	return nil
}

// CopyDirTo tars srcDir and streams it into the container at dstPath.
func (c *Client) CopyDirTo(ctx context.Context, containerID, srcDir, dstPath string) error {
	tarStream, err := archive.TarWithOptions(srcDir, &archive.TarOptions{})
	if err != nil {
		return errs.Wrap(err, errs.ErrRuntimeExec, "runtime.copy.tar").WithResource(srcDir)
	}
	defer tarStream.Close()
	return c.CopyTo(ctx, containerID, dstPath, tarStream)
}

// Logs writes the container log tail to w.
func (c *Client) Logs(ctx context.Context, containerID string, follow bool, tail string, w io.Writer) error {
	rc, err := c.docker.ContainerLogs(ctx, containerID, containertypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: true,
		Tail:       tail,
	})
	if err != nil {
		return errs.Wrap(err, errs.ErrRuntimeInspect, "runtime.logs").WithResource(shortID(containerID))
	}
	defer rc.Close()
	_, err = stdcopy.StdCopy(w, w, rc)
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Recovery discovery
// ─────────────────────────────────────────────────────────────────────────────

// DiscoveredSandbox is a labelled container found when scanning the daemon,
// used to reconstruct registry records after a restart.
type DiscoveredSandbox struct {
	ContainerID   string
	Name          string
	EnvironmentID string
	Type          string
	Resource      string // compute | database
	NetworkID     string
	Running       bool
}

// DiscoverSandboxes lists every Enclave-labelled container on the daemon.
func (c *Client) DiscoverSandboxes(ctx context.Context) ([]DiscoveredSandbox, error) {
	ctrs, err := c.ListSandboxes(ctx, "")
	if err != nil {
		return nil, err
	}

	found := make([]DiscoveredSandbox, 0, len(ctrs))
	for _, ctr := range ctrs {
		d := DiscoveredSandbox{
			ContainerID:   ctr.ID,
			EnvironmentID: ctr.Labels[LabelEnvironment],
			Type:          ctr.Labels[LabelType],
			Resource:      ctr.Labels[LabelResource],
			Running:       ctr.State == "running",
		}
		if len(ctr.Names) > 0 {
			d.Name = strings.TrimPrefix(ctr.Names[0], "/")
		}
		if ctr.NetworkSettings != nil {
			for _, ep := range ctr.NetworkSettings.Networks {
				d.NetworkID = ep.NetworkID
				break
			}
		}
		found = append(found, d)
	}
	return found, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stats
// ─────────────────────────────────────────────────────────────────────────────

// Stats returns a single usage snapshot for the container.
func (c *Client) Stats(ctx context.Context, containerID string) (v1.EnvMetrics, error) {
	resp, err := c.docker.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return v1.EnvMetrics{}, errs.Wrap(err, errs.ErrRuntimeInspect, "runtime.stats").WithResource(shortID(containerID))
	}
	defer resp.Body.Close()

	var raw types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return v1.EnvMetrics{}, err
	}

	// CPU percent calculation
	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage - raw.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(raw.CPUStats.SystemUsage - raw.PreCPUStats.SystemUsage)
	numCPU := float64(raw.CPUStats.OnlineCPUs)
	if numCPU == 0 {
		numCPU = float64(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}
	cpuPercent := 0.0
	if sysDelta > 0 && cpuDelta > 0 {
		cpuPercent = (cpuDelta / sysDelta) * numCPU * 100.0
	}

	memPercent := 0.0
	if raw.MemoryStats.Limit > 0 {
		memPercent = float64(raw.MemoryStats.Usage) / float64(raw.MemoryStats.Limit) * 100.0
	}

	var rx, tx int64
	for _, n := range raw.Networks {
		rx += int64(n.RxBytes)
		tx += int64(n.TxBytes)
	}

	var diskRead, diskWrite int64
	for _, io := range raw.BlkioStats.IoServiceBytesRecursive {
		switch io.Op {
		case "read", "Read":
			diskRead += int64(io.Value)
		case "write", "Write":
			diskWrite += int64(io.Value)
		}
	}

	return v1.EnvMetrics{
		CPUPercent:     cpuPercent,
		MemoryPercent:  memPercent,
		MemoryBytes:    int64(raw.MemoryStats.Usage),
		NetRxBytes:     rx,
		NetTxBytes:     tx,
		DiskReadBytes:  diskRead,
		DiskWriteBytes: diskWrite,
		SampledAt:      time.Now().UTC(),
	}, nil
}

// shortID trims a container/network id for log output.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
