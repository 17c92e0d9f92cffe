// Deploy pipeline: copy source into the sandbox, then run the install,
// build and start steps sequentially. Every run is recorded as an immutable
// Deployment; a step failure fails the deployment but never the environment.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/core/plugin"
	"github.com/f9-o/enclave/pkg/errs"
)

// maxStepOutput caps the per-step output retained in the deployment record.
const maxStepOutput = 16 * 1024

// appLogFile receives the application's stdout/stderr inside the sandbox.
const appLogFile = "/tmp/enclave-app.log"

// deployStep is one named stage of the deploy pipeline.
type deployStep struct {
	name string
	run  func(context.Context) (string, error)
}

// Deploy pushes the application at srcDir into the environment's compute
// sandbox and runs the configured step sequence. Returns the recorded
// deployment; on a step failure it is returned alongside the error.
func (m *Manager) Deploy(ctx context.Context, envID, srcDir string, deployCfg v1.DeployConfig) (*v1.Deployment, error) {
	env, err := m.Get(envID)
	if err != nil {
		return nil, err
	}

	dep := v1.Deployment{
		ID:            uuid.NewString(),
		EnvironmentID: env.ID,
		Source:        srcDir,
		Status:        v1.DeployPending,
		StartedAt:     time.Now().UTC(),
	}
	if err := m.store.PutDeployment(dep); err != nil {
		return nil, errs.Wrap(err, errs.ErrStoreWrite, "deploy.record").WithResource(env.ID)
	}

	m.log.Info("deploy.start", "environment", env.ID, "deployment", dep.ID, "source", srcDir)

	install := deployCfg.Install
	if len(install) == 0 {
		install = v1.DefaultInstallCommand
	}
	start := deployCfg.Start
	if len(start) == 0 {
		start = v1.DefaultStartCommand
	}

	steps := []deployStep{
		{"copy", func(ctx context.Context) (string, error) {
			return "", m.runtime.CopyDirTo(ctx, env.Handles.ComputeID, srcDir, AppDir)
		}},
		{"install", func(ctx context.Context) (string, error) {
			return m.execStep(ctx, env.Handles.ComputeID, install)
		}},
	}
	if len(deployCfg.Build) > 0 {
		steps = append(steps, deployStep{"build", func(ctx context.Context) (string, error) {
			return m.execStep(ctx, env.Handles.ComputeID, deployCfg.Build)
		}})
	}
	steps = append(steps, deployStep{"start", func(ctx context.Context) (string, error) {
		return m.startApp(ctx, env.Handles.ComputeID, start)
	}})

	for _, step := range steps {
		started := time.Now().UTC()
		out, stepErr := step.run(ctx)

		result := v1.StepResult{
			Name:       step.name,
			Output:     truncate(out, maxStepOutput),
			DurationMS: time.Since(started).Milliseconds(),
			StartedAt:  started,
		}
		if stepErr != nil {
			result.Error = stepErr.Error()
		}
		dep.Steps = append(dep.Steps, result)

		if stepErr != nil {
			return m.failDeployment(ctx, dep, step.name, stepErr)
		}
		m.log.Info("deploy.step", "environment", env.ID, "step", step.name, "duration_ms", result.DurationMS)
	}

	dep.Status = v1.DeployCompleted
	dep.CompletedAt = time.Now().UTC()
	if err := m.store.PutDeployment(dep); err != nil {
		return nil, errs.Wrap(err, errs.ErrStoreWrite, "deploy.record").WithResource(env.ID)
	}

	m.bus.Publish(v1.Event{
		Type:          v1.EventDeploymentCompleted,
		EnvironmentID: env.ID,
		Payload:       dep,
	})
	m.fire(ctx, plugin.HookDeploy, v1.HookContext{Environment: env, Deployment: &dep})
	m.log.Audit(logger.AuditEntry{
		Timestamp:   time.Now().UTC(),
		Op:          "deploy",
		Environment: env.ID,
		Result:      "success",
	})

	m.log.Info("deploy.complete", "environment", env.ID, "deployment", dep.ID)
	return &dep, nil
}

// failDeployment finalizes a failed deployment record. The environment keeps
// running; only the deployment is marked failed.
func (m *Manager) failDeployment(ctx context.Context, dep v1.Deployment, step string, cause error) (*v1.Deployment, error) {
	dep.Status = v1.DeployFailed
	dep.Error = cause.Error()
	dep.CompletedAt = time.Now().UTC()
	if err := m.store.PutDeployment(dep); err != nil {
		m.log.Warn("deploy: failed record persist", "deployment", dep.ID, "err", err)
	}

	m.bus.Publish(v1.Event{
		Type:          v1.EventDeploymentCompleted,
		EnvironmentID: dep.EnvironmentID,
		Payload:       dep,
	})
	m.log.Audit(logger.AuditEntry{
		Timestamp:   time.Now().UTC(),
		Op:          "deploy",
		Environment: dep.EnvironmentID,
		Result:      "failure",
		Detail:      fmt.Sprintf("step %s: %v", step, cause),
	})

	return &dep, errs.Wrap(cause, errs.ErrDeployFailed, "deploy."+step).
		WithResource(dep.EnvironmentID).
		WithAdvice(fmt.Sprintf("Step %q failed. Run: enclave logs %s", step, dep.EnvironmentID))
}

// execStep runs one deploy command in the sandbox and returns its output.
// A non-zero exit is an error.
func (m *Manager) execStep(ctx context.Context, containerID string, cmd []string) (string, error) {
	res, err := m.runtime.Exec(ctx, containerID, cmd, AppDir)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return res.Output, fmt.Errorf("command %q exited with code %d: %s",
			strings.Join(cmd, " "), res.ExitCode, truncate(res.Output, 512))
	}
	return res.Output, nil
}

// startApp launches the application in the background so the exec returns
// while the process keeps running inside the sandbox.
func (m *Manager) startApp(ctx context.Context, containerID string, cmd []string) (string, error) {
	shell := fmt.Sprintf("nohup %s >%s 2>&1 & sleep 1", strings.Join(cmd, " "), appLogFile)
	return m.execStep(ctx, containerID, []string{"sh", "-c", shell})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}
