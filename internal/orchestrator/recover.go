// Startup recovery: rebuild registry records from labelled containers found
// on the runtime, and resume metric tracking for everything registered.
package orchestrator

import (
	"context"
	"strings"
	"time"

	v1 "github.com/f9-o/enclave/api/v1"
)

// Recover reconciles the registry against the runtime after a restart.
// Containers labelled with an environment id that has no registry record are
// reconstructed as recovered records; known environments resume metric
// tracking. Reconstructed environments whose compute sandbox is stopped are
// registered but not polled — the health probe reports the discrepancy.
// Returns the reconstructed environments.
func (m *Manager) Recover(ctx context.Context) ([]v1.Environment, error) {
	known, err := m.List()
	if err != nil {
		return nil, err
	}
	knownIDs := make(map[string]bool, len(known))
	for _, env := range known {
		knownIDs[env.ID] = true
		m.track(env)
	}

	found, err := m.runtime.DiscoverSandboxes(ctx)
	if err != nil {
		return nil, err
	}

	// Group discovered containers by environment id
	byEnv := make(map[string][]registryCandidate)
	for _, d := range found {
		if d.EnvironmentID == "" || knownIDs[d.EnvironmentID] {
			continue
		}
		byEnv[d.EnvironmentID] = append(byEnv[d.EnvironmentID], registryCandidate{d.ContainerID, d.Name, d.Type, d.Resource, d.NetworkID, d.Running})
	}

	var recovered []v1.Environment
	for envID, sandboxes := range byEnv {
		env := v1.Environment{
			ID:        envID,
			Status:    v1.StatusRunning,
			CreatedAt: time.Now().UTC(),
			Recovered: true,
		}

		computeRunning := true
		for _, sb := range sandboxes {
			switch sb.resource {
			case "database":
				env.Handles.DatabaseID = sb.containerID
			default:
				env.Handles.ComputeID = sb.containerID
				env.Handles.NetworkID = sb.networkID
				env.Type = v1.EnvironmentType(sb.envType)
				env.Name = strings.TrimPrefix(sb.name, "enclave-")
				computeRunning = sb.running
			}
		}

		if env.Quota == (v1.ResourceQuota{}) && v1.IsKnownType(env.Type) {
			env.Quota = m.cfg.QuotaFor(env.Type)
		}

		if err := m.store.PutEnvironment(env); err != nil {
			m.log.Warn("recover: register failed", "environment", envID, "err", err)
			continue
		}
		if computeRunning {
			m.track(env)
		} else {
			m.log.Warn("recovered environment's compute sandbox is not running",
				"environment", envID)
		}
		recovered = append(recovered, env)
		m.log.Info("recovered environment from runtime", "environment", envID, "type", env.Type)
	}

	if len(recovered) > 0 {
		m.log.Info("recovery complete", "recovered", len(recovered), "known", len(known))
	}
	return recovered, nil
}

// registryCandidate is one discovered container pending reconstruction.
type registryCandidate struct {
	containerID string
	name        string
	envType     string
	resource    string
	networkID   string
	running     bool
}
