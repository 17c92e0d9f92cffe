// Teardown: stop tracking, release runtime resources, drop the registry
// record. Deleting an unknown environment is a no-op.
package orchestrator

import (
	"context"
	"strings"
	"time"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/core/plugin"
	"github.com/f9-o/enclave/pkg/errs"
)

// Delete tears an environment down. Resource removal is best-effort: a
// failure on one resource is logged and teardown continues, and the registry
// record is always removed so a half-dead environment cannot linger in
// listings. Deleting an id that does not exist returns nil.
func (m *Manager) Delete(ctx context.Context, id string) error {
	env, err := m.store.GetEnvironment(id)
	if err != nil {
		return errs.Wrap(err, errs.ErrStoreRead, "delete.lookup").WithResource(id)
	}
	if env == nil {
		m.log.Debug("delete: environment not found, nothing to do", "environment", id)
		return nil
	}

	m.log.Info("delete.start", "environment", id)
	m.untrack(id)

	if env.Handles.ComputeID != "" {
		if err := m.runtime.StopSandbox(ctx, env.Handles.ComputeID, true); err != nil {
			m.log.Warn("delete: compute removal failed", "environment", id, "err", err)
		}
	}
	if env.Handles.DatabaseID != "" {
		if err := m.runtime.StopSandbox(ctx, env.Handles.DatabaseID, true); err != nil {
			m.log.Warn("delete: database removal failed", "environment", id, "err", err)
		}
	}
	if env.Handles.NetworkID != "" {
		if err := m.runtime.RemoveNetwork(ctx, env.Handles.NetworkID); err != nil {
			m.log.Warn("delete: network removal failed", "environment", id, "err", err)
		}
	}

	if err := m.store.DeleteEnvironment(id); err != nil {
		return errs.Wrap(err, errs.ErrStoreWrite, "delete.deregister").WithResource(id)
	}

	env.Status = v1.StatusDeleted
	m.bus.Publish(v1.Event{
		Type:          v1.EventEnvironmentDeleted,
		EnvironmentID: id,
		Payload:       *env,
	})
	m.fire(ctx, plugin.HookEnvironmentDelete, v1.HookContext{Environment: env})
	m.log.Audit(logger.AuditEntry{
		Timestamp:   time.Now().UTC(),
		Op:          "delete",
		Environment: id,
		Result:      "success",
	})

	m.log.Info("delete.complete", "environment", id)
	return nil
}

// CleanupStale deletes experimental environments older than staleness.
// Other types are never reclaimed automatically. Per-environment failures are
// logged and the sweep continues; the reclaimed ids are returned.
func (m *Manager) CleanupStale(ctx context.Context, staleness time.Duration) ([]string, error) {
	envs, err := m.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-staleness)
	var reclaimed []string
	for _, env := range envs {
		if env.Type != v1.TypeExperimental {
			continue
		}
		if env.CreatedAt.After(cutoff) {
			continue
		}

		m.log.Info("cleanup: reclaiming stale experimental environment",
			"environment", env.ID,
			"age", time.Since(env.CreatedAt).Round(time.Minute),
		)
		if err := m.Delete(ctx, env.ID); err != nil {
			m.log.Warn("cleanup: delete failed", "environment", env.ID, "err", err)
			continue
		}
		reclaimed = append(reclaimed, env.ID)
	}

	if len(reclaimed) > 0 {
		m.log.Audit(logger.AuditEntry{
			Timestamp: time.Now().UTC(),
			Op:        "cleanup",
			Result:    "success",
			Detail:    "reclaimed " + strings.Join(reclaimed, ", "),
		})
	}
	return reclaimed, nil
}
