// Environment provisioning: network → compute sandbox → optional database,
// with rollback of partial resources on failure.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/core/plugin"
	"github.com/f9-o/enclave/internal/runtime"
	"github.com/f9-o/enclave/pkg/errs"
	"github.com/f9-o/enclave/pkg/netutil"
)

// Sandbox environment variables injected into every compute container.
const (
	EnvVarID   = "ENCLAVE_ENV_ID"
	EnvVarType = "ENCLAVE_ENV_TYPE"
)

// sandboxKeepAlive keeps the compute container alive between deploys.
var sandboxKeepAlive = []string{"sleep", "infinity"}

// AppDir is the working directory inside the compute sandbox.
const AppDir = "/app"

// databaseImages maps supported database engines to their default images.
var databaseImages = map[string]string{
	"postgres": "postgres:16-alpine",
	"mysql":    "mysql:8",
	"redis":    "redis:7-alpine",
}

// Create provisions a new environment: isolated network, resource-limited
// compute sandbox, and an optional database sandbox. On any provisioning
// failure the already-created resources are rolled back and no record is
// registered; if the rollback itself fails the returned error carries the
// cleanup-incomplete flag.
func (m *Manager) Create(ctx context.Context, name string, envType v1.EnvironmentType, envCfg v1.EnvironmentConfig) (*v1.Environment, error) {
	if !netutil.IsValidEnvironmentName(name) {
		return nil, errs.Newf(errs.ErrInvalidInput, "create.validate", "invalid environment name %q", name).
			WithAdvice("Names must be lowercase alphanumeric with hyphens, max 63 chars")
	}
	if !v1.IsKnownType(envType) {
		return nil, errs.Newf(errs.ErrInvalidInput, "create.validate", "unknown environment type %q", envType).
			WithAdvice(fmt.Sprintf("Valid types: %v", v1.KnownTypes))
	}
	if envCfg.Database != nil {
		if _, ok := databaseImages[envCfg.Database.Engine]; !ok && envCfg.Database.Image == "" {
			return nil, errs.Newf(errs.ErrInvalidInput, "create.validate", "unsupported database engine %q", envCfg.Database.Engine).
				WithAdvice("Supported engines: postgres, mysql, redis")
		}
	}

	// Millisecond timestamp keeps ids sortable by creation; the uuid fragment
	// keeps same-millisecond creates distinct.
	id := fmt.Sprintf("%s-%d-%s", envType, time.Now().UnixMilli(), uuid.NewString()[:8])
	quota := m.resolveQuota(envType, envCfg.Resources)

	nanoCPUs, err := quota.NanoCPUs()
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrInvalidInput, "create.quota")
	}
	memBytes, err := quota.MemoryBytes()
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrInvalidInput, "create.quota")
	}

	m.log.Info("create.start", "environment", id, "name", name, "type", envType,
		"cpu", quota.CPU, "memory", quota.Memory)

	labels := map[string]string{
		runtime.LabelEnvironment: id,
		runtime.LabelType:        string(envType),
	}

	var handles v1.ResourceHandles

	// 1. Isolated network
	netName := "enclave-net-" + id
	handles.NetworkID, err = m.runtime.CreateNetwork(ctx, netName, labels)
	if err != nil {
		return nil, m.provisioningFailed(ctx, id, "create.provision.network", err, handles)
	}

	// 2. Compute sandbox
	image := envCfg.Image
	if image == "" {
		image = m.cfg.SandboxImage()
	}
	env := map[string]string{
		EnvVarID:   id,
		EnvVarType: string(envType),
	}
	for k, v := range envCfg.Env {
		env[k] = v
	}

	handles.ComputeID, err = m.runtime.CreateSandbox(ctx, runtime.SandboxSpec{
		Name:        "enclave-" + id,
		Image:       image,
		Env:         env,
		Labels:      withResourceLabel(labels, "compute"),
		NetworkID:   handles.NetworkID,
		NetworkName: netName,
		Cmd:         sandboxKeepAlive,
		WorkingDir:  AppDir,
		NanoCPUs:    nanoCPUs,
		MemoryBytes: memBytes,
		AppPort:     appPort,
	})
	if err != nil {
		return nil, m.provisioningFailed(ctx, id, "create.provision.compute", err, handles)
	}

	// 3. Optional database sandbox
	if envCfg.Database != nil {
		handles.DatabaseID, err = m.createDatabase(ctx, id, netName, handles.NetworkID, labels, *envCfg.Database)
		if err != nil {
			return nil, m.provisioningFailed(ctx, id, "create.provision.database", err, handles)
		}
	}

	record := v1.Environment{
		ID:        id,
		Name:      name,
		Type:      envType,
		Status:    v1.StatusRunning,
		Handles:   handles,
		Quota:     quota,
		Config:    envCfg,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.PutEnvironment(record); err != nil {
		return nil, m.provisioningFailed(ctx, id, "create.register", err, handles)
	}

	m.track(record)
	m.bus.Publish(v1.Event{
		Type:          v1.EventEnvironmentCreated,
		EnvironmentID: id,
		Payload:       record,
	})
	m.fire(ctx, plugin.HookEnvironmentCreate, v1.HookContext{Environment: &record})
	m.log.Audit(logger.AuditEntry{
		Timestamp:   time.Now().UTC(),
		Op:          "create",
		Environment: id,
		Result:      "success",
	})

	m.log.Info("create.complete", "environment", id)
	return &record, nil
}

// createDatabase provisions the database sandbox on the environment network.
func (m *Manager) createDatabase(ctx context.Context, envID, netName, netID string, labels map[string]string, db v1.DatabaseConfig) (string, error) {
	image := db.Image
	if image == "" {
		image = databaseImages[db.Engine]
	}

	dbName := db.Name
	if dbName == "" {
		dbName = "app"
	}
	user := db.User
	if user == "" {
		user = "app"
	}
	password := db.Password
	if password == "" {
		password = "enclave"
	}

	env := map[string]string{}
	switch db.Engine {
	case "postgres":
		env["POSTGRES_DB"] = dbName
		env["POSTGRES_USER"] = user
		env["POSTGRES_PASSWORD"] = password
	case "mysql":
		env["MYSQL_DATABASE"] = dbName
		env["MYSQL_USER"] = user
		env["MYSQL_PASSWORD"] = password
		env["MYSQL_ROOT_PASSWORD"] = password
	}

	return m.runtime.CreateSandbox(ctx, runtime.SandboxSpec{
		Name:        "enclave-" + envID + "-db",
		Image:       image,
		Env:         env,
		Labels:      withResourceLabel(labels, "database"),
		NetworkID:   netID,
		NetworkName: netName,
	})
}

// provisioningFailed rolls back partially-created resources in reverse order
// and builds the returned error. A failed rollback marks the error so callers
// know resources may have leaked.
func (m *Manager) provisioningFailed(ctx context.Context, id, op string, cause error, handles v1.ResourceHandles) error {
	m.log.Warn("provisioning failed, rolling back", "environment", id, "op", op, "err", cause)

	e := errs.Wrap(cause, errs.ErrProvisioningFailed, op).WithResource(id)

	cleanupFailed := false
	if handles.DatabaseID != "" {
		if err := m.runtime.StopSandbox(ctx, handles.DatabaseID, true); err != nil {
			m.log.Error("rollback: database removal failed", "environment", id, "err", err)
			cleanupFailed = true
		}
	}
	if handles.ComputeID != "" {
		if err := m.runtime.StopSandbox(ctx, handles.ComputeID, true); err != nil {
			m.log.Error("rollback: compute removal failed", "environment", id, "err", err)
			cleanupFailed = true
		}
	}
	if handles.NetworkID != "" {
		if err := m.runtime.RemoveNetwork(ctx, handles.NetworkID); err != nil {
			m.log.Error("rollback: network removal failed", "environment", id, "err", err)
			cleanupFailed = true
		}
	}

	if cleanupFailed {
		e = e.WithCleanupIncomplete().
			WithAdvice("Some resources could not be removed — inspect the runtime for leftovers labelled " + runtime.LabelEnvironment + "=" + id)
	}

	m.log.Audit(logger.AuditEntry{
		Timestamp:   time.Now().UTC(),
		Op:          "create",
		Environment: id,
		Result:      "failure",
		Detail:      cause.Error(),
	})
	return e
}

// resolveQuota applies creation-time overrides on top of the type quota.
func (m *Manager) resolveQuota(t v1.EnvironmentType, overrides *v1.ResourceOverrides) v1.ResourceQuota {
	quota := m.cfg.QuotaFor(t)
	if overrides != nil {
		if overrides.CPU != "" {
			quota.CPU = overrides.CPU
		}
		if overrides.Memory != "" {
			quota.Memory = overrides.Memory
		}
	}
	return quota
}

// withResourceLabel copies labels and adds the resource role.
func withResourceLabel(labels map[string]string, role string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[runtime.LabelResource] = role
	return out
}
