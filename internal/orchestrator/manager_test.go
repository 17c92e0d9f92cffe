package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/config"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/events"
	"github.com/f9-o/enclave/internal/metrics"
	"github.com/f9-o/enclave/internal/registry"
	"github.com/f9-o/enclave/internal/runtime"
	"github.com/f9-o/enclave/pkg/errs"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fake runtime
// ─────────────────────────────────────────────────────────────────────────────

// fakeRuntime is an in-memory Runtime with failure injection.
type fakeRuntime struct {
	mu        sync.Mutex
	counter   int
	networks  map[string]string              // id → name
	sandboxes map[string]runtime.SandboxSpec // id → spec
	stopped   map[string]bool                // container id → not running

	failSandboxCreate bool
	failNetworkRemove bool
	failStats         bool
	execResults       map[string]runtime.ExecResult // joined cmd → result
	execErr           error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		networks:    make(map[string]string),
		sandboxes:   make(map[string]runtime.SandboxSpec),
		stopped:     make(map[string]bool),
		execResults: make(map[string]runtime.ExecResult),
	}
}

func (f *fakeRuntime) Ping(ctx context.Context) error { return nil }

func (f *fakeRuntime) CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	id := fmt.Sprintf("net-%d", f.counter)
	f.networks[id] = name
	return id, nil
}

func (f *fakeRuntime) RemoveNetwork(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNetworkRemove {
		return fmt.Errorf("network %s has active endpoints", id)
	}
	delete(f.networks, id)
	return nil
}

func (f *fakeRuntime) CreateSandbox(ctx context.Context, spec runtime.SandboxSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSandboxCreate {
		return "", fmt.Errorf("image pull failed")
	}
	f.counter++
	id := fmt.Sprintf("ctr-%d", f.counter)
	f.sandboxes[id] = spec
	return id, nil
}

func (f *fakeRuntime) StopSandbox(ctx context.Context, id string, remove bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if remove {
		delete(f.sandboxes, id)
	}
	return nil
}

func (f *fakeRuntime) Exec(ctx context.Context, containerID string, cmd []string, workDir string) (runtime.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return runtime.ExecResult{}, f.execErr
	}
	if res, ok := f.execResults[strings.Join(cmd, " ")]; ok {
		return res, nil
	}
	return runtime.ExecResult{ExitCode: 0, Output: "ok"}, nil
}

func (f *fakeRuntime) CopyDirTo(ctx context.Context, containerID, srcDir, dstPath string) error {
	return nil
}

func (f *fakeRuntime) InspectRunning(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sandboxes[id]
	return ok && !f.stopped[id], nil
}

func (f *fakeRuntime) Stats(ctx context.Context, containerID string) (v1.EnvMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStats {
		return v1.EnvMetrics{}, fmt.Errorf("stats unavailable")
	}
	return v1.EnvMetrics{CPUPercent: 1, SampledAt: time.Now().UTC()}, nil
}

func (f *fakeRuntime) DiscoverSandboxes(ctx context.Context) ([]runtime.DiscoveredSandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []runtime.DiscoveredSandbox
	for id, spec := range f.sandboxes {
		out = append(out, runtime.DiscoveredSandbox{
			ContainerID:   id,
			Name:          spec.Name,
			EnvironmentID: spec.Labels[runtime.LabelEnvironment],
			Type:          spec.Labels[runtime.LabelType],
			Resource:      spec.Labels[runtime.LabelResource],
			NetworkID:     spec.NetworkID,
			Running:       !f.stopped[id],
		})
	}
	return out, nil
}

func (f *fakeRuntime) Logs(ctx context.Context, containerID string, follow bool, tail string, w io.Writer) error {
	_, err := io.WriteString(w, "log line\n")
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Test fixture
// ─────────────────────────────────────────────────────────────────────────────

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Promote.Domain = "test.internal"
	cfg.Environments.DefaultImage = "node:20-alpine"
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *fakeRuntime, registry.Store, *events.Bus) {
	t.Helper()
	rt := newFakeRuntime()
	store := registry.NewMemStore()
	log := testLogger()
	bus := events.NewBus(8, log)
	mgr := NewManager(rt, store, bus, nil, nil, testConfig(), log)
	return mgr, rt, store, bus
}

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

func TestCreateRegistersRunningEnvironment(t *testing.T) {
	mgr, rt, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "checkout", v1.TypeFeature, v1.EnvironmentConfig{})
	require.NoError(t, err)
	require.NotNil(t, env)

	assert.Equal(t, v1.StatusRunning, env.Status)
	assert.True(t, strings.HasPrefix(env.ID, "feature-"))
	assert.NotEmpty(t, env.Handles.ComputeID)
	assert.NotEmpty(t, env.Handles.NetworkID)
	assert.Empty(t, env.Handles.DatabaseID)

	// Round-trip through the registry
	got, err := store.GetEnvironment(env.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, "checkout", got.Name)

	// Sandbox carries identity env vars and labels
	spec := rt.sandboxes[env.Handles.ComputeID]
	assert.Equal(t, env.ID, spec.Env[EnvVarID])
	assert.Equal(t, "feature", spec.Env[EnvVarType])
	assert.Equal(t, env.ID, spec.Labels[runtime.LabelEnvironment])
}

func TestCreateIDsAreUniqueUnderRapidCalls(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)

	// Back-to-back creates land in the same millisecond; every one must get
	// its own id and its own registry record.
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		env, err := mgr.Create(context.Background(), "burst", v1.TypeFeature, v1.EnvironmentConfig{})
		require.NoError(t, err)
		assert.False(t, seen[env.ID], "duplicate id %s", env.ID)
		seen[env.ID] = true
	}

	envs, err := store.ListEnvironments()
	require.NoError(t, err)
	assert.Len(t, envs, 10)
}

func TestCreateQuotaDefaultsPerType(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "spike", v1.TypeExperimental, v1.EnvironmentConfig{})
	require.NoError(t, err)
	assert.Equal(t, "0.25", env.Quota.CPU)
	assert.Equal(t, "256m", env.Quota.Memory)
}

func TestCreateQuotaPartialOverride(t *testing.T) {
	mgr, rt, _, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "spike", v1.TypeExperimental, v1.EnvironmentConfig{
		Resources: &v1.ResourceOverrides{CPU: "0.5"},
	})
	require.NoError(t, err)

	// Overridden CPU, default memory
	assert.Equal(t, "0.5", env.Quota.CPU)
	assert.Equal(t, "256m", env.Quota.Memory)

	spec := rt.sandboxes[env.Handles.ComputeID]
	assert.Equal(t, int64(0.5*1e9), spec.NanoCPUs)
	assert.Equal(t, int64(256*1024*1024), spec.MemoryBytes)
}

func TestCreateWithDatabase(t *testing.T) {
	mgr, rt, _, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "pre-release", v1.TypeStaging, v1.EnvironmentConfig{
		Database: &v1.DatabaseConfig{Engine: "postgres"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, env.Handles.DatabaseID)

	spec := rt.sandboxes[env.Handles.DatabaseID]
	assert.Equal(t, "postgres:16-alpine", spec.Image)
	assert.Equal(t, "database", spec.Labels[runtime.LabelResource])
	assert.NotEmpty(t, spec.Env["POSTGRES_PASSWORD"])
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)

	_, err := mgr.Create(context.Background(), "Bad_Name!", v1.TypeFeature, v1.EnvironmentConfig{})
	assert.True(t, errs.IsCode(err, errs.ErrInvalidInput))

	_, err = mgr.Create(context.Background(), "ok-name", v1.EnvironmentType("production"), v1.EnvironmentConfig{})
	assert.True(t, errs.IsCode(err, errs.ErrInvalidInput))

	envs, err := store.ListEnvironments()
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestCreateRollsBackOnProvisioningFailure(t *testing.T) {
	mgr, rt, store, _ := newTestManager(t)
	rt.failSandboxCreate = true

	_, err := mgr.Create(context.Background(), "doomed", v1.TypeFeature, v1.EnvironmentConfig{})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.ErrProvisioningFailed))

	// No record registered, no network left behind
	envs, lerr := store.ListEnvironments()
	require.NoError(t, lerr)
	assert.Empty(t, envs)
	assert.Empty(t, rt.networks)

	ee := errs.AsEnclave(err)
	require.NotNil(t, ee)
	assert.False(t, ee.CleanupIncomplete)
}

func TestCreateFlagsIncompleteCleanup(t *testing.T) {
	mgr, rt, store, _ := newTestManager(t)
	rt.failSandboxCreate = true
	rt.failNetworkRemove = true

	_, err := mgr.Create(context.Background(), "doomed", v1.TypeFeature, v1.EnvironmentConfig{})
	require.Error(t, err)

	ee := errs.AsEnclave(err)
	require.NotNil(t, ee)
	assert.True(t, ee.CleanupIncomplete)

	envs, lerr := store.ListEnvironments()
	require.NoError(t, lerr)
	assert.Empty(t, envs)
}

// ─────────────────────────────────────────────────────────────────────────────
// Deploy
// ─────────────────────────────────────────────────────────────────────────────

func TestDeployRecordsCompletedSteps(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "app", v1.TypeFeature, v1.EnvironmentConfig{})
	require.NoError(t, err)

	dep, err := mgr.Deploy(context.Background(), env.ID, t.TempDir(), v1.DeployConfig{})
	require.NoError(t, err)
	assert.Equal(t, v1.DeployCompleted, dep.Status)

	names := make([]string, 0, len(dep.Steps))
	for _, s := range dep.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"copy", "install", "start"}, names)

	// Optional build step appears when configured
	dep2, err := mgr.Deploy(context.Background(), env.ID, t.TempDir(), v1.DeployConfig{
		Build: []string{"npm", "run", "build"},
	})
	require.NoError(t, err)
	assert.Len(t, dep2.Steps, 4)
	assert.Equal(t, "build", dep2.Steps[2].Name)

	history, err := store.ListDeployments(env.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestDeployFailureDoesNotAffectEnvironment(t *testing.T) {
	mgr, rt, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "app", v1.TypeFeature, v1.EnvironmentConfig{})
	require.NoError(t, err)

	rt.execResults["npm install --omit=dev"] = runtime.ExecResult{ExitCode: 1, Output: "ERESOLVE conflict"}

	dep, err := mgr.Deploy(context.Background(), env.ID, t.TempDir(), v1.DeployConfig{})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.ErrDeployFailed))
	require.NotNil(t, dep)
	assert.Equal(t, v1.DeployFailed, dep.Status)
	assert.NotEmpty(t, dep.Error)

	// Environment record untouched and still running
	got, err := store.GetEnvironment(env.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, v1.StatusRunning, got.Status)
}

func TestDeployUnknownEnvironment(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	_, err := mgr.Deploy(context.Background(), "feature-0", t.TempDir(), v1.DeployConfig{})
	assert.True(t, errs.IsCode(err, errs.ErrNotFound))
}

// ─────────────────────────────────────────────────────────────────────────────
// Promote
// ─────────────────────────────────────────────────────────────────────────────

func TestPromoteRecordsValidationAndURLs(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "checkout", v1.TypeStaging, v1.EnvironmentConfig{})
	require.NoError(t, err)

	prom, err := mgr.Promote(context.Background(), env.ID, PromoteOptions{})
	require.NoError(t, err)
	assert.True(t, prom.Validation.Passed)
	assert.Len(t, prom.Validation.Checks, 3)
	assert.Equal(t, "https://checkout.test.internal", prom.ProductionURL)
	assert.Equal(t, "https://checkout-prev.test.internal", prom.RollbackURL)

	proms, err := store.ListPromotions(env.ID)
	require.NoError(t, err)
	assert.Len(t, proms, 1)
}

func TestPromoteFailedValidationWritesNoRecord(t *testing.T) {
	mgr, rt, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "checkout", v1.TypeStaging, v1.EnvironmentConfig{})
	require.NoError(t, err)

	rt.execResults["npm test"] = runtime.ExecResult{ExitCode: 1, Output: "2 tests failed"}

	_, err = mgr.Promote(context.Background(), env.ID, PromoteOptions{})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.ErrValidationFailed))

	ee := errs.AsEnclave(err)
	require.NotNil(t, ee)
	require.Len(t, ee.Checks, 3)
	assert.False(t, ee.Checks[0].Passed)

	proms, err := store.ListPromotions(env.ID)
	require.NoError(t, err)
	assert.Empty(t, proms)
}

func TestPromoteSkipValidation(t *testing.T) {
	mgr, rt, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "checkout", v1.TypeStaging, v1.EnvironmentConfig{})
	require.NoError(t, err)

	// Failing tests must not matter when validation is skipped
	rt.execResults["npm test"] = runtime.ExecResult{ExitCode: 1, Output: "boom"}

	prom, err := mgr.Promote(context.Background(), env.ID, PromoteOptions{SkipValidation: true})
	require.NoError(t, err)
	assert.True(t, prom.Validation.Skipped)
	assert.False(t, prom.Validation.Passed)
	assert.Empty(t, prom.Validation.Checks)

	proms, err := store.ListPromotions(env.ID)
	require.NoError(t, err)
	assert.Len(t, proms, 1)
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

func TestDeleteReleasesResources(t *testing.T) {
	mgr, rt, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "gone", v1.TypeFeature, v1.EnvironmentConfig{
		Database: &v1.DatabaseConfig{Engine: "redis"},
	})
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(context.Background(), env.ID))

	got, err := store.GetEnvironment(env.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, rt.sandboxes)
	assert.Empty(t, rt.networks)
}

func TestDeleteIsIdempotent(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	assert.NoError(t, mgr.Delete(context.Background(), "feature-never-existed"))
	assert.NoError(t, mgr.Delete(context.Background(), "feature-never-existed"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Config update
// ─────────────────────────────────────────────────────────────────────────────

func TestUpdateConfigReplacesStoredConfig(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "app", v1.TypeFeature, v1.EnvironmentConfig{})
	require.NoError(t, err)

	next := env.Config
	next.Image = "node:22-alpine"
	next.Env = map[string]string{"FEATURE_FLAG": "on"}
	require.NoError(t, mgr.UpdateConfig(env.ID, next))

	got, err := store.GetEnvironment(env.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "node:22-alpine", got.Config.Image)
	assert.Equal(t, "on", got.Config.Env["FEATURE_FLAG"])
	assert.Equal(t, v1.StatusRunning, got.Status)
	assert.Equal(t, env.Handles, got.Handles)
}

func TestUpdateConfigUnknownEnvironment(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)

	err := mgr.UpdateConfig("feature-0", v1.EnvironmentConfig{Image: "node:22-alpine"})
	assert.True(t, errs.IsCode(err, errs.ErrNotFound))

	// Updating an unknown id must not create a record
	envs, lerr := store.ListEnvironments()
	require.NoError(t, lerr)
	assert.Empty(t, envs)
}

// ─────────────────────────────────────────────────────────────────────────────
// Cleanup sweep
// ─────────────────────────────────────────────────────────────────────────────

func TestCleanupStaleOnlyReclaimsOldExperimental(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)

	oldExp, err := mgr.Create(context.Background(), "old-spike", v1.TypeExperimental, v1.EnvironmentConfig{})
	require.NoError(t, err)
	freshExp, err := mgr.Create(context.Background(), "fresh-spike", v1.TypeExperimental, v1.EnvironmentConfig{})
	require.NoError(t, err)
	oldStaging, err := mgr.Create(context.Background(), "old-staging", v1.TypeStaging, v1.EnvironmentConfig{})
	require.NoError(t, err)

	// Age two of them past the threshold
	backdate(t, store, oldExp.ID, 48*time.Hour)
	backdate(t, store, oldStaging.ID, 48*time.Hour)

	reclaimed, err := mgr.CleanupStale(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{oldExp.ID}, reclaimed)

	// Stale staging and fresh experimental both survive
	remaining, err := store.ListEnvironments()
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, e := range remaining {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{freshExp.ID, oldStaging.ID}, ids)
}

func backdate(t *testing.T, store registry.Store, id string, by time.Duration) {
	t.Helper()
	env, err := store.GetEnvironment(id)
	require.NoError(t, err)
	require.NotNil(t, env)
	env.CreatedAt = env.CreatedAt.Add(-by)
	require.NoError(t, store.PutEnvironment(*env))
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

func TestLifecyclePublishesEvents(t *testing.T) {
	mgr, _, _, bus := newTestManager(t)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	env, err := mgr.Create(context.Background(), "observed", v1.TypeFeature, v1.EnvironmentConfig{})
	require.NoError(t, err)
	require.NoError(t, mgr.Delete(context.Background(), env.ID))

	created := <-sub.C
	assert.Equal(t, v1.EventEnvironmentCreated, created.Type)
	assert.Equal(t, env.ID, created.EnvironmentID)

	deleted := <-sub.C
	assert.Equal(t, v1.EventEnvironmentDeleted, deleted.Type)
}

// ─────────────────────────────────────────────────────────────────────────────
// Recovery
// ─────────────────────────────────────────────────────────────────────────────

func TestRecoverRebuildsRecordsFromRuntime(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)

	env, err := mgr.Create(context.Background(), "survivor", v1.TypeFeature, v1.EnvironmentConfig{})
	require.NoError(t, err)

	// Simulate a restart that lost the registry
	require.NoError(t, store.DeleteEnvironment(env.ID))

	recovered, err := mgr.Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, env.ID, recovered[0].ID)
	assert.True(t, recovered[0].Recovered)
	assert.Equal(t, v1.TypeFeature, recovered[0].Type)
	assert.Equal(t, env.Handles.ComputeID, recovered[0].Handles.ComputeID)

	got, err := store.GetEnvironment(env.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Second run finds nothing new
	again, err := mgr.Recover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRecoverSkipsMetricTrackingForStoppedSandboxes(t *testing.T) {
	rt := newFakeRuntime()
	store := registry.NewMemStore()
	log := testLogger()
	bus := events.NewBus(8, log)
	t.Cleanup(bus.Close)
	collector := metrics.NewCollector(rt, store, bus, time.Hour, log)
	t.Cleanup(collector.Stop)
	mgr := NewManager(rt, store, bus, collector, nil, testConfig(), log)

	// Two labelled containers with no registry record, one of them stopped
	rt.sandboxes["ctr-up"] = runtime.SandboxSpec{
		Name:      "enclave-feature-up",
		NetworkID: "net-1",
		Labels: map[string]string{
			runtime.LabelEnvironment: "feature-up",
			runtime.LabelType:        "feature",
			runtime.LabelResource:    "compute",
		},
	}
	rt.sandboxes["ctr-down"] = runtime.SandboxSpec{
		Name:      "enclave-feature-down",
		NetworkID: "net-2",
		Labels: map[string]string{
			runtime.LabelEnvironment: "feature-down",
			runtime.LabelType:        "feature",
			runtime.LabelResource:    "compute",
		},
	}
	rt.stopped["ctr-down"] = true

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	recovered, err := mgr.Recover(context.Background())
	require.NoError(t, err)
	assert.Len(t, recovered, 2) // both are registered regardless of state

	// Only the running sandbox resumes metric polling
	select {
	case ev := <-sub.C:
		assert.Equal(t, v1.EventEnvironmentMetrics, ev.Type)
		assert.Equal(t, "feature-up", ev.EnvironmentID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a metrics event for the running environment")
	}

	collector.Stop()
	for {
		select {
		case ev := <-sub.C:
			assert.NotEqual(t, "feature-down", ev.EnvironmentID)
		default:
			return
		}
	}
}
