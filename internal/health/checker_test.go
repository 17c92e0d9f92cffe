package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/registry"
)

// fakeRuntime reports scripted liveness per container id.
type fakeRuntime struct {
	pingErr    error
	pingCalls  int
	running    map[string]bool
	inspectErr map[string]error
}

func (f *fakeRuntime) Ping(ctx context.Context) error {
	f.pingCalls++
	return f.pingErr
}

func (f *fakeRuntime) InspectRunning(ctx context.Context, id string) (bool, error) {
	if err, ok := f.inspectErr[id]; ok {
		return false, err
	}
	return f.running[id], nil
}

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func putEnv(t *testing.T, store registry.Store, id, computeID string) {
	t.Helper()
	require.NoError(t, store.PutEnvironment(v1.Environment{
		ID:      id,
		Type:    v1.TypeFeature,
		Status:  v1.StatusRunning,
		Handles: v1.ResourceHandles{ComputeID: computeID},
	}))
}

func TestReportHealthyAndStoppedEnvironments(t *testing.T) {
	store := registry.NewMemStore()
	putEnv(t, store, "env-ok", "ctr-ok")
	putEnv(t, store, "env-dead", "ctr-dead")
	putEnv(t, store, "env-odd", "ctr-odd")

	rt := &fakeRuntime{
		running:    map[string]bool{"ctr-ok": true, "ctr-dead": false},
		inspectErr: map[string]error{"ctr-odd": fmt.Errorf("daemon timeout")},
	}
	checker := NewChecker(rt, store, testLogger())

	report, err := checker.Report(context.Background())
	require.NoError(t, err)
	assert.True(t, report.RuntimeReachable)
	require.Len(t, report.Environments, 3)

	byID := make(map[string]v1.EnvironmentHealth)
	for _, h := range report.Environments {
		byID[h.EnvironmentID] = h
	}

	ok := byID["env-ok"]
	assert.True(t, ok.Healthy)
	assert.Equal(t, "running", ok.Actual)
	assert.Equal(t, "running", ok.Expected)

	dead := byID["env-dead"]
	assert.False(t, dead.Healthy)
	assert.Equal(t, "stopped", dead.Actual)
	assert.NotEmpty(t, dead.Detail)

	odd := byID["env-odd"]
	assert.False(t, odd.Healthy)
	assert.Equal(t, "unknown", odd.Actual)
	assert.Contains(t, odd.Detail, "daemon timeout")
}

func TestReportEmptyRegistry(t *testing.T) {
	checker := NewChecker(&fakeRuntime{}, registry.NewMemStore(), testLogger())

	report, err := checker.Report(context.Background())
	require.NoError(t, err)
	assert.True(t, report.RuntimeReachable)
	assert.Empty(t, report.Environments)
	assert.False(t, report.CheckedAt.IsZero())
}

func TestPingWithRetrySucceedsFirstAttempt(t *testing.T) {
	rt := &fakeRuntime{}
	checker := NewChecker(rt, registry.NewMemStore(), testLogger())

	require.NoError(t, checker.PingWithRetry(context.Background(), 3))
	assert.Equal(t, 1, rt.pingCalls)
}

func TestPingWithRetryReturnsLastError(t *testing.T) {
	rt := &fakeRuntime{pingErr: fmt.Errorf("socket refused")}
	checker := NewChecker(rt, registry.NewMemStore(), testLogger())

	// Single attempt: no backoff sleeps in the failure path.
	err := checker.PingWithRetry(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket refused")
	assert.Equal(t, 1, rt.pingCalls)
}

func TestPingWithRetryHonoursCancellation(t *testing.T) {
	rt := &fakeRuntime{pingErr: fmt.Errorf("socket refused")}
	checker := NewChecker(rt, registry.NewMemStore(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := checker.PingWithRetry(ctx, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
