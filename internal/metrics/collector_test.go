package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/events"
	"github.com/f9-o/enclave/internal/registry"
)

// fakeRuntime serves scripted stats responses.
type fakeRuntime struct {
	mu    sync.Mutex
	stats v1.EnvMetrics
	err   error
	calls int
}

func (f *fakeRuntime) Stats(ctx context.Context, containerID string) (v1.EnvMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return v1.EnvMetrics{}, f.err
	}
	return f.stats, nil
}

func (f *fakeRuntime) set(m v1.EnvMetrics, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats, f.err = m, err
}

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newTestCollector(t *testing.T) (*Collector, *fakeRuntime, registry.Store, *events.Bus) {
	t.Helper()
	rt := &fakeRuntime{}
	store := registry.NewMemStore()
	bus := events.NewBus(16, testLogger())
	t.Cleanup(bus.Close)
	c := NewCollector(rt, store, bus, time.Hour, testLogger())
	t.Cleanup(c.Stop)
	return c, rt, store, bus
}

func putEnv(t *testing.T, store registry.Store, id string) v1.Environment {
	t.Helper()
	env := v1.Environment{
		ID:      id,
		Type:    v1.TypeFeature,
		Status:  v1.StatusRunning,
		Handles: v1.ResourceHandles{ComputeID: "ctr-" + id},
	}
	require.NoError(t, store.PutEnvironment(env))
	return env
}

func TestSamplePersistsSnapshotAndPublishes(t *testing.T) {
	c, rt, store, bus := newTestCollector(t)
	env := putEnv(t, store, "env-1")
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	rt.set(v1.EnvMetrics{CPUPercent: 12.5, MemoryBytes: 64 << 20, SampledAt: time.Now().UTC()}, nil)

	assert.True(t, c.sample(context.Background(), env.ID, env.Handles.ComputeID))

	got, err := store.GetEnvironment(env.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.5, got.Metrics.CPUPercent)

	ev := <-sub.C
	assert.Equal(t, v1.EventEnvironmentMetrics, ev.Type)
	assert.Equal(t, env.ID, ev.EnvironmentID)
}

func TestSampleRetainsSnapshotOnStatsFailure(t *testing.T) {
	c, rt, store, _ := newTestCollector(t)
	env := putEnv(t, store, "env-1")

	rt.set(v1.EnvMetrics{CPUPercent: 40}, nil)
	require.True(t, c.sample(context.Background(), env.ID, env.Handles.ComputeID))

	// A transient failure must not blank out the last observation, and the
	// loop must keep going.
	rt.set(v1.EnvMetrics{}, fmt.Errorf("daemon timeout"))
	assert.True(t, c.sample(context.Background(), env.ID, env.Handles.ComputeID))

	got, err := store.GetEnvironment(env.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float64(40), got.Metrics.CPUPercent)
}

func TestSampleStopsWhenRecordGone(t *testing.T) {
	c, rt, store, _ := newTestCollector(t)
	rt.set(v1.EnvMetrics{CPUPercent: 5}, nil)

	require.NoError(t, store.DeleteEnvironment("env-1"))
	assert.False(t, c.sample(context.Background(), "env-1", "ctr-env-1"))
}

func TestSampleNeverResurrectsDeletedEnvironment(t *testing.T) {
	c, rt, store, _ := newTestCollector(t)
	env := putEnv(t, store, "env-1")
	rt.set(v1.EnvMetrics{CPUPercent: 5}, nil)

	require.True(t, c.sample(context.Background(), env.ID, env.Handles.ComputeID))

	// A delete landing between two samples must stop the loop without the
	// stale record being written back.
	require.NoError(t, store.DeleteEnvironment(env.ID))
	assert.False(t, c.sample(context.Background(), env.ID, env.Handles.ComputeID))

	got, err := store.GetEnvironment(env.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTrackIsIdempotentAndUntrackStops(t *testing.T) {
	c, rt, store, _ := newTestCollector(t)
	env := putEnv(t, store, "env-1")
	rt.set(v1.EnvMetrics{CPUPercent: 1}, nil)

	ctx := context.Background()
	c.Track(ctx, env)
	c.Track(ctx, env)

	c.mu.Lock()
	assert.Len(t, c.cancels, 1)
	c.mu.Unlock()

	c.Untrack(env.ID)
	c.Untrack(env.ID) // no-op

	c.mu.Lock()
	assert.Empty(t, c.cancels)
	c.mu.Unlock()
}

func TestAggregateSumsAcrossEnvironments(t *testing.T) {
	c, _, store, _ := newTestCollector(t)

	a := putEnv(t, store, "env-a")
	a.Metrics = v1.EnvMetrics{CPUPercent: 10, MemoryBytes: 100, NetRxBytes: 5, NetTxBytes: 7}
	require.NoError(t, store.PutEnvironment(a))

	b := putEnv(t, store, "env-b")
	b.Metrics = v1.EnvMetrics{CPUPercent: 30, MemoryBytes: 200, DiskReadBytes: 11, DiskWriteBytes: 13}
	require.NoError(t, store.PutEnvironment(b))

	report, err := c.Aggregate()
	require.NoError(t, err)

	assert.Len(t, report.Environments, 2)
	assert.Equal(t, float64(40), report.Totals.CPUPercent)
	assert.Equal(t, int64(300), report.Totals.MemoryBytes)
	assert.Equal(t, int64(5), report.Totals.NetRxBytes)
	assert.Equal(t, int64(7), report.Totals.NetTxBytes)
	assert.Equal(t, int64(11), report.Totals.DiskReadBytes)
	assert.Equal(t, int64(13), report.Totals.DiskWriteBytes)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestAggregateEmptyRegistry(t *testing.T) {
	c, _, _, _ := newTestCollector(t)

	report, err := c.Aggregate()
	require.NoError(t, err)
	assert.Empty(t, report.Environments)
	assert.Zero(t, report.Totals.CPUPercent)
}
