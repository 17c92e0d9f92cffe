// Package metrics polls sandbox usage for every tracked environment and keeps
// the registry's last-observed snapshot current.
package metrics

import (
	"context"
	"sync"
	"time"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/events"
	"github.com/f9-o/enclave/internal/registry"
)

// DefaultInterval is the polling cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Runtime is the slice of the container runtime the collector needs.
type Runtime interface {
	Stats(ctx context.Context, containerID string) (v1.EnvMetrics, error)
}

// Collector runs one polling loop per tracked environment. A poll failure is
// logged and the previous snapshot retained; the loop keeps going.
type Collector struct {
	runtime  Runtime
	store    registry.Store
	bus      *events.Bus
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // environment id → loop cancel
}

// NewCollector constructs a Collector.
func NewCollector(rt Runtime, store registry.Store, bus *events.Bus, interval time.Duration, log *logger.Logger) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Collector{
		runtime:  rt,
		store:    store,
		bus:      bus,
		interval: interval,
		log:      log,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Track starts a polling loop for the environment. Tracking an already
// tracked id is a no-op.
func (c *Collector) Track(ctx context.Context, env v1.Environment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cancels[env.ID]; ok {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancels[env.ID] = cancel
	go c.poll(loopCtx, env.ID, env.Handles.ComputeID)

	c.log.Debug("metrics tracking started", "environment", env.ID)
}

// Untrack stops the polling loop for the environment id. No-op if untracked.
func (c *Collector) Untrack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[id]; ok {
		cancel()
		delete(c.cancels, id)
		c.log.Debug("metrics tracking stopped", "environment", id)
	}
}

// Stop cancels every polling loop.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
}

// poll is the per-environment loop. It samples immediately, then on every
// tick until cancelled or the registry record disappears.
func (c *Collector) poll(ctx context.Context, envID, computeID string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample(ctx, envID, computeID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.sample(ctx, envID, computeID) {
				c.Untrack(envID)
				return
			}
		}
	}
}

// sample takes one stats snapshot and persists it through an existence-checked
// update, so a delete that lands between the stats call and the write can
// never be overwritten by a stale record. Returns false when the environment
// record no longer exists and the loop should stop.
func (c *Collector) sample(ctx context.Context, envID, computeID string) bool {
	m, err := c.runtime.Stats(ctx, computeID)
	if err != nil {
		// Keep the previous snapshot; a transient stats failure must not
		// blank out the last known usage.
		c.log.Debug("metrics poll failed, retaining previous snapshot",
			"environment", envID,
			"err", err,
		)
		return true
	}

	found, err := c.store.UpdateEnvironment(envID, func(env *v1.Environment) {
		env.Metrics = m
	})
	if err != nil {
		c.log.Warn("metrics: registry write failed", "environment", envID, "err", err)
		return true
	}
	if !found {
		return false
	}

	c.bus.Publish(v1.Event{
		Type:          v1.EventEnvironmentMetrics,
		EnvironmentID: envID,
		Payload:       m,
	})
	return true
}

// Aggregate builds a usage report from the last-observed snapshots of every
// registered environment.
func (c *Collector) Aggregate() (v1.UsageReport, error) {
	envs, err := c.store.ListEnvironments()
	if err != nil {
		return v1.UsageReport{}, err
	}

	report := v1.UsageReport{
		GeneratedAt:  time.Now().UTC(),
		Environments: make(map[string]v1.EnvMetrics, len(envs)),
	}
	for _, env := range envs {
		report.Environments[env.ID] = env.Metrics
		report.Totals.CPUPercent += env.Metrics.CPUPercent
		report.Totals.MemoryBytes += env.Metrics.MemoryBytes
		report.Totals.NetRxBytes += env.Metrics.NetRxBytes
		report.Totals.NetTxBytes += env.Metrics.NetTxBytes
		report.Totals.DiskReadBytes += env.Metrics.DiskReadBytes
		report.Totals.DiskWriteBytes += env.Metrics.DiskWriteBytes
	}
	return report, nil
}
