// Package scheduler runs Enclave's periodic background jobs: the stale
// environment cleanup sweep, the usage report, and the health probe. Each job
// ticks independently and every run is bounded by the scheduler context, so
// cancelling it stops all jobs mid-flight.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/health"
	"github.com/f9-o/enclave/internal/metrics"
	"github.com/f9-o/enclave/internal/orchestrator"
)

// Intervals configures the job cadences. Zero values fall back to defaults.
type Intervals struct {
	Cleanup   time.Duration
	Report    time.Duration
	Health    time.Duration
	Staleness time.Duration
}

// Defaults for unset intervals.
const (
	DefaultCleanupInterval = 1 * time.Hour
	DefaultReportInterval  = 6 * time.Hour
	DefaultHealthInterval  = 2 * time.Minute
	DefaultStaleness       = 24 * time.Hour
)

func (i *Intervals) applyDefaults() {
	if i.Cleanup <= 0 {
		i.Cleanup = DefaultCleanupInterval
	}
	if i.Report <= 0 {
		i.Report = DefaultReportInterval
	}
	if i.Health <= 0 {
		i.Health = DefaultHealthInterval
	}
	if i.Staleness <= 0 {
		i.Staleness = DefaultStaleness
	}
}

// Scheduler owns the background job loops.
type Scheduler struct {
	manager   *orchestrator.Manager
	collector *metrics.Collector
	checker   *health.Checker
	intervals Intervals
	log       *logger.Logger
}

// New constructs a Scheduler.
func New(mgr *orchestrator.Manager, col *metrics.Collector, chk *health.Checker, intervals Intervals, log *logger.Logger) *Scheduler {
	intervals.applyDefaults()
	return &Scheduler{
		manager:   mgr,
		collector: col,
		checker:   chk,
		intervals: intervals,
		log:       log,
	}
}

// Run starts all job loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started",
		"cleanup_interval", s.intervals.Cleanup,
		"report_interval", s.intervals.Report,
		"health_interval", s.intervals.Health,
		"staleness", s.intervals.Staleness,
	)

	var wg sync.WaitGroup
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"cleanup", s.intervals.Cleanup, s.runCleanup},
		{"report", s.intervals.Report, s.runReport},
		{"health", s.intervals.Health, s.runHealth},
	}

	for _, job := range jobs {
		wg.Add(1)
		go func(name string, interval time.Duration, run func(context.Context)) {
			defer wg.Done()
			s.loop(ctx, name, interval, run)
		}(job.name, job.interval, job.run)
	}

	wg.Wait()
	s.log.Info("scheduler stopped")
}

// loop ticks one job until the context is cancelled.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("scheduler job stopped", "job", name)
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Jobs
// ─────────────────────────────────────────────────────────────────────────────

// runCleanup reclaims stale experimental environments.
func (s *Scheduler) runCleanup(ctx context.Context) {
	reclaimed, err := s.manager.CleanupStale(ctx, s.intervals.Staleness)
	if err != nil {
		s.log.Warn("cleanup sweep failed", "err", err)
		return
	}
	if len(reclaimed) > 0 {
		s.log.Info("cleanup sweep complete", "reclaimed", len(reclaimed))
	}
}

// runReport logs an aggregate usage report across all environments.
func (s *Scheduler) runReport(ctx context.Context) {
	report, err := s.collector.Aggregate()
	if err != nil {
		s.log.Warn("usage report failed", "err", err)
		return
	}
	s.log.Info("usage report",
		"environments", len(report.Environments),
		"total_cpu_percent", report.Totals.CPUPercent,
		"total_memory_bytes", report.Totals.MemoryBytes,
	)
	s.log.Audit(logger.AuditEntry{
		Timestamp: time.Now().UTC(),
		Op:        "report",
		Result:    "success",
	})
}

// runHealth probes the runtime and every environment. Findings are logged
// only; nothing is restarted.
func (s *Scheduler) runHealth(ctx context.Context) {
	report, err := s.checker.Report(ctx)
	if err != nil {
		s.log.Warn("health probe failed", "err", err)
		return
	}

	unhealthy := 0
	for _, h := range report.Environments {
		if !h.Healthy {
			unhealthy++
		}
	}
	if !report.RuntimeReachable || unhealthy > 0 {
		s.log.Warn("health probe findings",
			"runtime_reachable", report.RuntimeReachable,
			"unhealthy", unhealthy,
		)
		return
	}
	s.log.Debug("health probe clean", "environments", len(report.Environments))
}
