// Package health compares the registry's expected world against what the
// container runtime actually reports. Findings are observational: the checker
// never restarts or repairs anything.
package health

import (
	"context"
	"time"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
)

// Runtime is the slice of the container runtime the checker needs.
type Runtime interface {
	Ping(ctx context.Context) error
	InspectRunning(ctx context.Context, id string) (bool, error)
}

// Registry is the slice of the environment registry the checker needs.
type Registry interface {
	ListEnvironments() ([]v1.Environment, error)
}

// DefaultRetries is the number of ping attempts before the runtime is
// declared unreachable.
const DefaultRetries = 3

// DefaultRetryInterval is the base wait between ping attempts; it doubles
// after each failure.
const DefaultRetryInterval = 2 * time.Second

// Checker probes runtime reachability and per-environment liveness.
type Checker struct {
	runtime  Runtime
	registry Registry
	log      *logger.Logger
}

// NewChecker constructs a Checker.
func NewChecker(rt Runtime, reg Registry, log *logger.Logger) *Checker {
	return &Checker{runtime: rt, registry: reg, log: log}
}

// PingWithRetry pings the runtime with exponential backoff.
// Returns nil as soon as one attempt succeeds.
func (c *Checker) PingWithRetry(ctx context.Context, retries int) error {
	if retries <= 0 {
		retries = DefaultRetries
	}

	var lastErr error
	wait := DefaultRetryInterval
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			wait *= 2
		}

		lastErr = c.runtime.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		c.log.Debug("runtime ping failed",
			"attempt", attempt+1,
			"of", retries,
			"err", lastErr,
		)
	}
	return lastErr
}

// Report probes the runtime and every registered environment, returning an
// aggregate view. When the runtime is unreachable the per-environment section
// is empty — there is nothing trustworthy to compare against.
func (c *Checker) Report(ctx context.Context) (v1.HealthReport, error) {
	report := v1.HealthReport{CheckedAt: time.Now().UTC()}

	if err := c.PingWithRetry(ctx, DefaultRetries); err != nil {
		c.log.Warn("runtime unreachable", "err", err)
		return report, nil
	}
	report.RuntimeReachable = true

	envs, err := c.registry.ListEnvironments()
	if err != nil {
		return report, err
	}

	for _, env := range envs {
		report.Environments = append(report.Environments, c.probeEnvironment(ctx, env))
	}
	return report, nil
}

// probeEnvironment checks that the environment's compute sandbox is actually
// running. Every registered record is expected to be running; discrepancies
// are reported, not fixed.
func (c *Checker) probeEnvironment(ctx context.Context, env v1.Environment) v1.EnvironmentHealth {
	h := v1.EnvironmentHealth{
		EnvironmentID: env.ID,
		Expected:      string(v1.StatusRunning),
	}

	running, err := c.runtime.InspectRunning(ctx, env.Handles.ComputeID)
	switch {
	case err != nil:
		h.Actual = "unknown"
		h.Detail = err.Error()
	case running:
		h.Actual = "running"
		h.Healthy = true
	default:
		h.Actual = "stopped"
		h.Detail = "compute sandbox is not running"
	}

	if !h.Healthy {
		c.log.Warn("environment health discrepancy",
			"environment", env.ID,
			"expected", h.Expected,
			"actual", h.Actual,
		)
	}
	return h
}
