// Promotion: run the validation suite against the environment, then record
// the advisory promotion with production and rollback URLs. Promotion never
// mutates the environment itself.
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

// appPort is the conventional port the deployed application listens on
// inside the sandbox.
const appPort = 3000

// responseTimeBudget is the performance check's ceiling for one request
// served from inside the sandbox.
const responseTimeBudget = 2 * time.Second

// PromoteOptions controls a single promotion.
type PromoteOptions struct {
	// SkipValidation records the promotion without running the suite.
	// The validation result is marked skipped, not passed.
	SkipValidation bool
}

// Promote validates the environment and records its promotion toward
// production. A failed validation aborts with the itemized results and no
// promotion record is written.
func (m *Manager) Promote(ctx context.Context, envID string, opts PromoteOptions) (*v1.Promotion, error) {
	env, err := m.Get(envID)
	if err != nil {
		return nil, err
	}

	validation := v1.ValidationResult{Skipped: true}
	if !opts.SkipValidation {
		validation = m.runValidation(ctx, env)
		if !validation.Passed {
			details := make([]errs.CheckDetail, 0, len(validation.Checks))
			for _, c := range validation.Checks {
				details = append(details, errs.CheckDetail{Name: c.Name, Passed: c.Passed, Detail: c.Detail})
			}
			m.log.Audit(logger.AuditEntry{
				Timestamp:   time.Now().UTC(),
				Op:          "promote",
				Environment: env.ID,
				Result:      "failure",
				Detail:      "validation failed",
			})
			return nil, errs.Newf(errs.ErrValidationFailed, "promote.validate", "validation suite failed for %q", env.ID).
				WithResource(env.ID).
				WithChecks(details).
				WithAdvice("Fix the failing checks and promote again, or use --no-validate to override")
		}
	} else {
		m.log.Warn("promotion validation skipped", "environment", env.ID)
	}

	prom := v1.Promotion{
		ID:            uuid.NewString(),
		EnvironmentID: env.ID,
		Validation:    validation,
		ProductionURL: fmt.Sprintf("https://%s.%s", env.Name, m.cfg.Promote.Domain),
		RollbackURL:   fmt.Sprintf("https://%s-prev.%s", env.Name, m.cfg.Promote.Domain),
		PromotedAt:    time.Now().UTC(),
	}
	if err := m.store.PutPromotion(prom); err != nil {
		return nil, errs.Wrap(err, errs.ErrStoreWrite, "promote.record").WithResource(env.ID)
	}

	m.bus.Publish(v1.Event{
		Type:          v1.EventEnvironmentPromoted,
		EnvironmentID: env.ID,
		Payload:       prom,
	})
	m.fire(ctx, plugin.HookPromote, v1.HookContext{Environment: env, Promotion: &prom})
	m.log.Audit(logger.AuditEntry{
		Timestamp:   time.Now().UTC(),
		Op:          "promote",
		Environment: env.ID,
		Result:      "success",
	})

	m.log.Info("promote.complete", "environment", env.ID, "url", prom.ProductionURL)
	return &prom, nil
}

// runValidation executes the full suite. All checks run even after a failure
// so the caller gets a complete picture.
func (m *Manager) runValidation(ctx context.Context, env *v1.Environment) v1.ValidationResult {
	result := v1.ValidationResult{Passed: true}

	checks := []struct {
		name string
		run  func(context.Context) (string, error)
	}{
		{"unit", func(ctx context.Context) (string, error) {
			return m.execStep(ctx, env.Handles.ComputeID, []string{"npm", "test"})
		}},
		{"integration", func(ctx context.Context) (string, error) {
			return m.execStep(ctx, env.Handles.ComputeID, []string{"npm", "run", "test:integration", "--if-present"})
		}},
		{"performance", func(ctx context.Context) (string, error) {
			return m.checkResponseTime(ctx, env.Handles.ComputeID)
		}},
	}

	for _, check := range checks {
		c := v1.CheckResult{Name: check.name, Passed: true}
		m.log.Info("promote.check", "environment", env.ID, "check", check.name)

		if detail, err := check.run(ctx); err != nil {
			c.Passed = false
			c.Detail = err.Error()
			result.Passed = false
			m.log.Warn("promote.check.failed", "environment", env.ID, "check", check.name, "err", err)
		} else if detail != "" {
			c.Detail = strings.TrimSpace(lastLine(detail))
		}
		result.Checks = append(result.Checks, c)
	}
	return result
}

// checkResponseTime requests the app from inside the sandbox and enforces
// the response-time budget.
func (m *Manager) checkResponseTime(ctx context.Context, containerID string) (string, error) {
	probe := fmt.Sprintf("wget -q -T %d -O /dev/null http://127.0.0.1:%d/", int(responseTimeBudget.Seconds()), appPort)

	started := time.Now()
	out, err := m.execStep(ctx, containerID, []string{"sh", "-c", probe})
	elapsed := time.Since(started)
	if err != nil {
		return out, fmt.Errorf("app did not respond on port %d: %w", appPort, err)
	}
	if elapsed > responseTimeBudget {
		return out, fmt.Errorf("response took %s, budget is %s", elapsed.Round(time.Millisecond), responseTimeBudget)
	}
	return fmt.Sprintf("responded in %s", elapsed.Round(time.Millisecond)), nil
}

// lastLine returns the final non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
