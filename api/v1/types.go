// Package v1 defines the public data types shared across all Enclave layers.
package v1

import (
	"fmt"
	"strconv"
	"time"

	units "github.com/docker/go-units"
)

// ─────────────────────────────────────────────────────────────────────────────
// Status enumerations
// ─────────────────────────────────────────────────────────────────────────────

// EnvironmentStatus is the lifecycle state of an environment.
// The machine is deliberately shallow: a record is registered only once
// provisioning has fully succeeded, so "running" is the initial and only
// non-terminal state. Deploy and promote are side-actions recorded in their
// own entities and never change it.
type EnvironmentStatus string

const (
	StatusRunning EnvironmentStatus = "running"
	StatusDeleted EnvironmentStatus = "deleted"
)

// DeploymentStatus tracks a single deploy-to-environment operation.
type DeploymentStatus string

const (
	DeployPending   DeploymentStatus = "pending"
	DeployCompleted DeploymentStatus = "completed"
	DeployFailed    DeploymentStatus = "failed"
)

// EnvironmentType determines default resource quotas and reclamation policy.
// Only experimental environments are eligible for automatic cleanup.
type EnvironmentType string

const (
	TypeStaging      EnvironmentType = "staging"
	TypeIntegration  EnvironmentType = "integration"
	TypeFeature      EnvironmentType = "feature"
	TypeExperimental EnvironmentType = "experimental"
)

// KnownTypes lists every valid EnvironmentType.
var KnownTypes = []EnvironmentType{TypeStaging, TypeIntegration, TypeFeature, TypeExperimental}

// IsKnownType reports whether t is one of the configured environment kinds.
func IsKnownType(t EnvironmentType) bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Resource quotas
// ─────────────────────────────────────────────────────────────────────────────

// ResourceQuota is the CPU share and memory limit applied to a compute
// sandbox. CPU is a fractional core count ("0.25"); Memory is a Docker-style
// size string ("256m", "1g").
type ResourceQuota struct {
	CPU    string `json:"cpu"    yaml:"cpu"    mapstructure:"cpu"`
	Memory string `json:"memory" yaml:"memory" mapstructure:"memory"`
}

// NanoCPUs converts the CPU share to Docker NanoCPU units.
func (q ResourceQuota) NanoCPUs() (int64, error) {
	f, err := strconv.ParseFloat(q.CPU, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cpu quota %q: %w", q.CPU, err)
	}
	return int64(f * 1e9), nil
}

// MemoryBytes converts the memory limit to bytes.
func (q ResourceQuota) MemoryBytes() (int64, error) {
	b, err := units.RAMInBytes(q.Memory)
	if err != nil {
		return 0, fmt.Errorf("parse memory quota %q: %w", q.Memory, err)
	}
	return b, nil
}

// DefaultQuotas holds the factory quota defaults per environment type.
var DefaultQuotas = map[EnvironmentType]ResourceQuota{
	TypeStaging:      {CPU: "1.0", Memory: "1g"},
	TypeIntegration:  {CPU: "0.5", Memory: "512m"},
	TypeFeature:      {CPU: "0.5", Memory: "512m"},
	TypeExperimental: {CPU: "0.25", Memory: "256m"},
}

// ResourceOverrides is a partial quota supplied at creation time.
// Empty fields fall back to the type default.
type ResourceOverrides struct {
	CPU    string `json:"cpu,omitempty"    yaml:"cpu"    mapstructure:"cpu"`
	Memory string `json:"memory,omitempty" yaml:"memory" mapstructure:"memory"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Environment configuration (caller-supplied at create)
// ─────────────────────────────────────────────────────────────────────────────

// DatabaseConfig requests an optional database sandbox alongside the compute
// sandbox. Only the fields below are recognised; anything else in the source
// YAML is dropped during decode.
type DatabaseConfig struct {
	Engine   string `json:"engine"             yaml:"engine"   mapstructure:"engine"` // postgres | mysql | redis
	Image    string `json:"image,omitempty"    yaml:"image"    mapstructure:"image"`
	Name     string `json:"name,omitempty"     yaml:"name"     mapstructure:"name"`
	User     string `json:"user,omitempty"     yaml:"user"     mapstructure:"user"`
	Password string `json:"password,omitempty" yaml:"password" mapstructure:"password"`
}

// EnvironmentConfig is the tagged creation-time configuration for an
// environment. Opaque build/start behaviour lives in DeployConfig instead.
type EnvironmentConfig struct {
	Image     string             `json:"image,omitempty"     yaml:"image"     mapstructure:"image"` // sandbox base image override
	Env       map[string]string  `json:"env,omitempty"       yaml:"env"       mapstructure:"env"`
	Database  *DatabaseConfig    `json:"database,omitempty"  yaml:"database"  mapstructure:"database"`
	Resources *ResourceOverrides `json:"resources,omitempty" yaml:"resources" mapstructure:"resources"`
}

// DeployConfig controls the deploy step sequence. Empty Build skips the build
// step; empty Start falls back to DefaultStartCommand.
type DeployConfig struct {
	Install []string `json:"install,omitempty" yaml:"install" mapstructure:"install"`
	Build   []string `json:"build,omitempty"   yaml:"build"   mapstructure:"build"`
	Start   []string `json:"start,omitempty"   yaml:"start"   mapstructure:"start"`
}

// DefaultInstallCommand is run during deploy when no install override is set.
var DefaultInstallCommand = []string{"npm", "install", "--omit=dev"}

// DefaultStartCommand is the fallback application start command.
var DefaultStartCommand = []string{"npm", "start"}

// ─────────────────────────────────────────────────────────────────────────────
// Runtime state types (persisted in the registry)
// ─────────────────────────────────────────────────────────────────────────────

// ResourceHandles are the opaque references to resources provisioned for an
// environment. Owned exclusively by the environment record; a database handle
// is present iff a database was requested at creation.
type ResourceHandles struct {
	ComputeID  string `json:"compute_id"`
	NetworkID  string `json:"network_id"`
	DatabaseID string `json:"database_id,omitempty"`
}

// EnvMetrics is the last-observed resource usage snapshot for an environment.
// Written only by the metrics collector; stale between polling intervals.
type EnvMetrics struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	MemoryBytes    int64     `json:"memory_bytes"`
	NetRxBytes     int64     `json:"net_rx_bytes"`
	NetTxBytes     int64     `json:"net_tx_bytes"`
	DiskReadBytes  int64     `json:"disk_read_bytes"`
	DiskWriteBytes int64     `json:"disk_write_bytes"`
	SampledAt      time.Time `json:"sampled_at"`
}

// Environment is the central entity: one sandboxed, isolated unit of compute
// (plus network, plus optional database) provisioned for an application.
type Environment struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      EnvironmentType   `json:"type"`
	Status    EnvironmentStatus `json:"status"`
	Handles   ResourceHandles   `json:"handles"`
	Quota     ResourceQuota     `json:"quota"`
	Config    EnvironmentConfig `json:"config"`
	Metrics   EnvMetrics        `json:"metrics"`
	CreatedAt time.Time         `json:"created_at"`

	// Recovered marks records reconstructed at startup from the runtime's
	// container listing rather than a create request.
	Recovered bool `json:"recovered,omitempty"`
}

// StepResult records one sequential deploy step.
type StepResult struct {
	Name       string    `json:"name"` // copy | install | build | start
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// Deployment is an immutable audit record of one deploy operation.
// It transitions pending → completed or pending → failed exactly once.
type Deployment struct {
	ID            string           `json:"id"`
	EnvironmentID string           `json:"environment_id"`
	Source        string           `json:"source"`
	Status        DeploymentStatus `json:"status"`
	Steps         []StepResult     `json:"steps"`
	Error         string           `json:"error,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
}

// CheckResult is one itemized validation check outcome.
type CheckResult struct {
	Name   string `json:"name"` // unit | integration | performance
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ValidationResult aggregates the promotion validation suite.
type ValidationResult struct {
	Passed  bool          `json:"passed"`
	Skipped bool          `json:"skipped,omitempty"`
	Checks  []CheckResult `json:"checks,omitempty"`
}

// Promotion is the advisory record of promoting an environment's contents
// toward production. Creating one never mutates or deletes the environment.
type Promotion struct {
	ID            string           `json:"id"`
	EnvironmentID string           `json:"environment_id"`
	Validation    ValidationResult `json:"validation"`
	ProductionURL string           `json:"production_url"`
	RollbackURL   string           `json:"rollback_url"`
	PromotedAt    time.Time        `json:"promoted_at"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Notification channel events
// ─────────────────────────────────────────────────────────────────────────────

// EventType names a notification channel event.
type EventType string

const (
	EventEnvironmentCreated  EventType = "environment:created"
	EventEnvironmentDeleted  EventType = "environment:deleted"
	EventEnvironmentPromoted EventType = "environment:promoted"
	EventEnvironmentMetrics  EventType = "environment:metrics"
	EventDeploymentCompleted EventType = "deployment:completed"
)

// Event is a single push notification. Delivery is best-effort to currently
// subscribed observers; no replay, no ordering guarantee across environments.
type Event struct {
	Type          EventType `json:"type"`
	EnvironmentID string    `json:"environment_id,omitempty"`
	Payload       any       `json:"payload,omitempty"`
	Time          time.Time `json:"time"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Health and reporting
// ─────────────────────────────────────────────────────────────────────────────

// EnvironmentHealth is the probe verdict for a single environment.
type EnvironmentHealth struct {
	EnvironmentID string `json:"environment_id"`
	Expected      string `json:"expected"` // always "running" for live records
	Actual        string `json:"actual"`
	Healthy       bool   `json:"healthy"`
	Detail        string `json:"detail,omitempty"`
}

// HealthReport is the aggregate health view returned by the control surface.
type HealthReport struct {
	RuntimeReachable bool                `json:"runtime_reachable"`
	CheckedAt        time.Time           `json:"checked_at"`
	Environments     []EnvironmentHealth `json:"environments"`
}

// UsageReport aggregates last-observed metrics across all environments,
// produced by the scheduler's reporting job and the metrics control call.
type UsageReport struct {
	GeneratedAt  time.Time             `json:"generated_at"`
	Environments map[string]EnvMetrics `json:"environments"`
	Totals       EnvMetrics            `json:"totals"`
}
