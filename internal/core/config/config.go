// Package config provides the Enclave configuration loader.
// Config is loaded by merging enclave.yaml → ~/.enclave/config.yaml → ENCLAVE_* env vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/pkg/netutil"
)

// sensitiveKeyRegex matches config keys that should be redacted in log output.
var sensitiveKeyRegex = regexp.MustCompile(`(?i)(password|token|secret|key|passphrase)`)

// Defaults contains factory-default values applied before any config file is loaded.
var Defaults = map[string]any{
	"log.level":                  "info",
	"log.format":                 "text",
	"runtime.host":               "",
	"environments.default_image": "node:20-alpine",
	"metrics.interval":           "30s",
	"events.buffer":              64,
	"scheduler.cleanup_interval": "1h",
	"scheduler.report_interval":  "6h",
	"scheduler.health_interval":  "2m",
	"scheduler.staleness":        "24h",
	"promote.domain":             "apps.internal",
}

// ─────────────────────────────────────────────────────────────────────────────
// Config types
// ─────────────────────────────────────────────────────────────────────────────

// Config is the fully-decoded project configuration.
type Config struct {
	Version      string             `mapstructure:"version"`
	Project      ProjectConfig      `mapstructure:"project"`
	Runtime      RuntimeConfig      `mapstructure:"runtime"`
	Environments EnvironmentsConfig `mapstructure:"environments"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Events       EventsConfig       `mapstructure:"events"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Promote      PromoteConfig      `mapstructure:"promote"`
	Log          LogConfig          `mapstructure:"log"`
}

// ProjectConfig holds project-level metadata.
type ProjectConfig struct {
	Name string `mapstructure:"name"`
}

// RuntimeConfig selects the container runtime endpoint.
// Host may be empty (environment/default socket), a tcp:// address, or an
// ssh://user@host URL reached through the SSH tunnel layer.
type RuntimeConfig struct {
	Host       string `mapstructure:"host"`
	SSHKey     string `mapstructure:"ssh_key"`
	KnownHosts string `mapstructure:"known_hosts"`
}

// EnvironmentsConfig overrides per-type resource quotas and the sandbox image.
type EnvironmentsConfig struct {
	DefaultImage string                       `mapstructure:"default_image"`
	Quotas       map[string]v1.ResourceQuota `mapstructure:"quotas"`
}

// MetricsConfig controls the metrics collector.
type MetricsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// EventsConfig controls the notification channel.
type EventsConfig struct {
	// Buffer is the per-subscriber bounded queue size; oldest events are
	// dropped when a slow subscriber falls behind.
	Buffer int `mapstructure:"buffer"`
}

// SchedulerConfig controls the background job cadences.
type SchedulerConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	ReportInterval  time.Duration `mapstructure:"report_interval"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
	// Staleness is the age past which experimental environments become
	// eligible for automatic reclamation.
	Staleness time.Duration `mapstructure:"staleness"`
}

// PromoteConfig holds promotion destination settings.
type PromoteConfig struct {
	Domain string `mapstructure:"domain"`
}

// LogConfig controls logging behaviour.
type LogConfig struct {
	Level  string `mapstructure:"level"` // debug | info | warn | error
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // json | text
}

// ─────────────────────────────────────────────────────────────────────────────
// Loader
// ─────────────────────────────────────────────────────────────────────────────

// Load discovers and loads the configuration, walking up directories to find
// enclave.yaml, then merging it with the global config and environment variables.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()

	// Apply defaults
	for k, val := range Defaults {
		v.SetDefault(k, val)
	}

	// Environment variable binding: ENCLAVE_LOG_LEVEL → log.level
	v.SetEnvPrefix("ENCLAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load global config (~/.enclave/config.yaml) if it exists
	globalCfg := filepath.Join(enclaveHome(), "config.yaml")
	if _, err := os.Stat(globalCfg); err == nil {
		v.SetConfigFile(globalCfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	// Load project config
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		path, err := discoverProjectConfig()
		if err == nil {
			v.SetConfigFile(path)
		}
	}

	if v.ConfigFileUsed() != "" || explicitPath != "" {
		if err := v.MergeInConfig(); err != nil && explicitPath != "" {
			return nil, fmt.Errorf("read project config %q: %w", explicitPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// QuotaFor resolves the resource quota for an environment type: config
// override first, then the factory default.
func (c *Config) QuotaFor(t v1.EnvironmentType) v1.ResourceQuota {
	if q, ok := c.Environments.Quotas[string(t)]; ok {
		return q
	}
	return v1.DefaultQuotas[t]
}

// SandboxImage returns the base image for compute sandboxes.
func (c *Config) SandboxImage() string {
	if c.Environments.DefaultImage != "" {
		return c.Environments.DefaultImage
	}
	return Defaults["environments.default_image"].(string)
}

// IsSensitiveKey returns true if key matches a known sensitive pattern.
func IsSensitiveKey(key string) bool {
	return sensitiveKeyRegex.MatchString(key)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// discoverProjectConfig walks up from the CWD looking for enclave.yaml.
func discoverProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, "enclave.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("enclave.yaml not found (searched up from cwd)")
}

// validate performs semantic validation on the loaded config.
func validate(cfg *Config) error {
	for name, q := range cfg.Environments.Quotas {
		if !v1.IsKnownType(v1.EnvironmentType(name)) {
			return fmt.Errorf("quota for unknown environment type %q", name)
		}
		if _, err := q.NanoCPUs(); err != nil {
			return fmt.Errorf("type %q: %w", name, err)
		}
		if _, err := q.MemoryBytes(); err != nil {
			return fmt.Errorf("type %q: %w", name, err)
		}
	}
	if cfg.Events.Buffer < 0 {
		return fmt.Errorf("events.buffer must be >= 0")
	}
	if cfg.Promote.Domain != "" && !netutil.IsValidDomain(cfg.Promote.Domain) {
		return fmt.Errorf("promote.domain %q is not a valid domain", cfg.Promote.Domain)
	}
	return nil
}

// enclaveHome returns the Enclave home directory (~/.enclave).
func enclaveHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".enclave"
	}
	return filepath.Join(home, ".enclave")
}

// EnclaveHome is the exported variant for use by other packages.
func EnclaveHome() string {
	return enclaveHome()
}

// DefaultConfigTemplate is the content written by `enclave init`.
const DefaultConfigTemplate = `# enclave.yaml — Project manifest
version: "1"

project:
  name: my-app

# runtime:
#   host: ssh://deploy@sandbox-host-01
#   ssh_key: ~/.ssh/enclave_ed25519

environments:
  default_image: node:20-alpine
  quotas:
    experimental:
      cpu: "0.25"
      memory: 256m
    staging:
      cpu: "1.0"
      memory: 1g

scheduler:
  cleanup_interval: 1h
  staleness: 24h

promote:
  domain: apps.internal
`
