package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/enclave/api/v1"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enclave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadExplicitFile(t *testing.T) {
	path := writeConfig(t, `
version: "1"
project:
  name: shop
runtime:
  host: ssh://deploy@sandbox-01
environments:
  default_image: node:22-alpine
  quotas:
    experimental:
      cpu: "0.1"
      memory: 128m
scheduler:
  cleanup_interval: 30m
  staleness: 12h
promote:
  domain: shop.internal
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Project.Name)
	assert.Equal(t, "ssh://deploy@sandbox-01", cfg.Runtime.Host)
	assert.Equal(t, "node:22-alpine", cfg.Environments.DefaultImage)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.CleanupInterval)
	assert.Equal(t, 12*time.Hour, cfg.Scheduler.Staleness)
	assert.Equal(t, "shop.internal", cfg.Promote.Domain)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
version: "1"
project:
  name: minimal
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Metrics.Interval)
	assert.Equal(t, 64, cfg.Events.Buffer)
	assert.Equal(t, time.Hour, cfg.Scheduler.CleanupInterval)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Staleness)
	assert.Equal(t, "apps.internal", cfg.Promote.Domain)
}

func TestLoadRejectsQuotaForUnknownType(t *testing.T) {
	path := writeConfig(t, `
environments:
  quotas:
    production:
      cpu: "2.0"
      memory: 4g
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown environment type")
}

func TestLoadRejectsMalformedQuota(t *testing.T) {
	path := writeConfig(t, `
environments:
  quotas:
    staging:
      cpu: lots
      memory: 1g
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidPromoteDomain(t *testing.T) {
	path := writeConfig(t, `
promote:
  domain: "not a domain"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promote.domain")
}

func TestQuotaForOverrideAndDefault(t *testing.T) {
	cfg := &Config{}
	cfg.Environments.Quotas = map[string]v1.ResourceQuota{
		"staging": {CPU: "2.0", Memory: "2g"},
	}

	assert.Equal(t, v1.ResourceQuota{CPU: "2.0", Memory: "2g"}, cfg.QuotaFor(v1.TypeStaging))
	assert.Equal(t, v1.DefaultQuotas[v1.TypeExperimental], cfg.QuotaFor(v1.TypeExperimental))
}

func TestSandboxImageFallback(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "node:20-alpine", cfg.SandboxImage())

	cfg.Environments.DefaultImage = "bun:1"
	assert.Equal(t, "bun:1", cfg.SandboxImage())
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, IsSensitiveKey("runtime.ssh_key"))
	assert.True(t, IsSensitiveKey("database.password"))
	assert.True(t, IsSensitiveKey("API_TOKEN"))
	assert.False(t, IsSensitiveKey("promote.domain"))
	assert.False(t, IsSensitiveKey("log.level"))
}
