package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/enclave/api/v1"
)

// Both implementations must satisfy the same contract, so every test runs
// against both.
func withStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("mem", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()
		fn(t, s)
	})

	t.Run("bolt", func(t *testing.T) {
		s, err := Open(filepath.Join(t.TempDir(), "registry.db"))
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func sampleEnv(id string) v1.Environment {
	return v1.Environment{
		ID:     id,
		Name:   "sample",
		Type:   v1.TypeFeature,
		Status: v1.StatusRunning,
		Handles: v1.ResourceHandles{
			ComputeID: "ctr-1",
			NetworkID: "net-1",
		},
		Quota:     v1.ResourceQuota{CPU: "0.5", Memory: "512m"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestEnvironmentRoundTrip(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		env := sampleEnv("feature-1")
		require.NoError(t, s.PutEnvironment(env))

		got, err := s.GetEnvironment("feature-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, env.ID, got.ID)
		assert.Equal(t, env.Handles, got.Handles)
		assert.Equal(t, env.Quota, got.Quota)
		assert.True(t, env.CreatedAt.Equal(got.CreatedAt))
	})
}

func TestGetMissingReturnsNilNil(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		got, err := s.GetEnvironment("nope")
		require.NoError(t, err)
		assert.Nil(t, got)

		dep, err := s.GetDeployment("nope")
		require.NoError(t, err)
		assert.Nil(t, dep)

		prom, err := s.GetPromotion("nope")
		require.NoError(t, err)
		assert.Nil(t, prom)
	})
}

func TestPutEnvironmentRejectsEmptyID(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		assert.Error(t, s.PutEnvironment(v1.Environment{}))
	})
}

func TestPutEnvironmentUpserts(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		env := sampleEnv("feature-1")
		require.NoError(t, s.PutEnvironment(env))

		env.Metrics = v1.EnvMetrics{CPUPercent: 42.5, MemoryBytes: 1 << 20}
		require.NoError(t, s.PutEnvironment(env))

		got, err := s.GetEnvironment("feature-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 42.5, got.Metrics.CPUPercent)

		envs, err := s.ListEnvironments()
		require.NoError(t, err)
		assert.Len(t, envs, 1)
	})
}

func TestUpdateEnvironmentMutatesExistingOnly(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		require.NoError(t, s.PutEnvironment(sampleEnv("feature-1")))

		found, err := s.UpdateEnvironment("feature-1", func(env *v1.Environment) {
			env.Metrics.CPUPercent = 55
		})
		require.NoError(t, err)
		assert.True(t, found)

		got, err := s.GetEnvironment("feature-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, float64(55), got.Metrics.CPUPercent)
		assert.Equal(t, "sample", got.Name)

		// An update of an absent id reports not-found and writes nothing
		found, err = s.UpdateEnvironment("ghost", func(env *v1.Environment) {
			env.Metrics.CPUPercent = 99
		})
		require.NoError(t, err)
		assert.False(t, found)

		ghost, err := s.GetEnvironment("ghost")
		require.NoError(t, err)
		assert.Nil(t, ghost)
	})
}

func TestDeleteEnvironmentIsIdempotent(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		require.NoError(t, s.PutEnvironment(sampleEnv("feature-1")))
		require.NoError(t, s.DeleteEnvironment("feature-1"))
		require.NoError(t, s.DeleteEnvironment("feature-1"))
		require.NoError(t, s.DeleteEnvironment("never-existed"))

		got, err := s.GetEnvironment("feature-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestListDeploymentsFiltersByEnvironment(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		require.NoError(t, s.PutDeployment(v1.Deployment{ID: "d1", EnvironmentID: "env-a", Status: v1.DeployCompleted}))
		require.NoError(t, s.PutDeployment(v1.Deployment{ID: "d2", EnvironmentID: "env-b", Status: v1.DeployFailed}))
		require.NoError(t, s.PutDeployment(v1.Deployment{ID: "d3", EnvironmentID: "env-a", Status: v1.DeployCompleted}))

		forA, err := s.ListDeployments("env-a")
		require.NoError(t, err)
		assert.Len(t, forA, 2)
		for _, d := range forA {
			assert.Equal(t, "env-a", d.EnvironmentID)
		}

		all, err := s.ListDeployments("")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestListPromotionsFiltersByEnvironment(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		require.NoError(t, s.PutPromotion(v1.Promotion{ID: "p1", EnvironmentID: "env-a"}))
		require.NoError(t, s.PutPromotion(v1.Promotion{ID: "p2", EnvironmentID: "env-b"}))

		forB, err := s.ListPromotions("env-b")
		require.NoError(t, err)
		require.Len(t, forB, 1)
		assert.Equal(t, "p2", forB[0].ID)

		all, err := s.ListPromotions("")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestMemStoreCopiesOnRead(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	require.NoError(t, s.PutEnvironment(sampleEnv("feature-1")))

	got, err := s.GetEnvironment("feature-1")
	require.NoError(t, err)
	got.Name = "mutated"

	fresh, err := s.GetEnvironment("feature-1")
	require.NoError(t, err)
	assert.Equal(t, "sample", fresh.Name)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.PutEnvironment(sampleEnv("feature-1")))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetEnvironment("feature-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sample", got.Name)
}
