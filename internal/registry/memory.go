// In-memory Store used by tests and `--ephemeral` agent mode.
// Concurrent reads are allowed; writes are serialized under one lock.
// Records are copied on the way in and out so callers can never mutate the
// registry's view through a shared pointer (copy-on-write semantics).
package registry

import (
	"fmt"
	"sync"

	v1 "github.com/f9-o/enclave/api/v1"
)

// MemStore is a map-backed Store.
type MemStore struct {
	mu           sync.RWMutex
	environments map[string]v1.Environment
	envOrder     []string // insertion order for stable listing
	deployments  map[string]v1.Deployment
	depOrder     []string
	promotions   map[string]v1.Promotion
	promOrder    []string
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		environments: make(map[string]v1.Environment),
		deployments:  make(map[string]v1.Deployment),
		promotions:   make(map[string]v1.Promotion),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// Environment operations
// ─────────────────────────────────────────────────────────────────────────────

func (s *MemStore) PutEnvironment(env v1.Environment) error {
	if env.ID == "" {
		return fmt.Errorf("environment id must be non-empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.environments[env.ID]; !exists {
		s.envOrder = append(s.envOrder, env.ID)
	}
	s.environments[env.ID] = env
	return nil
}

func (s *MemStore) GetEnvironment(id string) (*v1.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.environments[id]
	if !ok {
		return nil, nil
	}
	cp := env
	return &cp, nil
}

func (s *MemStore) UpdateEnvironment(id string, mutate func(*v1.Environment)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.environments[id]
	if !ok {
		return false, nil
	}
	mutate(&env)
	env.ID = id // mutate must not rekey the record
	s.environments[id] = env
	return true, nil
}

func (s *MemStore) DeleteEnvironment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.environments[id]; !ok {
		return nil
	}
	delete(s.environments, id)
	for i, eid := range s.envOrder {
		if eid == id {
			s.envOrder = append(s.envOrder[:i], s.envOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemStore) ListEnvironments() ([]v1.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	envs := make([]v1.Environment, 0, len(s.envOrder))
	for _, id := range s.envOrder {
		envs = append(envs, s.environments[id])
	}
	return envs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Deployment history
// ─────────────────────────────────────────────────────────────────────────────

func (s *MemStore) PutDeployment(d v1.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deployments[d.ID]; !exists {
		s.depOrder = append(s.depOrder, d.ID)
	}
	s.deployments[d.ID] = d
	return nil
}

func (s *MemStore) GetDeployment(id string) (*v1.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deployments[id]
	if !ok {
		return nil, nil
	}
	cp := d
	return &cp, nil
}

func (s *MemStore) ListDeployments(environmentID string) ([]v1.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []v1.Deployment
	for _, id := range s.depOrder {
		d := s.deployments[id]
		if environmentID == "" || d.EnvironmentID == environmentID {
			recs = append(recs, d)
		}
	}
	return recs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Promotion history
// ─────────────────────────────────────────────────────────────────────────────

func (s *MemStore) PutPromotion(p v1.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.promotions[p.ID]; !exists {
		s.promOrder = append(s.promOrder, p.ID)
	}
	s.promotions[p.ID] = p
	return nil
}

func (s *MemStore) GetPromotion(id string) (*v1.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.promotions[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (s *MemStore) ListPromotions(environmentID string) ([]v1.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []v1.Promotion
	for _, id := range s.promOrder {
		p := s.promotions[id]
		if environmentID == "" || p.EnvironmentID == environmentID {
			recs = append(recs, p)
		}
	}
	return recs, nil
}
