// Package registry holds the authoritative table of environment, deployment
// and promotion records. The Store interface is injected into every consumer
// so tests can substitute the in-memory implementation; production uses the
// BoltDB-backed store so orchestrator restarts keep their bookkeeping.
package registry

import v1 "github.com/f9-o/enclave/api/v1"

// Store is the registry contract. Get methods return nil, nil when the record
// does not exist — callers must check. Delete of an absent id is a no-op.
type Store interface {
	PutEnvironment(env v1.Environment) error
	GetEnvironment(id string) (*v1.Environment, error)
	// UpdateEnvironment applies mutate to the stored record in a single
	// write transaction. Returns false when the id is not registered; an
	// update never creates a record, so it cannot race a concurrent delete
	// back into existence.
	UpdateEnvironment(id string, mutate func(*v1.Environment)) (bool, error)
	DeleteEnvironment(id string) error
	// ListEnvironments returns a point-in-time view of all records.
	// Iteration order is unspecified.
	ListEnvironments() ([]v1.Environment, error)

	PutDeployment(d v1.Deployment) error
	GetDeployment(id string) (*v1.Deployment, error)
	// ListDeployments filters by environment id; empty returns all.
	ListDeployments(environmentID string) ([]v1.Deployment, error)

	PutPromotion(p v1.Promotion) error
	GetPromotion(id string) (*v1.Promotion, error)
	// ListPromotions filters by environment id; empty returns all.
	ListPromotions(environmentID string) ([]v1.Promotion, error)

	Close() error
}
