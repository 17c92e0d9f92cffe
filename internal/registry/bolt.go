// BoltDB-backed Store. All writes are transactional; reads use read-only
// transactions to minimise contention.
package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	v1 "github.com/f9-o/enclave/api/v1"
)

// Bucket names
var (
	bucketEnvironments = []byte("environments")
	bucketDeployments  = []byte("deployments")
	bucketPromotions   = []byte("promotions")
)

// BoltStore wraps a BoltDB instance with typed accessor methods.
type BoltStore struct {
	bolt *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// Open opens (or creates) the registry database at the given path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open registry db %q: %w", path, err)
	}

	// Ensure all buckets exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEnvironments, bucketDeployments, bucketPromotions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &BoltStore{bolt: db}, nil
}

// Close closes the underlying BoltDB file.
func (s *BoltStore) Close() error {
	return s.bolt.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Environment operations
// ─────────────────────────────────────────────────────────────────────────────

// PutEnvironment upserts an Environment record keyed by id.
func (s *BoltStore) PutEnvironment(env v1.Environment) error {
	if env.ID == "" {
		return fmt.Errorf("environment id must be non-empty")
	}
	return s.putJSON(bucketEnvironments, env.ID, env)
}

// GetEnvironment retrieves an Environment by id. Returns nil, nil if not found.
func (s *BoltStore) GetEnvironment(id string) (*v1.Environment, error) {
	var env v1.Environment
	found, err := s.getJSON(bucketEnvironments, id, &env)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &env, nil
}

// UpdateEnvironment mutates an existing record inside one write transaction.
// Returns false without writing when the id is absent.
func (s *BoltStore) UpdateEnvironment(id string, mutate func(*v1.Environment)) (bool, error) {
	var found bool
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		var env v1.Environment
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("unmarshal environment %q: %w", id, err)
		}
		mutate(&env)
		env.ID = id
		out, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		found = true
		return b.Put([]byte(id), out)
	})
	return found, err
}

// DeleteEnvironment removes an environment record. No-op if absent.
func (s *BoltStore) DeleteEnvironment(id string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEnvironments).Delete([]byte(id))
	})
}

// ListEnvironments returns all environment records.
func (s *BoltStore) ListEnvironments() ([]v1.Environment, error) {
	var envs []v1.Environment
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEnvironments).ForEach(func(k, v []byte) error {
			var env v1.Environment
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("unmarshal environment %q: %w", k, err)
			}
			envs = append(envs, env)
			return nil
		})
	})
	return envs, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Deployment history
// ─────────────────────────────────────────────────────────────────────────────

// PutDeployment upserts a deployment record.
func (s *BoltStore) PutDeployment(d v1.Deployment) error {
	return s.putJSON(bucketDeployments, d.ID, d)
}

// GetDeployment retrieves a Deployment by id. Returns nil, nil if not found.
func (s *BoltStore) GetDeployment(id string) (*v1.Deployment, error) {
	var d v1.Deployment
	found, err := s.getJSON(bucketDeployments, id, &d)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &d, nil
}

// ListDeployments returns all deployment records for a given environment id.
// Pass empty string to return all deployments.
func (s *BoltStore) ListDeployments(environmentID string) ([]v1.Deployment, error) {
	var recs []v1.Deployment
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDeployments).ForEach(func(k, v []byte) error {
			var d v1.Deployment
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if environmentID == "" || d.EnvironmentID == environmentID {
				recs = append(recs, d)
			}
			return nil
		})
	})
	return recs, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Promotion history
// ─────────────────────────────────────────────────────────────────────────────

// PutPromotion upserts a promotion record.
func (s *BoltStore) PutPromotion(p v1.Promotion) error {
	return s.putJSON(bucketPromotions, p.ID, p)
}

// GetPromotion retrieves a Promotion by id. Returns nil, nil if not found.
func (s *BoltStore) GetPromotion(id string) (*v1.Promotion, error) {
	var p v1.Promotion
	found, err := s.getJSON(bucketPromotions, id, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

// ListPromotions returns all promotion records for a given environment id.
// Pass empty string to return all promotions.
func (s *BoltStore) ListPromotions(environmentID string) ([]v1.Promotion, error) {
	var recs []v1.Promotion
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPromotions).ForEach(func(k, v []byte) error {
			var p v1.Promotion
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if environmentID == "" || p.EnvironmentID == environmentID {
				recs = append(recs, p)
			}
			return nil
		})
	})
	return recs, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Generic helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *BoltStore) putJSON(bucket []byte, key string, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *BoltStore) getJSON(bucket []byte, key string, out any) (bool, error) {
	var found bool
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	return found, err
}
