package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketByJob     = []byte("profiles_by_job")
	bucketByCommand = []byte("profiles_by_command")
)

// Store persists profiles under <prefix>/profiles and indexes them in a
// bbolt database for jobid and command-hash lookup.
type Store struct {
	prefix     string
	profileDir string
	db         *bolt.DB
}

// NewStore ensures the on-disk layout exists and opens the index.
func NewStore(prefix string) (*Store, error) {
	profileDir := filepath.Join(prefix, "profiles")
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("profile: create %s: %w", profileDir, err)
	}

	db, err := bolt.Open(filepath.Join(prefix, "profiles.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("profile: open index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketByJob); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketByCommand)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: create index buckets: %w", err)
	}

	return &Store{prefix: prefix, profileDir: profileDir, db: db}, nil
}

// Close releases the index database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) path(jobid string) string {
	return filepath.Join(s.profileDir, jobid+".profile")
}

// Save writes p to <jobid>.profile and indexes it by jobid and by
// command hash. Save failures are reported to the caller; the
// caller logs and continues rather than re-queuing the in-memory
// profile.
func (s *Store) Save(p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("profile: marshal %s: %w", p.Desc.JobID, err)
	}

	if err := os.WriteFile(s.path(p.Desc.JobID), data, 0o644); err != nil {
		return fmt.Errorf("profile: write %s: %w", p.Desc.JobID, err)
	}

	hash := CommandHash(p.Desc.Command)
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketByJob).Put([]byte(p.Desc.JobID), []byte(s.path(p.Desc.JobID))); err != nil {
			return err
		}
		b := tx.Bucket(bucketByCommand)
		var jobids []string
		if raw := b.Get([]byte(hash)); raw != nil {
			if err := json.Unmarshal(raw, &jobids); err != nil {
				return err
			}
		}
		jobids = appendUnique(jobids, p.Desc.JobID)
		encoded, err := json.Marshal(jobids)
		if err != nil {
			return err
		}
		return b.Put([]byte(hash), encoded)
	})
	if err != nil {
		return fmt.Errorf("profile: index %s: %w", p.Desc.JobID, err)
	}

	return s.appendSurrogateSample(hash, p)
}

// Load reads back one job's persisted profile.
func (s *Store) Load(jobid string) (*Profile, error) {
	data, err := os.ReadFile(s.path(jobid))
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", jobid, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile: unmarshal %s: %w", jobid, err)
	}
	return &p, nil
}

// PerCommand groups every indexed jobid by its command hash.
func (s *Store) PerCommand() (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketByCommand).ForEach(func(k, v []byte) error {
			var jobids []string
			if err := json.Unmarshal(v, &jobids); err != nil {
				return err
			}
			out[string(k)] = jobids
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("profile: list per-command index: %w", err)
	}
	return out, nil
}

// KnownJobIDs returns every jobid indexed by a saved profile.
func (s *Store) KnownJobIDs() []string {
	var out []string
	_ = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketByJob).ForEach(func(k, v []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
