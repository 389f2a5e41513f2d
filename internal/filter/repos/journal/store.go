// Package journal persists the outcome of the most recent sync of each named
// filter in a bbolt database, so status survives restarts.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var bucketSyncs = []byte("syncs")

// Outcome classifies a finished sync run.
type Outcome string

const (
	OutcomeCacheHit   Outcome = "cache_hit"
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeFailed     Outcome = "failed"
)

// Entry is the last recorded sync of one filter.
type Entry struct {
	Name        string  `json:"name"`
	RunID       string  `json:"run_id"`
	Outcome     Outcome `json:"outcome"`
	SHA256      string  `json:"sha256,omitempty"`
	MD5         string  `json:"md5,omitempty"`
	NumBits     uint32  `json:"num_bits,omitempty"`
	Error       string  `json:"error,omitempty"`
	UpdatedUnix int64   `json:"updated_unix"`
}

// Store is a bbolt-backed journal. It is safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSyncs)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record replaces the entry for e.Name.
func (s *Store) Record(e Entry) error {
	if e.Name == "" {
		return errors.New("journal entry has no name")
	}
	v, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSyncs).Put([]byte(e.Name), v)
	})
}

// Get returns the entry for name, if one was recorded.
func (s *Store) Get(name string) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSyncs).Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return Entry{}, false, err
	}
	return e, found, nil
}

// Delete removes the entry for name. Deleting a missing entry is not an error.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSyncs).Delete([]byte(name))
	})
}

// Len returns the number of recorded filters.
func (s *Store) Len() int {
	var n int
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketSyncs).Stats().KeyN
		return nil
	})
	return n
}
