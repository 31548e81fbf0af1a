// Package storage caches downloaded model artifacts in a BoltDB file so a
// restarted server does not fetch the same model again.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	artifactsBucket = "artifacts" // artifact bytes keyed by source URL
	metaBucket      = "meta"      // artifactInfo keyed by source URL
)

// Store is an artifact cache backed by BoltDB.
type Store struct {
	db *bbolt.DB
}

type artifactInfo struct {
	Size      int       `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
}

// New opens (or creates) the cache database in dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, "models.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket)); err != nil {
			return fmt.Errorf("create artifacts bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns a copy of the cached artifact for key. A size mismatch with
// the recorded metadata is treated as a miss.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(artifactsBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}

		rawInfo := tx.Bucket([]byte(metaBucket)).Get([]byte(key))
		if rawInfo == nil {
			return nil
		}
		var info artifactInfo
		if err := json.Unmarshal(rawInfo, &info); err != nil {
			return fmt.Errorf("unmarshal artifact info: %w", err)
		}
		if info.Size != len(data) {
			return nil
		}

		// bbolt memory is only valid inside the transaction
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Put stores data under key, replacing any previous artifact.
func (s *Store) Put(key string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		info, err := json.Marshal(artifactInfo{Size: len(data), FetchedAt: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("marshal artifact info: %w", err)
		}
		if err := tx.Bucket([]byte(artifactsBucket)).Put([]byte(key), data); err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(key), info)
	})
}

// FetchedAt reports when key was stored.
func (s *Store) FetchedAt(key string) (time.Time, bool, error) {
	var info artifactInfo
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(metaBucket)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &info)
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read artifact info: %w", err)
	}
	return info.FetchedAt, found, nil
}
