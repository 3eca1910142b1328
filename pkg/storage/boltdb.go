package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

var bucketKV = []byte("kv")

// BoltAdapter implements Adapter using BoltDB as the underlying database.
// Unlike a typed-record store, everything here is a single flat key/value
// bucket: the document log, blob bytes, peer records, and schema/version
// markers all share it, keyed by the prefixed names listed in this
// package's doc comment.
type BoltAdapter struct {
	db *bolt.DB
}

// NewBoltAdapter opens (or creates) a BoltDB-backed adapter at
// <dataDir>/peervault.db.
func NewBoltAdapter(dataDir string) (*BoltAdapter, error) {
	dbPath := filepath.Join(dataDir, "peervault.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltAdapter{db: db}, nil
}

func (s *BoltAdapter) Close() error {
	return s.db.Close()
}

func (s *BoltAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		data := b.Get([]byte(key))
		if data == nil {
			return vaulterr.New(vaulterr.CodeStorageNotFound, key)
		}
		// BoltDB only guarantees the returned slice is valid for the life
		// of the transaction, so copy it out before View returns.
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltAdapter) Write(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		return b.Put([]byte(key), value)
	})
}

func (s *BoltAdapter) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		return b.Delete([]byte(key))
	})
}

func (s *BoltAdapter) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		c := b.Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

func (s *BoltAdapter) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		found = b.Get([]byte(key)) != nil
		return nil
	})
	return found, err
}
