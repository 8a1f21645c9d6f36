package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	boltFile   = "scanalytics.bolt"
	boltBucket = "local_state"
)

// BoltStorage keeps every key in one bucket of a single bbolt file.
type BoltStorage struct {
	path string
	db   *bolt.DB
}

func NewBoltStorage(dataDir string) *BoltStorage {
	return &BoltStorage{path: filepath.Join(dataDir, boltFile)}
}

func (b *BoltStorage) Init() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}
	db, err := bolt.Open(b.path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, errCreate := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return errCreate
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}
	b.db = db
	return nil
}

func (b *BoltStorage) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *BoltStorage) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		// v is only valid inside the transaction
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltStorage) Put(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidData)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(key), value)
	})
}

func (b *BoltStorage) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Delete([]byte(key))
	})
}
