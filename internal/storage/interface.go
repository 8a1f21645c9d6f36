package storage

import (
	"fmt"

	"scanalytics-backend/internal/config"
)

// Storage is a small key/value store. Writes to one key are last-writer-wins.
type Storage interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error

	Init() error
	Close() error
}

// Open builds and initializes the backend named by cfg.Type: memory, disk or
// bolt.
func Open(cfg config.StorageConfig) (Storage, error) {
	var store Storage
	switch cfg.Type {
	case "memory", "":
		store = NewMemoryStorage()
	case "disk":
		store = NewDiskStorage(cfg.DataDir)
	case "bolt":
		store = NewBoltStorage(cfg.DataDir)
	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", ErrStorageInit, cfg.Type)
	}

	if err := store.Init(); err != nil {
		return nil, err
	}
	return store, nil
}
