package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scanalytics-backend/pkg/logger"
)

// DiskStorage keeps one JSON file per key under dataDir.
type DiskStorage struct {
	dataDir string
	mu      sync.RWMutex
}

func NewDiskStorage(dataDir string) *DiskStorage {
	return &DiskStorage{dataDir: dataDir}
}

func (d *DiskStorage) Init() error {
	if err := os.MkdirAll(d.dataDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Debugf("disk storage ready at %s", d.dataDir)
	return nil
}

func (d *DiskStorage) Close() error {
	return nil
}

func (d *DiskStorage) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: bad key %q", ErrInvalidData, key)
	}
	return filepath.Join(d.dataDir, key+".json"), nil
}

func (d *DiskStorage) Get(key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return data, nil
}

// Put writes through a temp file and rename so readers never see a torn
// value.
func (d *DiskStorage) Put(key string, value []byte) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tempPath := p + ".tmp"
	if err := os.WriteFile(tempPath, value, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	if err := os.Rename(tempPath, p); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}

func (d *DiskStorage) Delete(key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}
