package storage

import "errors"

var (
	ErrKeyNotFound       = errors.New("key not found")
	ErrSelectionNotFound = errors.New("no committed selection")
	ErrInvalidData       = errors.New("invalid data")
	ErrStorageInit       = errors.New("storage initialization failed")
	ErrFileOperation     = errors.New("file operation failed")
)
