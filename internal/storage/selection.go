package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"scanalytics-backend/internal/insight"
)

// SelectionKey is the single key the committed proposals live under.
const SelectionKey = "queries"

// Selection is the finalized proposal list chosen by the user.
type Selection struct {
	Queries []insight.Proposal `json:"queries"`
}

type SelectionStore struct {
	backend Storage
}

func NewSelectionStore(backend Storage) *SelectionStore {
	return &SelectionStore{backend: backend}
}

// Save replaces any previous selection.
func (s *SelectionStore) Save(sel Selection) error {
	if sel.Queries == nil {
		sel.Queries = []insight.Proposal{}
	}
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return s.backend.Put(SelectionKey, data)
}

func (s *SelectionStore) Load() (Selection, error) {
	data, err := s.backend.Get(SelectionKey)
	if errors.Is(err, ErrKeyNotFound) {
		return Selection{}, ErrSelectionNotFound
	}
	if err != nil {
		return Selection{}, err
	}

	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return Selection{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return sel, nil
}

func (s *SelectionStore) Clear() error {
	return s.backend.Delete(SelectionKey)
}
