package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"scanalytics-backend/internal/storage"
)

type ShowCmd struct {
	JSON bool `long:"json" description:"print the raw stored document"`
}

func (c *ShowCmd) Execute(_ []string) error {
	selections, closeFn, err := openSelections()
	if err != nil {
		return err
	}
	defer closeFn()

	sel, err := selections.Load()
	if errors.Is(err, storage.ErrSelectionNotFound) {
		fmt.Println("no KPIs saved yet")
		return nil
	}
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sel)
	}
	for i, q := range sel.Queries {
		fmt.Printf("%d. %s: %s\n", i+1, q.Name, q.Description)
	}
	return nil
}

type ClearCmd struct{}

func (c *ClearCmd) Execute(_ []string) error {
	selections, closeFn, err := openSelections()
	if err != nil {
		return err
	}
	defer closeFn()
	return selections.Clear()
}

func openSelections() (*storage.SelectionStore, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewSelectionStore(backend), backend.Close, nil
}
