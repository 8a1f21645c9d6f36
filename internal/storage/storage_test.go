package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/internal/insight"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	out := map[string]Storage{}
	for _, typ := range []string{"memory", "disk", "bolt"} {
		s, err := Open(config.StorageConfig{Type: typ, DataDir: t.TempDir()})
		require.NoError(t, err, typ)
		t.Cleanup(func() { _ = s.Close() })
		out[typ] = s
	}
	return out
}

func TestStorage_PutGetDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("queries")
			assert.True(t, errors.Is(err, ErrKeyNotFound), "got %v", err)

			require.NoError(t, s.Put("queries", []byte(`{"queries":[]}`)))
			require.NoError(t, s.Put("queries", []byte(`{"queries":[{"name":"a","description":"b"}]}`)))

			got, err := s.Get("queries")
			require.NoError(t, err)
			assert.JSONEq(t, `{"queries":[{"name":"a","description":"b"}]}`, string(got), "last writer wins")

			require.NoError(t, s.Delete("queries"))
			require.NoError(t, s.Delete("queries"), "deleting a missing key is a no-op")
			_, err = s.Get("queries")
			assert.True(t, errors.Is(err, ErrKeyNotFound))
		})
	}
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := Open(config.StorageConfig{Type: "s3"})
	assert.True(t, errors.Is(err, ErrStorageInit))
}

func TestDiskStorage_RejectsPathKeys(t *testing.T) {
	d := NewDiskStorage(t.TempDir())
	require.NoError(t, d.Init())

	for _, key := range []string{"", "../escape", `a\b`, ".hidden"} {
		err := d.Put(key, []byte("x"))
		assert.True(t, errors.Is(err, ErrInvalidData), "key %q", key)
	}
}

func TestDiskStorage_LeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskStorage(dir)
	require.NoError(t, d.Init())
	require.NoError(t, d.Put(SelectionKey, []byte(`{"queries":[]}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "queries.json", entries[0].Name())
}

func TestBoltStorage_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	b := NewBoltStorage(dir)
	require.NoError(t, b.Init())
	require.NoError(t, b.Put(SelectionKey, []byte(`{"queries":[]}`)))
	require.NoError(t, b.Close())

	assert.FileExists(t, filepath.Join(dir, boltFile))

	reopened := NewBoltStorage(dir)
	require.NoError(t, reopened.Init())
	defer reopened.Close()
	got, err := reopened.Get(SelectionKey)
	require.NoError(t, err)
	assert.Equal(t, `{"queries":[]}`, string(got))
}

func TestSelectionStore(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewSelectionStore(s)

			_, err := store.Load()
			assert.True(t, errors.Is(err, ErrSelectionNotFound))

			sel := Selection{Queries: []insight.Proposal{
				{Name: "Monthly Recurring Revenue", Description: "Predictable subscription revenue per month."},
				{Name: "Logo Churn", Description: "Share of customer accounts cancelling each month."},
			}}
			require.NoError(t, store.Save(sel))

			raw, err := s.Get(SelectionKey)
			require.NoError(t, err)
			assert.JSONEq(t, `{"queries":[`+
				`{"name":"Monthly Recurring Revenue","description":"Predictable subscription revenue per month."},`+
				`{"name":"Logo Churn","description":"Share of customer accounts cancelling each month."}]}`, string(raw))

			got, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, sel, got)

			require.NoError(t, store.Save(Selection{}))
			raw, err = s.Get(SelectionKey)
			require.NoError(t, err)
			assert.JSONEq(t, `{"queries":[]}`, string(raw))

			require.NoError(t, store.Clear())
			_, err = store.Load()
			assert.True(t, errors.Is(err, ErrSelectionNotFound))
		})
	}
}

func TestSelectionStore_CorruptValue(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, s.Put(SelectionKey, []byte(`not json`)))

	_, err := NewSelectionStore(s).Load()
	assert.True(t, errors.Is(err, ErrInvalidData))
}
