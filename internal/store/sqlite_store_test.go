package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer func() { _ = store.Close() }()

	t.Run("save and load", func(t *testing.T) {
		err := store.Save("checksum123", "checksum", "/path/to/file.log", 1024)
		assert.NoError(t, err)

		offset, found, err := store.Load("checksum123", "checksum")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(1024), offset)
	})

	t.Run("strategies are isolated", func(t *testing.T) {
		// A checkpoint written under one strategy is invisible under another;
		// fingerprints from different strategies are not comparable.
		err := store.Save("sharedid", "checksum", "/path/a.log", 100)
		require.NoError(t, err)

		_, found, err := store.Load("sharedid", "deviceAndInode")
		assert.NoError(t, err)
		assert.False(t, found)

		err = store.Save("sharedid", "deviceAndInode", "/path/a.log", 200)
		require.NoError(t, err)

		chk, _, err := store.Load("sharedid", "checksum")
		assert.NoError(t, err)
		assert.Equal(t, int64(100), chk)
		ino, _, err := store.Load("sharedid", "deviceAndInode")
		assert.NoError(t, err)
		assert.Equal(t, int64(200), ino)
	})

	t.Run("update existing offset and path", func(t *testing.T) {
		require.NoError(t, store.Save("update123", "checksum", "/path/to/update.log", 1000))
		require.NoError(t, store.Save("update123", "checksum", "/path/to/update.log.1", 2000))

		offset, found, err := store.Load("update123", "checksum")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(2000), offset)
	})

	t.Run("delete offset", func(t *testing.T) {
		require.NoError(t, store.Save("delete123", "checksum", "/path/to/delete.log", 3000))
		require.NoError(t, store.Delete("delete123", "checksum"))

		_, found, err := store.Load("delete123", "checksum")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("load non-existent offset", func(t *testing.T) {
		_, found, err := store.Load("nonexistent", "checksum")
		assert.NoError(t, err)
		assert.False(t, found)
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "reopen.db")

	store1, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Save("restart123", "checksum", "/path/to/multi.log", 5000))
	require.NoError(t, store1.Close())

	// A fresh process sees the persisted offset.
	store2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = store2.Close() }()

	offset, found, err := store2.Load("restart123", "checksum")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(5000), offset)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	// A regular file as a directory component cannot be created through, even
	// with permission to write the parent.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	store, err := NewSQLiteStore(filepath.Join(blocker, "sub", "test.db"))
	assert.Error(t, err)
	assert.Nil(t, store)
}
