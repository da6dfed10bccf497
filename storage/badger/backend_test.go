package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/colloquy/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("")
	require.NoError(t, err)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
	assert.Empty(t, backend.Path())
}

func TestOpenBackend_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chroma", "session_1")

	backend, err := OpenBackend(dir)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, backend.Path())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := OpenBackend(file)
	assert.Error(t, err)
}

func TestBackend_ClosedRejectsTransactions(t *testing.T) {
	backend, err := OpenBackend("")
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	err = backend.view(context.Background(), func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestBackend_UpdateRollsBackOnError(t *testing.T) {
	backend, err := OpenBackend("")
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()
	boom := errors.New("boom")

	err = backend.update(ctx, func(tx *badger.Txn) error {
		require.NoError(t, tx.Set([]byte("k"), []byte("v")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = backend.view(ctx, func(tx *badger.Txn) error {
		_, err := tx.Get([]byte("k"))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestBackend_UpdateInBatchesSplitsLargeWrites(t *testing.T) {
	backend, err := OpenBackend("")
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	// 200 x 64 KiB is more than a single transaction accepts.
	value := make([]byte, 64<<10)
	const n = 200
	err = backend.updateInBatches(ctx, n, func(tx *badger.Txn, i int) error {
		return tx.Set([]byte(fmt.Sprintf("big/%03d", i)), value)
	})
	require.NoError(t, err)

	stored := 0
	require.NoError(t, backend.view(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("big/")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			stored++
		}
		return nil
	}))
	assert.Equal(t, n, stored)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("")
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
}
