package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileBackend(t *testing.T) (*FileBackend, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return backend, dir
}

func TestFileBackend_StoreFetch(t *testing.T) {
	backend, dir := newTestFileBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Store(ctx, "config/config_1.json", []byte(`{"a":1}`)))

	data, err := backend.Fetch(ctx, "config/config_1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), data)

	onDisk, err := os.ReadFile(filepath.Join(dir, "config", "config_1.json"))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	require.NoError(t, backend.Store(ctx, "config/config_1.json", []byte(`{"a":2}`)))
	data, err = backend.Fetch(ctx, "config/config_1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":2}`), data)

	entries, err := os.ReadDir(filepath.Join(dir, "config"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files may be left behind")
}

func TestFileBackend_FetchMissing(t *testing.T) {
	backend, _ := newTestFileBackend(t)

	_, err := backend.Fetch(context.Background(), "config/missing.json")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFileBackend_RejectsUnsafeKeys(t *testing.T) {
	backend, _ := newTestFileBackend(t)
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../b", "a//b", `a\b`, ".tmp-x"} {
		t.Run(key, func(t *testing.T) {
			err := backend.Store(ctx, key, []byte("x"))
			assert.ErrorIs(t, err, interfaces.ErrValidation)
		})
	}
}

func TestFileBackend_Create(t *testing.T) {
	backend, _ := newTestFileBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Create(ctx, "config/config_1.json", []byte("first")))

	err := backend.Create(ctx, "config/config_1.json", []byte("second"))
	assert.ErrorIs(t, err, interfaces.ErrContentExists)

	data, err := backend.Fetch(ctx, "config/config_1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestFileBackend_CreateRace(t *testing.T) {
	backend, dir := newTestFileBackend(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- backend.Create(ctx, "config/config_1.json", []byte(fmt.Sprintf("writer-%d", i)))
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, interfaces.ErrContentExists)
	}
	assert.Equal(t, 1, winners)

	entries, err := os.ReadDir(filepath.Join(dir, "config"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileBackend_DeleteAndList(t *testing.T) {
	backend, _ := newTestFileBackend(t)
	ctx := context.Background()

	for _, key := range []string{"certificados/1_200_b.pfx", "certificados/1_100_a.pfx", "certificados/2_100_a.pfx", "config/config_1.json"} {
		require.NoError(t, backend.Store(ctx, key, []byte(key)))
	}

	keys, err := backend.List(ctx, "certificados/1_")
	require.NoError(t, err)
	assert.Equal(t, []string{"certificados/1_100_a.pfx", "certificados/1_200_b.pfx"}, keys)

	keys, err = backend.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 4)

	keys, err = backend.List(ctx, "missing/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, backend.Delete(ctx, "certificados/1_100_a.pfx"))
	require.NoError(t, backend.Delete(ctx, "certificados/1_100_a.pfx"), "deleting twice is not an error")

	keys, err = backend.List(ctx, "certificados/1_")
	require.NoError(t, err)
	assert.Equal(t, []string{"certificados/1_200_b.pfx"}, keys)
}

func TestFileBackend_Available(t *testing.T) {
	backend, dir := newTestFileBackend(t)
	assert.True(t, backend.Available(context.Background()))
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	require.NoError(t, os.RemoveAll(dir))
	assert.False(t, backend.Available(context.Background()))
}
