package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucijabrocic/digit-recognizer/internal/model"
)

var _ model.ArtifactCache = (*Store)(nil)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key := "https://example.com/mnist.onnx"

	_, ok, err := store.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.Put(key, []byte("weights")))

	data, ok, err := store.Get(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "weights", string(data))

	fetched, ok, err := store.FetchedAt(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fetched.After(before))
}

func TestStoreOverwrite(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("k", []byte("old")))
	require.NoError(t, store.Put("k", []byte("newer")))

	data, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "newer", string(data))
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put("k", []byte("persisted")))
	require.NoError(t, store.Close())

	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Close()

	data, ok, err := reopened.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", string(data))
}

func TestFetchedAtMissingKey(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.FetchedAt("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}
