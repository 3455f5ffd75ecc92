package local

import (
	"sort"
	"testing"

	"filehub/internal/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := t.Context()
	fs := afero.NewMemMapFs()

	store, err := New(fs, "/data")
	require.NoError(t, err, "failed to create store")

	require.NoError(t, store.Set(ctx, "file:1_a", "one", true))
	require.NoError(t, store.Set(ctx, "file:2_b", "two", true))
	require.NoError(t, store.Set(ctx, "other", "x", true))

	keys, err := store.List(ctx, "file:", true)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"file:1_a", "file:2_b"}, keys)

	value, err := store.Get(ctx, "file:2_b", true)
	require.NoError(t, err)
	assert.Equal(t, "two", value)

	exists, err := afero.Exists(fs, "/data/shared/file%3A2_b.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temp file must not survive a successful write")

	_, err = store.Get(ctx, "file:2_b", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "file:2_b", true))
	require.NoError(t, store.Delete(ctx, "file:2_b", true))

	keys, err = store.List(ctx, "file:", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:1_a"}, keys)
}

func TestStore_ListIgnoresTempFiles(t *testing.T) {
	ctx := t.Context()
	fs := afero.NewMemMapFs()
	store, err := New(fs, "/data")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/data/shared/file%3A9_z.json.tmp", []byte("{"), 0o644))

	keys, err := store.List(ctx, "file:", true)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
