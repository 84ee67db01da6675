package blobstore

import (
	"context"
	"testing"

	"github.com/mehdy/anbar/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadDeleteRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.EnsureBucketDir(ctx, "bucket-1"))
	require.NoError(t, store.WriteBlob(ctx, "bucket-1", "hello.txt", []byte("world")))

	data, err := store.ReadBlob(ctx, "bucket-1", "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), data)

	require.NoError(t, store.RemoveBlob(ctx, "bucket-1", "hello.txt"))
	_, err = store.ReadBlob(ctx, "bucket-1", "hello.txt")
	assert.Error(t, err)
}

func TestWriteBlobEmptyBody(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.EnsureBucketDir(ctx, "bucket-1"))
	require.NoError(t, store.WriteBlob(ctx, "bucket-1", "empty.txt", []byte{}))

	data, err := store.ReadBlob(ctx, "bucket-1", "empty.txt")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestObjectKeyWithInternalSlashes(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.EnsureBucketDir(ctx, "bucket-1"))
	require.NoError(t, store.WriteBlob(ctx, "bucket-1", "a/b/c.txt", []byte("nested")))

	data, err := store.ReadBlob(ctx, "bucket-1", "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("nested"), data)
}

func TestPathTraversalRejected(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	cases := []string{"../escape", "a/../../escape", "..", ""}
	for _, key := range cases {
		err := store.WriteBlob(ctx, "bucket-1", key, []byte("x"))
		assert.Error(t, err, "key %q should be rejected", key)
	}

	err = store.WriteBlob(ctx, "../escape-bucket", "key", []byte("x"))
	assert.Error(t, err)
}

func TestReadBlobMissingIsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.ReadBlob(context.Background(), "missing-bucket", "missing-key")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestRemoveBucketDir(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.EnsureBucketDir(ctx, "bucket-1"))
	require.NoError(t, store.WriteBlob(ctx, "bucket-1", "key", []byte("x")))
	require.NoError(t, store.RemoveBucketDir(ctx, "bucket-1"))

	_, err = store.ReadBlob(ctx, "bucket-1", "key")
	assert.Error(t, err)
}
