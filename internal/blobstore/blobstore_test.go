package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKey(t *testing.T) {
	key := BuildKey("job-123", 42, 1700000000000, "md")
	assert.Equal(t, filepath.Join("job-123", "42_1700000000000.md"), key)
}

func TestLocalStore_PutWritesFileUnderRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	key := BuildKey("job-1", 7, 1700000000000, "html")
	gotKey, err := store.Put(context.Background(), key, "<html>hi</html>")
	require.NoError(t, err)
	assert.Equal(t, key, gotKey)

	data, err := os.ReadFile(filepath.Join(root, key))
	require.NoError(t, err)
	assert.Equal(t, "<html>hi</html>", string(data))
}

func TestLocalStore_PutRejectsCancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Put(ctx, "job-1/7_1.md", "content")
	require.Error(t, err)
}

func TestNewLocalStore_CreatesRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "raw_blobs")
	_, err := NewLocalStore(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
