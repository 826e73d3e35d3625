package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellinote/intellinote/internal/domain"
)

func TestFileStore_Put(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	content := "hello, notebook"
	sum := sha256.Sum256([]byte(content))
	wantDigest := hex.EncodeToString(sum[:])

	res, err := store.Put(ctx, strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, wantDigest, res.Digest)
	assert.Equal(t, int64(len(content)), res.Size)
	assert.False(t, res.Existed)

	// The returned path must be readable from anywhere, not relative to the
	// store root (MIME sniffing reads it without knowing the root).
	assert.True(t, filepath.IsAbs(res.Path))
	assert.True(t, strings.HasSuffix(res.Path, filepath.Join(wantDigest[0:2], wantDigest[2:4], wantDigest)))
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	path, err := store.Locate(ctx, res.Digest)
	require.NoError(t, err)
	assert.Equal(t, res.Path, path)
}

func TestFileStore_Put_Dedup(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Put(ctx, strings.NewReader("same bytes"))
	require.NoError(t, err)
	second, err := store.Put(ctx, strings.NewReader("same bytes"))
	require.NoError(t, err)

	assert.Equal(t, first.Digest, second.Digest)
	assert.False(t, first.Existed)
	assert.True(t, second.Existed)
}

func TestFileStore_Put_NoPartialFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)

	_, err = store.Put(ctx, io.MultiReader(
		strings.NewReader("partial "),
		&failingReader{},
	))
	require.Error(t, err)

	// The failed write must leave no temp files behind.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestFileStore_Open(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	res, err := store.Put(ctx, strings.NewReader("open me"))
	require.NoError(t, err)

	rc, err := store.Open(ctx, res.Digest)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "open me", string(data))
}

func TestFileStore_Locate_NotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	missing := strings.Repeat("ab", 32)
	_, err = store.Locate(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	_, err = store.Locate(ctx, "not-a-digest")
	assert.ErrorIs(t, err, domain.ErrInvalidDigest)
}

func TestFileStore_Delete_PrunesShards(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)

	res, err := store.Put(ctx, strings.NewReader("short lived"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, res.Digest))

	_, err = store.Locate(ctx, res.Digest)
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	// Shard directories are pruned once empty.
	_, err = os.Stat(filepath.Join(root, res.Digest[0:2]))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(ctx, res.Digest))
}

func TestFileStore_Delete_KeepsSiblingShards(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)

	res, err := store.Put(ctx, strings.NewReader("keep my shard"))
	require.NoError(t, err)

	// Plant a sibling in the same aa/bb shard so pruning must stop.
	sibling := filepath.Join(root, res.Digest[0:2], res.Digest[2:4], strings.Repeat("ff", 32))
	require.NoError(t, os.WriteFile(sibling, []byte("x"), 0o644))

	require.NoError(t, store.Delete(ctx, res.Digest))

	_, err = os.Stat(filepath.Dir(sibling))
	assert.NoError(t, err)
}
