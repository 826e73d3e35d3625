package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/intellinote/intellinote/internal/domain"
)

// PutResult describes the outcome of writing content into the store. Path is
// absolute so callers can read the object regardless of working directory.
type PutResult struct {
	Digest  string
	Size    int64
	Path    string
	Existed bool
}

// FileStore is a content-addressed blob store on the local filesystem.
// Objects live at <root>/aa/bb/<digest> where aa and bb are the first two
// byte pairs of the hex sha256 digest. Writes go to a temp file first and
// are renamed into place, so readers never observe partial content.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store root: %w", err)
	}
	return &FileStore{root: abs}, nil
}

// shardPath returns the storage-relative path for a digest.
func shardPath(digest string) string {
	return filepath.Join(digest[0:2], digest[2:4], digest)
}

// Put streams r into the store, hashing as it writes. If an object with the
// same digest already exists the temp file is discarded and the existing
// object is reused.
func (s *FileStore) Put(_ context.Context, r io.Reader) (*PutResult, error) {
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	dst := filepath.Join(s.root, shardPath(digest))

	if _, err := os.Stat(dst); err == nil {
		return &PutResult{Digest: digest, Size: size, Path: dst, Existed: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create shard dir: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return nil, fmt.Errorf("failed to move content into store: %w", err)
	}

	return &PutResult{Digest: digest, Size: size, Path: dst, Existed: false}, nil
}

// Locate returns the absolute path of the object for digest, or
// ErrBlobNotFound if no object is stored under it.
func (s *FileStore) Locate(_ context.Context, digest string) (string, error) {
	if !domain.IsValidDigest(digest) {
		return "", domain.ErrInvalidDigest
	}
	path := filepath.Join(s.root, shardPath(digest))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to stat content: %w", err)
	}
	return path, nil
}

// Open returns a reader over the stored object.
func (s *FileStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	path, err := s.Locate(ctx, digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	return f, nil
}

// Delete removes the object for digest and prunes shard directories that
// became empty. Deleting a missing object is not an error.
func (s *FileStore) Delete(_ context.Context, digest string) error {
	if !domain.IsValidDigest(digest) {
		return domain.ErrInvalidDigest
	}
	path := filepath.Join(s.root, shardPath(digest))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete content: %w", err)
	}

	// Prune aa/bb then aa if empty. Remove fails on non-empty dirs, which
	// is exactly the behavior we want.
	inner := filepath.Dir(path)
	if err := os.Remove(inner); err == nil {
		_ = os.Remove(filepath.Dir(inner))
	}
	return nil
}
