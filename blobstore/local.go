package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/plotgen/internal/fs"
)

// LocalStore implements Publisher on a local directory.
type LocalStore struct {
	root string
	fs   fs.FileSystem
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root, fs: fs.Default}
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Put writes the blob and swaps it in atomically.
func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	path := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return fs.WriteReplace(s.fs, path, func(w io.Writer) error {
		n, err := io.Copy(w, io.LimitReader(r, size))
		if err != nil {
			return err
		}
		if n != size {
			return fmt.Errorf("blobstore: %s: wrote %d of %d bytes", name, n, size)
		}
		return ctx.Err()
	})
}

// Stat returns the size of a stored blob.
func (s *LocalStore) Stat(_ context.Context, name string) (int64, error) {
	fi, err := s.fs.Stat(s.path(name))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := s.fs.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
