package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Publisher stores finished table files under a name.
type Publisher interface {
	// Put uploads size bytes from r as name, replacing any previous blob.
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	// Stat returns the size of a stored blob.
	Stat(ctx context.Context, name string) (int64, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}
