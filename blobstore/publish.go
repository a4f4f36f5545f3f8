package blobstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/plotgen/internal/fs"
)

// DefaultConcurrency is the number of uploads Publish runs at once.
const DefaultConcurrency = 4

// File is a local file to publish under Name.
type File struct {
	Name string
	Path string
}

// Publish uploads files to p with at most concurrency uploads in flight, then
// checks that every stored blob has the size of its source. It returns the
// number of bytes uploaded. The first failure cancels the remaining uploads.
func Publish(ctx context.Context, p Publisher, fsys fs.FileSystem, files []File, concurrency int) (int64, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, file := range files {
		g.Go(func() error {
			n, err := putFile(ctx, p, fsys, file)
			if err != nil {
				return fmt.Errorf("publish %s: %w", file.Name, err)
			}
			total.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total.Load(), err
	}
	return total.Load(), nil
}

func putFile(ctx context.Context, p Publisher, fsys fs.FileSystem, file File) (n int64, err error) {
	fi, err := fsys.Stat(file.Path)
	if err != nil {
		return 0, err
	}
	size := fi.Size()

	f, err := fs.Open(fsys, file.Path)
	if err != nil {
		return 0, err
	}
	defer fs.CloseJoin(&err, f)

	if err := p.Put(ctx, file.Name, f, size); err != nil {
		return 0, err
	}

	got, err := p.Stat(ctx, file.Name)
	if err != nil {
		return 0, err
	}
	if got != size {
		return 0, fmt.Errorf("stored size %d, want %d", got, size)
	}
	return size, nil
}
