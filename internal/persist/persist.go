// Package persist appends batches of records to each table's intermediate stream.
package persist

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/plotgen/internal/fs"
	"github.com/hupe1980/plotgen/internal/record"
	"github.com/hupe1980/plotgen/internal/resource"
)

// Appender writes stream units to the per-table intermediate files of one run.
// Each file has a single writer at a time; the orchestrator guarantees this by
// persisting batches sequentially.
type Appender struct {
	fs     fs.FileSystem
	layout Layout
	rc     *resource.Controller
}

// NewAppender returns an Appender. A nil fsys means fs.Default; a nil rc disables throttling.
func NewAppender(fsys fs.FileSystem, layout Layout, rc *resource.Controller) *Appender {
	if fsys == nil {
		fsys = fs.Default
	}
	return &Appender{fs: fsys, layout: layout, rc: rc}
}

// Layout returns the file layout used by the Appender.
func (a *Appender) Layout() Layout { return a.layout }

// Reset removes intermediate streams left behind by an earlier run of the
// same name so the new run starts from empty files.
func (a *Appender) Reset(tableCount int) error {
	if err := a.fs.MkdirAll(a.layout.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", a.layout.Dir, err)
	}
	for t := 0; t < tableCount; t++ {
		path := a.layout.Stream(t)
		if err := a.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// Append encodes rs as 36-byte stream units at the end of table's stream.
// The file is created on first use. It returns the number of bytes written.
func (a *Appender) Append(ctx context.Context, table int, rs []record.Record) (n int64, err error) {
	path := a.layout.Stream(table)
	f, err := fs.OpenAppend(a.fs, path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer fs.CloseJoin(&err, f)

	w := record.NewWriter(resource.LimitWriter(ctx, f, a.rc), record.FormatStream)
	if err := w.WriteAll(rs); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return w.Count() * record.StreamSize, nil
}

// Cleanup removes the intermediate streams once they have been sorted.
func (a *Appender) Cleanup(tableCount int) error {
	var errs []error
	for t := 0; t < tableCount; t++ {
		if err := a.fs.Remove(a.layout.Stream(t)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
