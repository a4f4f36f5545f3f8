package extsort

import (
	"context"
	"fmt"

	"github.com/hupe1980/plotgen/internal/fs"
	"github.com/hupe1980/plotgen/internal/record"
	"github.com/hupe1980/plotgen/internal/resource"
)

// run is a sorted spill file of table units.
type run struct {
	path  string
	count int64
}

// runWriter writes one spill file: file <- rate limit <- codec <- record writer.
type runWriter struct {
	f     fs.File
	codec interface{ Close() error }
	w     *record.Writer
	path  string
}

func (s *Sorter) createRun(ctx context.Context, path string, bufSize int) (*runWriter, error) {
	f, err := fs.Create(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("create run %s: %w", path, err)
	}
	cw, err := s.codecs.writer(resource.LimitWriter(ctx, f, s.rc))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("run %s: %w", path, err)
	}
	return &runWriter{
		f:     f,
		codec: cw,
		w:     record.NewWriterSize(cw, record.FormatTable, bufSize),
		path:  path,
	}, nil
}

func (rw *runWriter) Write(r *record.Record) error {
	if err := rw.w.Write(r); err != nil {
		return fmt.Errorf("write run %s: %w", rw.path, err)
	}
	return nil
}

// finish flushes and closes the run, returning its descriptor.
func (rw *runWriter) finish() (run, error) {
	err := rw.w.Flush()
	if cerr := rw.codec.Close(); err == nil {
		err = cerr
	}
	if cerr := rw.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return run{}, fmt.Errorf("close run %s: %w", rw.path, err)
	}
	return run{path: rw.path, count: rw.w.Count()}, nil
}

func (rw *runWriter) abort() {
	_ = rw.codec.Close()
	_ = rw.f.Close()
}

// runReader streams one spill file back in order.
type runReader struct {
	run   run
	f     fs.File
	codec interface{ Close() error }
	r     *record.Reader
}

func (s *Sorter) openRun(rn run, bufSize int) (*runReader, error) {
	f, err := fs.Open(s.fs, rn.path)
	if err != nil {
		return nil, fmt.Errorf("open run %s: %w", rn.path, err)
	}
	dr, err := s.codecs.reader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("run %s: %w", rn.path, err)
	}
	return &runReader{
		run:   rn,
		f:     f,
		codec: dr,
		r:     record.NewReaderSize(dr, record.FormatTable, bufSize),
	}, nil
}

func (rr *runReader) Next() (record.Record, error) { return rr.r.Next() }

// remaining is the number of records not yet read from the run.
func (rr *runReader) remaining() int64 { return rr.run.count - rr.r.Count() }

func (rr *runReader) Close() error {
	_ = rr.codec.Close()
	return rr.f.Close()
}
