package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"unsafe"

	"github.com/hupe1980/plotgen/internal/fs"
	"github.com/hupe1980/plotgen/internal/record"
	"github.com/hupe1980/plotgen/internal/resource"
)

const (
	// MinMemory is the smallest budget the sorter accepts.
	MinMemory = 4 << 10

	minIOBuf  = 512
	maxIOBuf  = 64 << 10
	minRunBuf = 512

	cancelCheckEvery = 1 << 16
)

// recordMem is the in-memory footprint of one buffered record.
var recordMem = int64(unsafe.Sizeof(record.Record{}))

// ErrMemoryTooSmall is returned when the budget cannot hold the sorter's buffers.
var ErrMemoryTooSmall = errors.New("extsort: memory limit too small")

// Config configures a Sorter.
type Config struct {
	// MemoryLimit caps the bytes the sorter buffers at any instant. If zero,
	// the Controller's limit is used.
	MemoryLimit int64

	// TempDir holds the spilled runs. It is created on demand and removed
	// when Sort returns.
	TempDir string

	// Compression applied to spilled runs.
	Compression Compression

	// FS defaults to fs.Default.
	FS fs.FileSystem

	// Controller accounts for buffer reservations and IO throttling. If nil,
	// a private controller with MemoryLimit is used.
	Controller *resource.Controller

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats summarises one Sort call.
type Stats struct {
	Input          int64 // records ingested from the stream
	Output         int64 // records written to the sorted file
	Skipped        int64 // records lost to unreadable runs
	TruncatedBytes int   // bytes of a partial trailing unit in the stream
	Runs           int   // sorted runs produced from the stream
	Passes         int   // merge passes, including the final one
}

// Sorter sorts a table's intermediate stream by hash under a memory budget.
//
// Buffers and, with compression, run codecs are reserved against the
// Controller before they are allocated. A Sorter runs one Sort at a time.
type Sorter struct {
	cfg    Config
	fs     fs.FileSystem
	rc     *resource.Controller
	logger *slog.Logger
	budget int64
	codecs *codecPool
}

// New validates cfg and returns a Sorter.
func New(cfg Config) (*Sorter, error) {
	budget := cfg.MemoryLimit
	if budget == 0 {
		budget = cfg.Controller.MemoryLimit()
	}
	if err := CheckMemory(budget, cfg.Compression); err != nil {
		return nil, err
	}
	if cfg.TempDir == "" {
		return nil, errors.New("extsort: TempDir is required")
	}

	s := &Sorter{cfg: cfg, fs: cfg.FS, rc: cfg.Controller, logger: cfg.Logger, budget: budget}
	if s.fs == nil {
		s.fs = fs.Default
	}
	if s.rc == nil {
		s.rc = resource.NewController(resource.Config{MemoryLimitBytes: budget})
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.codecs = newCodecPool(cfg.Compression, s.rc)
	return s, nil
}

// CheckMemory reports ErrMemoryTooSmall when limit cannot hold one sort chunk
// and a two-way merge, including the run codecs of compression c.
func CheckMemory(limit int64, c Compression) error {
	if limit < MinMemory {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrMemoryTooSmall, limit, MinMemory)
	}
	if chunkCap(limit, c) < 1 || fanIn(limit, c) < 2 {
		return fmt.Errorf("%w: %d bytes cannot hold the %s run codecs", ErrMemoryTooSmall, limit, c)
	}
	return nil
}

// ioBufSize is the buffer used for the stream reader and each writer.
func ioBufSize(budget int64) int {
	return int(min(max(budget/16, minIOBuf), maxIOBuf))
}

// chunkCap is the number of records one spill chunk holds next to the
// stream reader, the run writer and its encoder.
func chunkCap(budget int64, c Compression) int64 {
	return (budget - 2*int64(ioBufSize(budget)) - c.encoderMem()) / recordMem
}

// fanIn is the most runs one merge can read while staying inside the budget.
// Every merge input needs a read buffer and a decoder; an intermediate pass
// also keeps one encoder for its output.
func fanIn(budget int64, c Compression) int {
	return int((budget - int64(ioBufSize(budget)) - c.encoderMem()) / (minRunBuf + c.decoderMem()))
}

func (s *Sorter) ioBufSize() int { return ioBufSize(s.budget) }

func (s *Sorter) fanIn() int { return fanIn(s.budget, s.cfg.Compression) }

// Sort reads the stream file src and writes its records to dst ordered by hash.
//
// Each record's Position is its ordinal in src and its Offset is its ordinal
// in dst. Records with equal hashes keep their stream order. dst is replaced
// only once the full output has been written.
func (s *Sorter) Sort(ctx context.Context, src, dst string) (st Stats, err error) {
	if err := s.fs.MkdirAll(s.cfg.TempDir, 0o755); err != nil {
		return st, fmt.Errorf("create %s: %w", s.cfg.TempDir, err)
	}
	defer s.codecs.release()
	defer func() {
		if rerr := s.fs.RemoveAll(s.cfg.TempDir); rerr != nil && err == nil {
			err = fmt.Errorf("remove %s: %w", s.cfg.TempDir, rerr)
		}
	}()

	runs, err := s.spill(ctx, src, dst, &st)
	if err != nil {
		return st, err
	}
	if runs == nil {
		return st, nil
	}

	runs, err = s.reduce(ctx, runs, &st)
	if err != nil {
		return st, err
	}

	st.Passes++
	err = fs.WriteReplace(s.fs, dst, func(w io.Writer) error {
		out := record.NewWriterSize(resource.LimitWriter(ctx, w, s.rc), record.FormatTable, s.ioBufSize())
		var ordinal uint64
		skipped, err := s.merge(ctx, runs, func(r *record.Record) error {
			r.Offset = ordinal
			ordinal++
			return out.Write(r)
		})
		st.Skipped += skipped
		if err != nil {
			return err
		}
		st.Output = out.Count()
		return out.Flush()
	})
	if err != nil {
		return st, fmt.Errorf("write %s: %w", dst, err)
	}
	return st, nil
}

// spill cuts src into budget-sized chunks, sorts each and writes it as a run.
// When the whole stream fits one chunk it is written straight to dst and
// spill returns nil runs.
func (s *Sorter) spill(ctx context.Context, src, dst string, st *Stats) (runs []run, err error) {
	if err := s.codecs.grow(ctx, 1, 0); err != nil {
		return nil, err
	}
	ioBuf := s.ioBufSize()
	chunkLen := (s.budget - 2*int64(ioBuf) - s.codecs.reserved()) / recordMem
	reserved := 2*int64(ioBuf) + chunkLen*recordMem
	if err := s.rc.AcquireMemory(ctx, reserved); err != nil {
		return nil, fmt.Errorf("reserve sort buffer: %w", err)
	}
	defer s.rc.ReleaseMemory(reserved)

	f, err := fs.Open(s.fs, src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	defer fs.CloseJoin(&err, f)

	rd := record.NewReaderSize(f, record.FormatStream, ioBuf)
	chunk := make([]record.Record, 0, chunkLen)
	var position uint64

	flush := func() error {
		slices.SortStableFunc(chunk, record.Compare)
		path := filepath.Join(s.cfg.TempDir, fmt.Sprintf("run-%06d.bin", len(runs)))
		rw, err := s.createRun(ctx, path, ioBuf)
		if err != nil {
			return err
		}
		for i := range chunk {
			if err := rw.Write(&chunk[i]); err != nil {
				rw.abort()
				return err
			}
		}
		rn, err := rw.finish()
		if err != nil {
			return err
		}
		runs = append(runs, rn)
		chunk = chunk[:0]
		return ctx.Err()
	}

	for {
		r, err := rd.Next()
		if err == io.EOF {
			break
		}
		var te *record.TruncatedError
		if errors.As(err, &te) {
			st.TruncatedBytes = te.Bytes
			s.logger.WarnContext(ctx, "dropping partial record at end of stream", "file", src, "bytes", te.Bytes)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src, err)
		}

		r.Position = position
		position++
		chunk = append(chunk, r)
		if len(chunk) == cap(chunk) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	st.Input = int64(position)

	if len(runs) == 0 {
		slices.SortStableFunc(chunk, record.Compare)
		for i := range chunk {
			chunk[i].Offset = uint64(i)
		}
		err := fs.WriteReplace(s.fs, dst, func(w io.Writer) error {
			out := record.NewWriterSize(resource.LimitWriter(ctx, w, s.rc), record.FormatTable, ioBuf)
			if err := out.WriteAll(chunk); err != nil {
				return err
			}
			return out.Flush()
		})
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", dst, err)
		}
		st.Output = int64(len(chunk))
		st.Runs = 1
		return nil, nil
	}

	if len(chunk) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	st.Runs = len(runs)
	s.logger.DebugContext(ctx, "spilled sorted runs", "file", src, "runs", len(runs), "records", position)
	return runs, nil
}

// reduce merges groups of runs until one final merge fits the budget.
func (s *Sorter) reduce(ctx context.Context, runs []run, st *Stats) ([]run, error) {
	fanIn := s.fanIn()
	for len(runs) > fanIn {
		st.Passes++
		next := make([]run, 0, (len(runs)+fanIn-1)/fanIn)
		for i := 0; i < len(runs); i += fanIn {
			group := runs[i:min(i+fanIn, len(runs))]
			if len(group) == 1 {
				next = append(next, group[0])
				continue
			}

			path := filepath.Join(s.cfg.TempDir, fmt.Sprintf("pass-%d-%06d.bin", st.Passes, len(next)))
			rw, err := s.createRun(ctx, path, s.ioBufSize())
			if err != nil {
				return nil, err
			}
			skipped, err := s.merge(ctx, group, rw.Write)
			st.Skipped += skipped
			if err != nil {
				rw.abort()
				return nil, err
			}
			rn, err := rw.finish()
			if err != nil {
				return nil, err
			}
			for _, g := range group {
				_ = s.fs.Remove(g.path)
			}
			next = append(next, rn)
		}
		s.logger.DebugContext(ctx, "merge pass complete", "pass", st.Passes, "runs", len(next))
		runs = next
	}
	return runs, nil
}

// merge streams the union of runs to emit in (hash, run) order.
//
// A run that fails to decode is logged and retired; its unread records are
// counted as skipped and the merge continues with the remaining runs.
func (s *Sorter) merge(ctx context.Context, runs []run, emit func(*record.Record) error) (skipped int64, err error) {
	if err := s.codecs.grow(ctx, 0, len(runs)); err != nil {
		return 0, err
	}
	outBuf := int64(s.ioBufSize())
	runBuf := min((s.budget-s.codecs.reserved()-outBuf)/int64(len(runs)), maxIOBuf)
	if runBuf < minRunBuf {
		return 0, fmt.Errorf("%w: %d runs exceed merge fan-in", ErrMemoryTooSmall, len(runs))
	}
	reserved := outBuf + runBuf*int64(len(runs))
	if err := s.rc.AcquireMemory(ctx, reserved); err != nil {
		return 0, fmt.Errorf("reserve merge buffers: %w", err)
	}
	defer s.rc.ReleaseMemory(reserved)

	readers := make([]*runReader, len(runs))
	defer func() {
		for _, rr := range readers {
			if rr != nil {
				_ = rr.Close()
			}
		}
	}()
	for i, rn := range runs {
		rr, err := s.openRun(rn, int(runBuf))
		if err != nil {
			return 0, err
		}
		readers[i] = rr
	}

	h := newMergeHeap(len(runs))
	advance := func(i int) {
		rr := readers[i]
		rec, err := rr.Next()
		switch {
		case err == nil:
			h.Push(head{rec: rec, run: i})
		case err == io.EOF:
		default:
			lost := rr.remaining()
			skipped += lost
			s.logger.WarnContext(ctx, "skipping unreadable sort run", "run", rr.run.path, "lost", lost, "error", err)
		}
	}
	for i := range readers {
		advance(i)
	}

	var n int
	for h.Len() > 0 {
		top, _ := h.Pop()
		if err := emit(&top.rec); err != nil {
			return skipped, err
		}
		advance(top.run)

		n++
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return skipped, err
			}
		}
	}
	return skipped, nil
}
