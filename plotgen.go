package plotgen

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/plotgen/blobstore"
	"github.com/hupe1980/plotgen/internal/collate"
	"github.com/hupe1980/plotgen/internal/extsort"
	"github.com/hupe1980/plotgen/internal/forward"
	"github.com/hupe1980/plotgen/internal/persist"
	"github.com/hupe1980/plotgen/internal/resource"
	"github.com/hupe1980/plotgen/internal/verify"
	"github.com/hupe1980/plotgen/internal/workpool"
)

// SortStats summarises the sort of one table.
type SortStats = extsort.Stats

// TableReport describes one table after a run.
type TableReport struct {
	Table int
	Path  string
	Sort  SortStats
	// Kept is the number of records in the final table file.
	Kept int
}

// Report summarises a completed run.
type Report struct {
	K          uint
	TableCount int
	RunName    string
	Sizing     Sizing

	// Unassigned is the number of the 2^k nonces left out because 2^k is not
	// a multiple of the batch count.
	Unassigned uint64

	Tables []TableReport

	Forward  time.Duration
	Write    time.Duration
	Sort     time.Duration
	Backward time.Duration
	Verify   time.Duration
	Publish  time.Duration
	Total    time.Duration

	PublishedBytes int64
	MemoryPeak     int64
}

// Summary returns the one-line timing summary printed at the end of a run.
func (r *Report) Summary() string {
	return fmt.Sprintf("k=%d tables=%d forward=%s write=%s sort=%s backward=%s verify=%s publish=%s total=%s",
		r.K, r.TableCount, r.Forward, r.Write, r.Sort, r.Backward, r.Verify, r.Publish, r.Total)
}

// Plotter builds the chained tables of one run.
//
// A Plotter owns the worker pool and resource controller shared by every
// phase. It is not safe for concurrent Run calls.
type Plotter struct {
	cfg    Config
	opts   options
	sizing Sizing
	layout persist.Layout
	logger *Logger

	pool     *workpool.Pool
	rc       *resource.Controller
	forward  *forward.Engine
	appender *persist.Appender
	collator *collate.Collator

	closed atomic.Bool
}

// New validates cfg and prepares a Plotter. Zero fields of cfg take their
// defaults first. The caller must Close the Plotter.
func New(cfg Config, optFns ...Option) (*Plotter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(optFns)
	if err := extsort.CheckMemory(cfg.MemoryCeiling, o.spillCompression); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMemoryCeiling, err)
	}

	p := &Plotter{
		cfg:    cfg,
		opts:   o,
		sizing: cfg.Sizing(),
		layout: persist.Layout{Dir: cfg.Dir, Run: cfg.RunName},
		logger: o.logger.WithRun(cfg.RunName),
		pool:   workpool.New(o.workers),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.MemoryCeiling,
			IOLimitBytesPerSec: o.ioLimit,
		}),
	}
	p.forward = forward.New(p.pool)
	p.appender = persist.NewAppender(o.fs, p.layout, p.rc)

	collator, err := collate.New(collate.Config{
		FS:         o.fs,
		Pool:       p.pool,
		Controller: p.rc,
		Logger:     p.logger.WithPhase(PhaseBackward).Logger,
	})
	if err != nil {
		p.pool.Close()
		return nil, err
	}
	p.collator = collator

	return p, nil
}

// Config returns the effective configuration, defaults included.
func (p *Plotter) Config() Config { return p.cfg }

// Sizing returns the batch layout of the run.
func (p *Plotter) Sizing() Sizing { return p.sizing }

// TablePaths returns the canonical file of every table, indexed by table id.
func (p *Plotter) TablePaths() []string {
	paths := make([]string, p.cfg.TableCount)
	for t := range paths {
		paths[t] = p.layout.Table(t)
	}
	return paths
}

// Run executes every phase in order: forward generation and persistence per
// batch, one sort per table, the backward collation from the last table down
// to table 1, then the optional verify and publish phases. Any I/O failure
// aborts the run and is returned as a *PhaseError.
func (p *Plotter) Run(ctx context.Context) (*Report, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	rep := &Report{
		K:          p.cfg.K,
		TableCount: p.cfg.TableCount,
		RunName:    p.cfg.RunName,
		Sizing:     p.sizing,
		Unassigned: (uint64(1) << p.cfg.K) - p.sizing.Records(),
		Tables:     make([]TableReport, p.cfg.TableCount),
	}
	for t := range rep.Tables {
		rep.Tables[t] = TableReport{Table: t, Path: p.layout.Table(t)}
	}

	p.logger.InfoContext(ctx, "starting plot",
		"k", p.cfg.K,
		"tables", p.cfg.TableCount,
		"memory", p.cfg.MemoryCeiling,
		"iterations", p.sizing.TotalIterations,
		"entries", p.sizing.NumEntries,
		"workers", p.pool.Workers(),
	)
	if rep.Unassigned > 0 {
		p.logger.WarnContext(ctx, "nonces not covered by whole batches", "count", rep.Unassigned)
	}

	if err := p.generate(ctx, rep); err != nil {
		return rep, err
	}
	if err := p.phase(ctx, PhaseSort, &rep.Sort, func() error { return p.sortTables(ctx, rep) }); err != nil {
		return rep, err
	}
	if err := p.phase(ctx, PhaseBackward, &rep.Backward, func() error { return p.collate(ctx, rep) }); err != nil {
		return rep, err
	}
	if p.cfg.Verify {
		if err := p.phase(ctx, PhaseVerify, &rep.Verify, func() error { return p.verify(ctx, rep) }); err != nil {
			return rep, err
		}
	}
	if p.opts.publisher != nil {
		if err := p.phase(ctx, PhasePublish, &rep.Publish, func() error { return p.publish(ctx, rep) }); err != nil {
			return rep, err
		}
	}

	rep.Total = time.Since(start)
	rep.MemoryPeak = p.rc.MemoryPeak()
	p.logger.InfoContext(ctx, rep.Summary())
	return rep, nil
}

// phase times fn, stores the duration in d and reports it.
func (p *Plotter) phase(ctx context.Context, ph Phase, d *time.Duration, fn func() error) error {
	start := time.Now()
	err := fn()
	*d = time.Since(start)
	p.opts.metricsCollector.RecordPhase(ph, *d, err)
	p.logger.LogPhase(ctx, ph, *d, err)
	return err
}

// generate runs the forward phase batch by batch. Each batch's layers are
// appended to the streams and dropped before the next batch starts.
func (p *Plotter) generate(ctx context.Context, rep *Report) error {
	if err := p.appender.Reset(p.cfg.TableCount); err != nil {
		return phaseError(PhaseWrite, -1, p.cfg.Dir, err)
	}

	total := int(p.sizing.TotalIterations)
	n := int(p.sizing.NumEntries)
	for b := 0; b < total; b++ {
		batchStart := time.Now()
		layers, err := p.forward.Propagate(ctx, uint64(b), n, p.cfg.TableCount)
		rep.Forward += time.Since(batchStart)
		if err != nil {
			p.opts.metricsCollector.RecordPhase(PhaseForward, rep.Forward, err)
			return phaseError(PhaseForward, -1, "", err)
		}

		writeStart := time.Now()
		var written int64
		for t, layer := range layers {
			bytes, err := p.appender.Append(ctx, t, layer)
			if err != nil {
				p.opts.metricsCollector.RecordPhase(PhaseWrite, rep.Write, err)
				return phaseError(PhaseWrite, t, p.layout.Stream(t), err)
			}
			written += bytes
		}
		rep.Write += time.Since(writeStart)

		p.opts.metricsCollector.RecordBatch(n, written, time.Since(batchStart))
		p.logger.LogBatch(ctx, b, total, n, written, time.Since(batchStart))
	}

	p.opts.metricsCollector.RecordPhase(PhaseForward, rep.Forward, nil)
	p.opts.metricsCollector.RecordPhase(PhaseWrite, rep.Write, nil)
	p.logger.LogPhase(ctx, PhaseForward, rep.Forward, nil)
	p.logger.LogPhase(ctx, PhaseWrite, rep.Write, nil)
	return nil
}

// sortTables replaces every stream by its hash-sorted table file, one table
// at a time so each sort may use the whole memory ceiling.
func (p *Plotter) sortTables(ctx context.Context, rep *Report) error {
	logger := p.logger.WithPhase(PhaseSort)
	for t := 0; t < p.cfg.TableCount; t++ {
		sorter, err := extsort.New(extsort.Config{
			MemoryLimit: p.cfg.MemoryCeiling,
			TempDir:     p.layout.SortDir(t, uuid.NewString()),
			Compression: p.opts.spillCompression,
			FS:          p.opts.fs,
			Controller:  p.rc,
			Logger:      logger.WithTable(t).Logger,
		})
		if err != nil {
			return phaseError(PhaseSort, t, "", err)
		}

		start := time.Now()
		st, err := sorter.Sort(ctx, p.layout.Stream(t), p.layout.Table(t))
		d := time.Since(start)
		logger.LogSort(ctx, t, st, d, err)
		if err != nil {
			return phaseError(PhaseSort, t, p.layout.Table(t), err)
		}
		p.opts.metricsCollector.RecordSort(t, st.Output, st.Skipped, d)
		rep.Tables[t].Sort = st
		rep.Tables[t].Kept = int(st.Output)
	}

	if err := p.appender.Cleanup(p.cfg.TableCount); err != nil {
		p.logger.WarnContext(ctx, "failed to remove intermediate streams", "error", err)
	}
	return nil
}

// collate prunes tables T-1 down to 1. Table t is checked against table t-1
// as the sort left it; table t-1 is only rewritten by the following step.
func (p *Plotter) collate(ctx context.Context, rep *Report) error {
	for t := p.cfg.TableCount - 1; t >= 1; t-- {
		start := time.Now()
		st, err := p.collator.Step(ctx, t, p.layout.Table(t-1), p.layout.Table(t))
		p.logger.LogCollation(ctx, t, st.Input, st.Kept, err)
		if err != nil {
			return phaseError(PhaseBackward, t, p.layout.Table(t), err)
		}
		p.opts.metricsCollector.RecordCollation(t, st.Input, st.Kept, time.Since(start))
		rep.Tables[t].Kept = st.Kept
	}
	return nil
}

// verify checks the finished chain. Collation links table t against table t-1
// before t-1 is pruned, so every record t-1 loses may leave one child of table
// t without a parent.
func (p *Plotter) verify(ctx context.Context, rep *Report) error {
	pruned := make([]int, p.cfg.TableCount)
	for t := 1; t < p.cfg.TableCount; t++ {
		pruned[t] = int(rep.Tables[t].Sort.Output) - rep.Tables[t].Kept
	}
	v := verify.New(p.logger.WithPhase(PhaseVerify).Logger, verify.WithPruned(pruned))
	res, err := v.Verify(ctx, p.TablePaths())
	if err != nil {
		return phaseError(PhaseVerify, -1, p.cfg.Dir, err)
	}
	for t, n := range res.Unparented {
		if n > 0 {
			p.logger.WarnContext(ctx, "records lost their parent to a later pruning", "table", t, "records", n)
		}
	}
	return nil
}

func (p *Plotter) publish(ctx context.Context, rep *Report) error {
	files := make([]blobstore.File, p.cfg.TableCount)
	for t := range files {
		files[t] = blobstore.File{Name: p.layout.TableName(t), Path: p.layout.Table(t)}
	}
	n, err := blobstore.Publish(ctx, p.opts.publisher, p.opts.fs, files, p.opts.publishConcurrency)
	rep.PublishedBytes = n
	if err != nil {
		return phaseError(PhasePublish, -1, "", err)
	}
	return nil
}
