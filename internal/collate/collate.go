// Package collate walks the table chain backward and prunes every entry whose
// parent link fails the locality predicate.
package collate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/hupe1980/plotgen/internal/fs"
	"github.com/hupe1980/plotgen/internal/mmap"
	"github.com/hupe1980/plotgen/internal/record"
	"github.com/hupe1980/plotgen/internal/resource"
	"github.com/hupe1980/plotgen/internal/workpool"
)

// MaxDistance bounds both the position and the offset delta of a kept link.
const MaxDistance = 10

// ErrDuplicateNonce is returned when a parent table holds the same nonce twice.
var ErrDuplicateNonce = errors.New("collate: duplicate nonce in parent table")

// absDiff returns |a-b| without wrapping around.
func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Linked reports whether child may stay linked to parent: the first
// record.PrefixSize hash bytes match and both the position and the offset
// deltas are below MaxDistance.
func Linked(child, parent record.Record) bool {
	return record.PrefixEqual(child.Hash, parent.Hash) &&
		absDiff(child.Position, parent.Position) < MaxDistance &&
		absDiff(child.Offset, parent.Offset) < MaxDistance
}

// Survivor is the record that replaces child once its link holds. It keeps the
// child's nonce and position and takes the parent's hash and offset.
func Survivor(child, parent record.Record) record.Record {
	return record.Record{
		Nonce:    child.Nonce,
		Hash:     parent.Hash,
		Position: child.Position,
		Offset:   parent.Offset,
	}
}

// Stats summarises one collation step.
type Stats struct {
	Table    int
	Input    int // records read from the child table
	Kept     int // records written back
	Orphans  int // children whose nonce is missing from the parent table
	Unlinked int // children whose parent failed the predicate
}

// Config configures a Collator.
type Config struct {
	FS         fs.FileSystem
	Pool       *workpool.Pool
	Controller *resource.Controller
	Logger     *slog.Logger
}

// Collator performs the per-table steps of the backward pass.
type Collator struct {
	fs     fs.FileSystem
	pool   *workpool.Pool
	rc     *resource.Controller
	logger *slog.Logger
}

// New returns a Collator. Pool is required.
func New(cfg Config) (*Collator, error) {
	if cfg.Pool == nil {
		return nil, errors.New("collate: worker pool is required")
	}
	c := &Collator{fs: cfg.FS, pool: cfg.Pool, rc: cfg.Controller, logger: cfg.Logger}
	if c.fs == nil {
		c.fs = fs.Default
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// table is a memory-mapped table file viewed as fixed-width units.
type table struct {
	m    *mmap.Mapping
	data []byte
	n    int
}

func (c *Collator) openTable(ctx context.Context, path string, pattern mmap.AccessPattern) (*table, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	_ = m.Advise(pattern)

	data := m.Bytes()
	if rem := len(data) % record.TableSize; rem != 0 {
		c.logger.WarnContext(ctx, "dropping partial record at end of table", "file", path, "bytes", rem)
		data = data[:len(data)-rem]
	}
	return &table{m: m, data: data, n: len(data) / record.TableSize}, nil
}

func (t *table) at(i int) record.Record {
	r, _ := record.DecodeTable(t.data[i*record.TableSize:])
	return r
}

// Step prunes the table stored at currPath against its parent at prevPath and
// replaces currPath with the survivors ordered by position. tableID is used
// for logging only.
func (c *Collator) Step(ctx context.Context, tableID int, prevPath, currPath string) (Stats, error) {
	st := Stats{Table: tableID}

	prev, err := c.openTable(ctx, prevPath, mmap.AccessRandom)
	if err != nil {
		return st, err
	}
	defer prev.m.Close()

	curr, err := c.openTable(ctx, currPath, mmap.AccessSequential)
	if err != nil {
		return st, err
	}
	defer curr.m.Close()
	st.Input = curr.n

	parents := make(map[record.Nonce]int, prev.n)
	for i := 0; i < prev.n; i++ {
		var nonce record.Nonce
		copy(nonce[:], prev.data[i*record.TableSize:])
		if _, dup := parents[nonce]; dup {
			return st, fmt.Errorf("%w: %s nonce %d", ErrDuplicateNonce, prevPath, nonce.Index())
		}
		parents[nonce] = i
	}

	const (
		dropOrphan uint8 = iota + 1
		dropUnlinked
	)
	out := make([]record.Record, curr.n)
	drop := make([]uint8, curr.n)
	err = workpool.ParallelFor(ctx, c.pool, curr.n, func(lo, hi int) {
		for j := lo; j < hi; j++ {
			child := curr.at(j)
			pi, ok := parents[child.Nonce]
			if !ok {
				drop[j] = dropOrphan
				continue
			}
			parent := prev.at(pi)
			if !Linked(child, parent) {
				drop[j] = dropUnlinked
				continue
			}
			out[j] = Survivor(child, parent)
		}
	})
	if err != nil {
		return st, err
	}

	kept := out[:0]
	for j := range out {
		switch drop[j] {
		case dropOrphan:
			st.Orphans++
		case dropUnlinked:
			st.Unlinked++
		default:
			kept = append(kept, out[j])
		}
	}

	slices.SortStableFunc(kept, record.ComparePosition)
	if n := len(kept); n > 0 {
		kept = slices.CompactFunc(kept, func(a, b record.Record) bool { return a.Position == b.Position })
		if dups := n - len(kept); dups > 0 {
			c.logger.WarnContext(ctx, "dropping records with duplicate position", "table", tableID, "count", dups)
		}
	}
	st.Kept = len(kept)

	// Release both views before replacing the file they map.
	prev.m.Close()
	curr.m.Close()

	err = fs.WriteReplace(c.fs, currPath, func(w io.Writer) error {
		rw := record.NewWriter(resource.LimitWriter(ctx, w, c.rc), record.FormatTable)
		if err := rw.WriteAll(kept); err != nil {
			return err
		}
		return rw.Flush()
	})
	if err != nil {
		return st, fmt.Errorf("write %s: %w", currPath, err)
	}

	c.logger.InfoContext(ctx, fmt.Sprintf("kept %d entries", st.Kept),
		"table", tableID, "input", st.Input, "orphans", st.Orphans, "unlinked", st.Unlinked)
	return st, nil
}
