// Package verify checks the structure of a finished table chain.
//
// It confirms, per table:
//   - the file is a whole number of 52-byte units,
//   - no nonce appears twice,
//   - table 0 is ordered by hash,
//   - tables 1..T-1 are strictly ordered by position, with no position repeated,
//   - every record of table t>0 has a parent in table t-1 with the same nonce
//     and the same 8-byte hash prefix.
//
// Table t is linked against table t-1 before t-1 is itself pruned, so records
// removed from t-1 by its own collation leave children without a parent.
// WithPruned tells the verifier how many records each table lost that way;
// up to that many missing parents in the next table are counted in
// Result.Unparented instead of reported as problems.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/plotgen/internal/mmap"
	"github.com/hupe1980/plotgen/internal/record"
)

// ErrCorrupt is returned when at least one check fails.
var ErrCorrupt = errors.New("verify: table chain is corrupt")

// DefaultMaxProblems caps how many problems are collected before giving up.
const DefaultMaxProblems = 100

// Problem is a single failed check.
type Problem struct {
	Table  int
	Index  int // record index, -1 for file-level problems
	Reason string
}

func (p Problem) String() string {
	if p.Index < 0 {
		return fmt.Sprintf("table %d: %s", p.Table, p.Reason)
	}
	return fmt.Sprintf("table %d record %d: %s", p.Table, p.Index, p.Reason)
}

// Result is the outcome of Verify.
type Result struct {
	Records    []int // record count per table
	Unparented []int // records per table whose parent was pruned after linking
	Problems   []Problem
}

// OK reports whether every check passed.
func (r Result) OK() bool { return len(r.Problems) == 0 }

// Verifier runs the checks.
type Verifier struct {
	logger      *slog.Logger
	maxProblems int
	pruned      []int
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithPruned sets, per table, the number of records the table lost after the
// next table was linked against it.
func WithPruned(pruned []int) Option {
	return func(v *Verifier) { v.pruned = pruned }
}

// New returns a Verifier. A nil logger means slog.Default().
func New(logger *slog.Logger, opts ...Option) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{logger: logger, maxProblems: DefaultMaxProblems}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) prunedFrom(t int) int {
	if t < 0 || t >= len(v.pruned) {
		return 0
	}
	return v.pruned[t]
}

type prefix [record.PrefixSize]byte

func prefixOf(h record.Hash) (p prefix) {
	copy(p[:], h[:])
	return p
}

type checker struct {
	res  *Result
	max  int
	full bool
}

func (c *checker) add(table, index int, format string, args ...any) {
	if c.full {
		return
	}
	c.res.Problems = append(c.res.Problems, Problem{Table: table, Index: index, Reason: fmt.Sprintf(format, args...)})
	c.full = len(c.res.Problems) >= c.max
}

// Verify checks the tables stored at paths, where paths[i] is table i.
// I/O failures are returned as errors; failed checks are collected in the
// Result and reported as ErrCorrupt.
func (v *Verifier) Verify(ctx context.Context, paths []string) (Result, error) {
	res := Result{Records: make([]int, len(paths)), Unparented: make([]int, len(paths))}
	c := &checker{res: &res, max: v.maxProblems}

	var parents map[record.Nonce]prefix
	for t, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		m, err := mmap.Open(path)
		if err != nil {
			return res, fmt.Errorf("open %s: %w", path, err)
		}
		_ = m.Advise(mmap.AccessSequential)

		data := m.Bytes()
		if rem := len(data) % record.TableSize; rem != 0 {
			c.add(t, -1, "size %d is not a multiple of %d", len(data), record.TableSize)
			data = data[:len(data)-rem]
		}
		n := len(data) / record.TableSize
		res.Records[t] = n

		nonces := roaring.New()
		positions := roaring.New()
		current := make(map[record.Nonce]prefix, n)
		allowed := v.prunedFrom(t - 1)
		var missing []int
		var prev record.Record

		for i := 0; i < n && !c.full; i++ {
			r, _ := record.DecodeTable(data[i*record.TableSize:])

			if !nonces.CheckedAdd(r.Nonce.Index()) {
				c.add(t, i, "duplicate nonce %d", r.Nonce.Index())
			}

			if t == 0 {
				if i > 0 && record.Compare(prev, r) > 0 {
					c.add(t, i, "hash out of order")
				}
			} else {
				switch {
				case r.Position > math.MaxUint32:
					c.add(t, i, "position %d out of range", r.Position)
				case !positions.CheckedAdd(uint32(r.Position)):
					c.add(t, i, "duplicate position %d", r.Position)
				case i > 0 && r.Position <= prev.Position:
					c.add(t, i, "position %d not after %d", r.Position, prev.Position)
				}

				p, ok := parents[r.Nonce]
				switch {
				case !ok:
					if len(missing) <= allowed {
						missing = append(missing, i)
					} else {
						c.add(t, i, "nonce %d missing from table %d", r.Nonce.Index(), t-1)
					}
				case p != prefixOf(r.Hash):
					c.add(t, i, "hash prefix differs from parent")
				}
			}

			current[r.Nonce] = prefixOf(r.Hash)
			prev = r
		}

		if len(missing) <= allowed {
			res.Unparented[t] = len(missing)
		} else {
			for _, i := range missing {
				r, _ := record.DecodeTable(data[i*record.TableSize:])
				c.add(t, i, "nonce %d missing from table %d", r.Nonce.Index(), t-1)
			}
		}

		if err := m.Close(); err != nil {
			return res, fmt.Errorf("close %s: %w", path, err)
		}
		parents = current

		v.logger.DebugContext(ctx, "verified table", "table", t, "records", n, "problems", len(res.Problems))
		if c.full {
			break
		}
	}

	if !res.OK() {
		for _, p := range res.Problems {
			v.logger.WarnContext(ctx, "verification problem", "table", p.Table, "index", p.Index, "reason", p.Reason)
		}
		return res, fmt.Errorf("%w: %d problems, first: %s", ErrCorrupt, len(res.Problems), res.Problems[0])
	}
	return res, nil
}
