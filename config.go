package plotgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/plotgen/internal/extsort"
	"github.com/hupe1980/plotgen/internal/record"
)

const (
	// DefaultTableCount is the number of chained tables built when none is set.
	DefaultTableCount = 7

	// MaxK is the largest supported k; nonces are 4 bytes wide.
	MaxK = 32

	// RecordSize is the per-record volume used for batch sizing.
	RecordSize = record.StreamSize
)

// Config describes one plot run.
type Config struct {
	// K is log2 of the number of table-0 records.
	K uint

	// MemoryCeiling is the byte budget of the sort stage's buffers. It also
	// sizes the forward batches.
	MemoryCeiling int64

	// TableCount is the number of chained tables. Default: 7.
	TableCount int

	// RunName namespaces every file of the run. Default: a random UUID.
	RunName string

	// Dir is where intermediate and table files are written. Default: ".".
	Dir string

	// Verify enables the verification pass after collation.
	Verify bool
}

// DefaultConfig returns a Config with the default table count and directory.
func DefaultConfig() Config {
	return Config{
		TableCount: DefaultTableCount,
		Dir:        ".",
	}
}

func (c Config) withDefaults() Config {
	if c.TableCount == 0 {
		c.TableCount = DefaultTableCount
	}
	if c.RunName == "" {
		c.RunName = uuid.NewString()
	}
	if c.Dir == "" {
		c.Dir = "."
	}
	return c
}

// Validate rejects configurations that cannot run, before any file is touched.
func (c Config) Validate() error {
	if c.K < 1 || c.K > MaxK {
		return fmt.Errorf("%w: got %d", ErrInvalidK, c.K)
	}
	if c.TableCount < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidTableCount, c.TableCount)
	}
	if c.MemoryCeiling <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidMemoryCeiling, c.MemoryCeiling)
	}
	if c.MemoryCeiling < extsort.MinMemory {
		return fmt.Errorf("%w: %d bytes is below the sort minimum of %d", ErrInvalidMemoryCeiling, c.MemoryCeiling, extsort.MinMemory)
	}
	if c.MemoryCeiling/int64(c.TableCount) == 0 {
		return fmt.Errorf("%w: %d bytes cannot be split across %d tables", ErrInvalidMemoryCeiling, c.MemoryCeiling, c.TableCount)
	}
	if c.RunName == "" || c.RunName == "." || c.RunName == ".." || strings.ContainsAny(c.RunName, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidRunName, c.RunName)
	}
	return nil
}

// Sizing is the batch layout derived from a Config.
type Sizing struct {
	// TotalIterations is the number of forward batches.
	TotalIterations uint64
	// NumEntries is the number of table-0 nonces per batch.
	NumEntries uint64
}

// Records returns the number of table-0 records the batches generate.
func (s Sizing) Records() uint64 {
	return s.TotalIterations * s.NumEntries
}

// Sizing computes the batch layout:
//
//	total_iterations = 2^k * RecordSize / (MemoryCeiling / TableCount), at least 1
//	num_entries      = 2^k / total_iterations
//
// Iterations are also capped at 2^k so every batch holds at least one nonce.
// Call Validate first; Sizing assumes a valid Config.
func (c Config) Sizing() Sizing {
	entries := uint64(1) << c.K
	perTable := uint64(c.MemoryCeiling) / uint64(c.TableCount)

	iterations := entries * RecordSize / perTable
	if iterations == 0 {
		iterations = 1
	}
	if iterations > entries {
		iterations = entries
	}
	return Sizing{TotalIterations: iterations, NumEntries: entries / iterations}
}
