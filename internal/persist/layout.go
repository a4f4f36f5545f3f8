package persist

import (
	"fmt"
	"path/filepath"
)

// Layout names every file a run touches. All names embed the run name and,
// where relevant, the table id, so runs with different names never collide.
type Layout struct {
	Dir string
	Run string
}

// Stream returns the append-only intermediate file of a table.
func (l Layout) Stream(table int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("hashes_%s_%d.bin", l.Run, table))
}

// Table returns the canonical sorted/collated file of a table.
func (l Layout) Table(table int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("table_%s_%d.bin", l.Run, table))
}

// TableName returns the base name of Table(table).
func (l Layout) TableName(table int) string {
	return filepath.Base(l.Table(table))
}

// SortDir returns a scratch directory for the sort runs of one table.
func (l Layout) SortDir(table int, id string) string {
	return filepath.Join(l.Dir, fmt.Sprintf("sort_%s_%d_%s", l.Run, table, id))
}
