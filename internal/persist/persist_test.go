package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/plotgen/internal/fs"
	"github.com/hupe1980/plotgen/internal/matching"
	"github.com/hupe1980/plotgen/internal/record"
)

func batch(base, n int) []record.Record {
	rs := make([]record.Record, n)
	for i := range rs {
		nonce := record.NonceFromIndex(uint32(base + i))
		rs[i] = record.Record{Nonce: nonce, Hash: matching.Compute(nonce), Position: uint64(i), Offset: uint64(i)}
	}
	return rs
}

func TestLayout(t *testing.T) {
	l := Layout{Dir: "/plots", Run: "alpha"}
	assert.Equal(t, filepath.Join("/plots", "hashes_alpha_3.bin"), l.Stream(3))
	assert.Equal(t, filepath.Join("/plots", "table_alpha_0.bin"), l.Table(0))
	assert.Equal(t, "table_alpha_6.bin", l.TableName(6))
	assert.Equal(t, filepath.Join("/plots", "sort_alpha_2_x"), l.SortDir(2, "x"))

	other := Layout{Dir: "/plots", Run: "beta"}
	assert.NotEqual(t, l.Stream(1), other.Stream(1))
}

func TestAppender_AppendsAcrossBatches(t *testing.T) {
	dir := t.TempDir()
	a := NewAppender(nil, Layout{Dir: dir, Run: "r"}, nil)
	require.NoError(t, a.Reset(2))

	n, err := a.Append(t.Context(), 1, batch(0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(10*record.StreamSize), n)
	_, err = a.Append(t.Context(), 1, batch(10, 5))
	require.NoError(t, err)

	data, err := os.ReadFile(a.Layout().Stream(1))
	require.NoError(t, err)
	require.Len(t, data, 15*record.StreamSize)

	rs, err := record.DecodeAll(data, record.FormatStream)
	require.NoError(t, err)
	for i, r := range rs {
		assert.Equal(t, uint32(i), r.Nonce.Index())
		assert.Equal(t, matching.Compute(r.Nonce), r.Hash)
	}

	// table 0 was never written
	_, err = os.Stat(a.Layout().Stream(0))
	assert.True(t, os.IsNotExist(err))
}

func TestAppender_ResetAndCleanup(t *testing.T) {
	dir := t.TempDir()
	a := NewAppender(nil, Layout{Dir: dir, Run: "r"}, nil)

	_, err := a.Append(t.Context(), 0, batch(0, 4))
	require.NoError(t, err)
	require.NoError(t, a.Reset(1))
	_, err = os.Stat(a.Layout().Stream(0))
	assert.True(t, os.IsNotExist(err))

	_, err = a.Append(t.Context(), 0, batch(0, 4))
	require.NoError(t, err)
	require.NoError(t, a.Cleanup(3))
	_, err = os.Stat(a.Layout().Stream(0))
	assert.True(t, os.IsNotExist(err))
}

func TestAppender_WriteFault(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("hashes_r_0", fs.Fault{FailAfterBytes: record.StreamSize})
	a := NewAppender(ffs, Layout{Dir: t.TempDir(), Run: "r"}, nil)

	_, err := a.Append(t.Context(), 0, batch(0, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.Contains(t, err.Error(), "hashes_r_0.bin")
}
