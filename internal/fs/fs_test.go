package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.bin")
	f, err := OpenAppend(lfs, fpath)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// append mode keeps prior content
	f, err = OpenAppend(lfs, fpath)
	require.NoError(t, err)
	_, err = f.Write([]byte(" world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(fpath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	f, err = Create(lfs, fpath)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	info, err := lfs.Stat(fpath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	require.NoError(t, lfs.RemoveAll(dir))
	_, err = lfs.Stat(fpath)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.bin")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	err := WriteReplace(Default, path, func(w io.Writer) error {
		_, err := w.Write([]byte("new content"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))
	_, err = os.Stat(path + tmpSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteReplace_FailureKeepsOld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.bin")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	boom := errors.New("boom")
	err := WriteReplace(Default, path, func(w io.Writer) error { return boom })
	assert.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	_, err = os.Stat(path + tmpSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	f, err := Create(ffs, filepath.Join(tmp, "faulty.bin"))
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)

	// unmatched files are untouched
	g, err := Create(ffs, filepath.Join(tmp, "clean.bin"))
	require.NoError(t, err)
	_, err = g.Write(make([]byte, 64))
	require.NoError(t, err)
	require.NoError(t, g.Close())
}

func TestFaultyFS_OpenAndRename(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	custom := errors.New("disk gone")
	ffs.AddRule("locked", Fault{FailOnOpen: true, Err: custom})
	ffs.AddRule("final", Fault{FailOnRename: true})

	_, err := Create(ffs, filepath.Join(tmp, "locked.bin"))
	assert.ErrorIs(t, err, custom)

	err = WriteReplace(ffs, filepath.Join(tmp, "final.bin"), func(w io.Writer) error {
		_, err := w.Write([]byte("x"))
		return err
	})
	assert.ErrorIs(t, err, ErrInjected)
	_, err = os.Stat(filepath.Join(tmp, "final.bin"))
	assert.True(t, os.IsNotExist(err))
}
