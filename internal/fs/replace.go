package fs

import (
	"errors"
	"fmt"
	"io"
)

// tmpSuffix marks a replacement that has not been committed yet.
const tmpSuffix = ".tmp"

// WriteReplace writes a new version of name through write and swaps it in with
// a rename once write, Sync and Close have all succeeded. On failure the
// previous content of name is left untouched and the temporary file is removed.
func WriteReplace(fsys FileSystem, name string, write func(w io.Writer) error) (err error) {
	tmp := name + tmpSuffix
	f, err := Create(fsys, tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	defer func() {
		if err != nil {
			_ = fsys.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err = fsys.Rename(tmp, name); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// CloseJoin closes c and joins its error onto err.
func CloseJoin(err *error, c io.Closer) {
	if cerr := c.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}
