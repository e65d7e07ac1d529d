// Package fsutil writes mirror files so readers never observe partial
// content.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by WriteStream when the stream exceeds its limit.
var ErrTooLarge = errors.New("content exceeds size limit")

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	_, err := WriteStream(path, bytes.NewReader(data), -1, perm)
	return err
}

// WriteStream copies r into a temporary file next to path and renames it
// into place. A non-negative limit caps the number of bytes accepted; when
// it is exceeded nothing is written and ErrTooLarge is returned. Parent
// directories are created as needed.
func WriteStream(path string, r io.Reader, limit int64, perm os.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	src := r
	if limit >= 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if limit >= 0 && n > limit {
		return n, ErrTooLarge
	}
	if err := tmp.Chmod(perm); err != nil {
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return n, nil
}
