// Package staging manages the directories pipeline stages write into.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// Ensure creates dir and any missing parents. An existing directory is left
// untouched; an existing non-directory is an error.
func Ensure(dir string) (string, error) {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return dir, nil
	case err == nil:
		return "", fmt.Errorf("ensure %s: exists and is not a directory", dir)
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("ensure %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// CopyInto copies each file into dir under its base name, overwriting any
// file already there. It stops at the first failure and returns how many
// files were copied before it; earlier copies are kept.
func CopyInto(dir string, files []string) (int, error) {
	for i, src := range files {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return i, fmt.Errorf("copy %s -> %s: %w", src, dst, err)
		}
	}
	return len(files), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}
	return WriteFile(dst, in, info.Mode().Perm())
}

// WriteFile writes r to a temp file beside dst with mode perm and renames it
// into place, so a reader never sees a half-written dst. dst's directory
// must exist.
func WriteFile(dst string, r io.Reader, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, dst, err)
	}
	tmpName = ""
	return nil
}

// Clean removes the regular files in dir matching glob and reports how many
// were removed. A missing dir is a no-op. Pipelines never call this; it is the
// explicit stale-artifact cleanup.
func Clean(dir, glob string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ok, err := path.Match(glob, e.Name())
		if err != nil {
			return removed, fmt.Errorf("pattern %q: %w", glob, err)
		}
		if !ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
