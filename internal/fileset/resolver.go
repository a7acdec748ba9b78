// Package fileset discovers the input files of a pipeline stage.
package fileset

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Pattern is a directory plus a single-level glob, e.g. {"monitor", "*.p"}.
type Pattern struct {
	Dir  string `yaml:"dir" json:"dir"`
	Glob string `yaml:"glob" json:"glob"`
}

func (p Pattern) String() string {
	return filepath.Join(p.Dir, p.Glob)
}

// MissingInputError reports that a required input directory does not exist.
type MissingInputError struct {
	Dir string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("input directory %s does not exist", e.Dir)
}

func (e *MissingInputError) Is(target error) bool {
	return target == os.ErrNotExist
}

// Resolve returns the regular files in p.Dir whose names match p.Glob, sorted
// lexicographically. A relative p.Dir is joined onto workDir and the returned
// paths carry that prefix. No matches is an empty result, not an error. A
// matching symlink is followed; if its target cannot be stat'ed the error is
// returned rather than the entry dropped.
func Resolve(workDir string, p Pattern) ([]string, error) {
	if err := validateGlob(p.Glob); err != nil {
		return nil, err
	}

	dir := p.Dir
	if !filepath.IsAbs(dir) && workDir != "" {
		dir = filepath.Join(workDir, dir)
	}

	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &MissingInputError{Dir: dir}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "readdir", Path: dir, Err: errors.New("not a directory")}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := []string{}
	for _, e := range entries {
		ok, _ := path.Match(p.Glob, e.Name())
		if !ok {
			continue
		}
		name := filepath.Join(dir, e.Name())
		mode := e.Type()
		if mode&os.ModeSymlink != 0 {
			// A matching link must resolve; a broken one is an input we cannot read.
			fi, err := os.Stat(name)
			if err != nil {
				return nil, err
			}
			mode = fi.Mode().Type()
		}
		// Only regular files are inputs.
		if !mode.IsRegular() {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func validateGlob(glob string) error {
	if glob == "" {
		return fmt.Errorf("%w: empty pattern", path.ErrBadPattern)
	}
	if strings.Contains(glob, "**") || strings.ContainsRune(glob, '/') || strings.ContainsRune(glob, filepath.Separator) {
		return fmt.Errorf("%w: %q must match a single directory level", path.ErrBadPattern, glob)
	}
	if _, err := path.Match(glob, ""); err != nil {
		return fmt.Errorf("%w: %q", err, glob)
	}
	return nil
}
