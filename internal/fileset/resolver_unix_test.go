//go:build unix

package fileset

import (
	"path/filepath"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolve_SkipsFIFO(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "A.java")
	if err := syscall.Mkfifo(filepath.Join(dir, "Pipe.java"), 0o644); err != nil {
		t.Skipf("mkfifo: %v", err)
	}

	got, err := Resolve("", Pattern{Dir: dir, Glob: "*.java"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(dir, "A.java")}, got); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}
}
