package fileset

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolve_MatchesSorted(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.p", "a.p", "c.txt", "Z.p")

	got, err := Resolve("", Pattern{Dir: dir, Glob: "*.p"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "Z.p"),
		filepath.Join(dir, "a.p"),
		filepath.Join(dir, "b.p"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_RelativeToWorkDir(t *testing.T) {
	work := t.TempDir()
	specs := filepath.Join(work, "monitor")
	if err := os.Mkdir(specs, 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, specs, "x.p")

	got, err := Resolve(work, Pattern{Dir: "monitor", Glob: "*.p"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got) != 1 || got[0] != filepath.Join(work, "monitor", "x.p") {
		t.Errorf("Resolve() = %v, want [%s]", got, filepath.Join(work, "monitor", "x.p"))
	}
}

func TestResolve_EmptyMatchIsNotError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "only.java")

	got, err := Resolve("", Pattern{Dir: dir, Glob: "*.rvm"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Resolve() = %#v, want empty non-nil slice", got)
	}
}

func TestResolve_SkipsDirectoriesAndNested(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Top.java")
	if err := os.Mkdir(filepath.Join(dir, "dir.java"), 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(dir, "dep")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, nested, "Nested.java")

	got, err := Resolve("", Pattern{Dir: dir, Glob: "*.java"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(dir, "Top.java")}, got); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_CharacterClassAndQuestionMark(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a1.p", "a2.p", "a3.p", "ab.p")

	got, err := Resolve("", Pattern{Dir: dir, Glob: "a[12]?p"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	want := []string{filepath.Join(dir, "a1.p"), filepath.Join(dir, "a2.p")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_MissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := Resolve("", Pattern{Dir: missing, Glob: "*.p"})
	var mi *MissingInputError
	if !errors.As(err, &mi) {
		t.Fatalf("expected *MissingInputError, got %T: %v", err, err)
	}
	if mi.Dir != missing {
		t.Errorf("Dir = %q, want %q", mi.Dir, missing)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("MissingInputError should match os.ErrNotExist")
	}
}

func TestResolve_DirectoryIsAFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "file")

	_, err := Resolve(dir, Pattern{Dir: "file", Glob: "*"})
	if err == nil {
		t.Fatal("expected error for non-directory input")
	}
	var mi *MissingInputError
	if errors.As(err, &mi) {
		t.Error("non-directory should not be reported as missing")
	}
}

func TestResolve_RejectsRecursivePatterns(t *testing.T) {
	dir := t.TempDir()
	for _, glob := range []string{"**/*.java", "dep/*.java", "", "[a"} {
		_, err := Resolve("", Pattern{Dir: dir, Glob: glob})
		if !errors.Is(err, path.ErrBadPattern) {
			t.Errorf("Resolve(%q) error = %v, want ErrBadPattern", glob, err)
		}
	}
}

func TestResolve_Snapshot(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.rvm")

	first, err := Resolve("", Pattern{Dir: dir, Glob: "*.rvm"})
	if err != nil {
		t.Fatal(err)
	}
	touch(t, dir, "b.rvm")
	if len(first) != 1 {
		t.Errorf("earlier result changed after new file: %v", first)
	}

	second, err := Resolve("", Pattern{Dir: dir, Glob: "*.rvm"})
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 {
		t.Errorf("second Resolve() = %v, want 2 files", second)
	}
}

func TestResolve_FollowsSymlinks(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	touch(t, other, "Real.java")
	if err := os.Mkdir(filepath.Join(other, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, dir, "A.java")
	if err := os.Symlink(filepath.Join(other, "Real.java"), filepath.Join(dir, "Linked.java")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(other, "pkg"), filepath.Join(dir, "pkg.java")); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve("", Pattern{Dir: dir, Glob: "*.java"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	want := []string{filepath.Join(dir, "A.java"), filepath.Join(dir, "Linked.java")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_BrokenSymlinkIsError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "A.java")
	if err := os.Symlink(filepath.Join(dir, "missing.java"), filepath.Join(dir, "Dep.java")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := Resolve("", Pattern{Dir: dir, Glob: "*.java"})
	if err == nil {
		t.Fatalf("Resolve() = %v, want an error for the broken link", got)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
	var missing *MissingInputError
	if errors.As(err, &missing) {
		t.Error("a broken link is not a missing input directory")
	}
}

func TestResolve_BrokenSymlinkNotMatchingIsIgnored(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "A.java")
	if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "notes.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	got, err := Resolve("", Pattern{Dir: dir, Glob: "*.java"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Resolve() = %v, want only A.java", got)
	}
}
