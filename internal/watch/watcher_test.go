package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/lucasnoah/rvstage/internal/fileset"
)

func startWatcher(t *testing.T, patterns []fileset.Pattern) (*Watcher, <-chan []string) {
	t.Helper()
	calls := make(chan []string, 8)
	w, err := New(patterns, func(_ context.Context, changed []string) {
		calls <- changed
	}, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return w, calls
}

func TestWatcher_DebouncesMatchingChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, calls := startWatcher(t, []fileset.Pattern{{Dir: dir, Glob: "*.p"}})
	defer w.Stop()

	for _, name := range []string{"a.p", "b.p", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case got := <-calls:
		want := []string{filepath.Join(dir, "a.p"), filepath.Join(dir, "b.p")}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("changed paths (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case got := <-calls:
		t.Errorf("unexpected second call: %v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_IgnoresNonMatching(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, calls := startWatcher(t, []fileset.Pattern{{Dir: dir, Glob: "*.aj"}})
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-calls:
		t.Errorf("unexpected call for non-matching file: %v", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, _ := startWatcher(t, []fileset.Pattern{{Dir: t.TempDir(), Glob: "*"}})
	w.Stop()
	w.Stop()

	select {
	case <-w.Done():
	default:
		t.Error("Done() should be closed after Stop")
	}
}

func TestWatcher_ContextCancelEndsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New([]fileset.Pattern{{Dir: t.TempDir(), Glob: "*"}}, func(context.Context, []string) {})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not exit on cancel")
	}
	w.Stop()
}

func TestWatcher_MissingDir(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New([]fileset.Pattern{{Dir: filepath.Join(t.TempDir(), "gone"), Glob: "*"}}, func(context.Context, []string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestNew_RejectsRelativeDir(t *testing.T) {
	if _, err := New([]fileset.Pattern{{Dir: "specs", Glob: "*.p"}}, nil); err == nil {
		t.Error("expected error for relative dir")
	}
}
