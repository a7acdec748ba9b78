package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const validConfig = `
monitor:
  workdir: getconsistency
  spec_dir: specs
  spec_glob: "*.p"
  staging_dir: specs/generated
  dep_dir: specs/dep
  tools:
    spec_compiler:
      command: ["pc"]
      args: ["{inputs}", "-g:RVM", "-o:{staging}"]
    merger:
      command: ["rv-monitor"]
      args: ["-merge", "{input}"]
instrument:
  workdir: /abs/getconsistency
  generated_dir: target/generated-sources
process:
  timeout: "10m"
history:
  dsn: runs.db
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rvstage.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Root != filepath.Dir(path) {
		t.Errorf("Root = %q, want %q", cfg.Root, filepath.Dir(path))
	}
	if cfg.Monitor.SpecDir != "specs" {
		t.Errorf("SpecDir = %q, want specs", cfg.Monitor.SpecDir)
	}
	if diff := cmp.Diff([]string{"pc"}, cfg.Monitor.Tools.SpecCompiler.Command); diff != "" {
		t.Errorf("spec compiler command mismatch (-want +got):\n%s", diff)
	}
	if cfg.History.DSN != "runs.db" {
		t.Errorf("History.DSN = %q", cfg.History.DSN)
	}
	timeout, err := cfg.ProcessTimeout()
	if err != nil || timeout != 10*time.Minute {
		t.Errorf("ProcessTimeout() = (%s, %v), want 10m", timeout, err)
	}
}

func TestDefaultsMerge(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	d := Default("")

	// descriptor_glob not set, should inherit "*.rvm"
	if cfg.Monitor.DescriptorGlob != d.Monitor.DescriptorGlob {
		t.Errorf("DescriptorGlob = %q, want %q (from defaults)", cfg.Monitor.DescriptorGlob, d.Monitor.DescriptorGlob)
	}
	// compiler not set, should get javac with its default args
	if diff := cmp.Diff(d.Monitor.Tools.Compiler, cfg.Monitor.Tools.Compiler); diff != "" {
		t.Errorf("compiler not defaulted (-want +got):\n%s", diff)
	}
	// explicit spec_dir must not be overridden
	if cfg.Monitor.SpecDir == d.Monitor.SpecDir {
		t.Errorf("explicit spec_dir replaced by default")
	}
	if cfg.Instrument.AspectSubdir != "aspectJ" || cfg.Instrument.SourceSubdir != "java" {
		t.Errorf("instrument subdirs = %q, %q", cfg.Instrument.AspectSubdir, cfg.Instrument.SourceSubdir)
	}
}

func TestToolWithCommandKeepsOwnArgs(t *testing.T) {
	path := writeTestConfig(t, `
monitor:
  tools:
    compiler:
      command: ["true"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Monitor.Tools.Compiler.Args) != 0 {
		t.Errorf("Args = %v, want none", cfg.Monitor.Tools.Compiler.Args)
	}
}

func TestWorkDirResolution(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got, want := cfg.MonitorWorkDir(), filepath.Join(filepath.Dir(path), "getconsistency"); got != want {
		t.Errorf("MonitorWorkDir() = %q, want %q", got, want)
	}
	if got := cfg.InstrumentWorkDir(); got != "/abs/getconsistency" {
		t.Errorf("InstrumentWorkDir() = %q, want absolute path kept", got)
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	path := writeTestConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := Default(filepath.Dir(path))
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("empty config differs from defaults (-want +got):\n%s", diff)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("defaults should validate, got %v", errs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeTestConfig(t, `
monitor:
  spec_dirr: typo
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected schema error for unknown key")
	}
	if !strings.Contains(err.Error(), "spec_dirr") {
		t.Errorf("error %q should name the unknown key", err)
	}
}

func TestValidateSchemaTypes(t *testing.T) {
	problems, err := ValidateSchema([]byte(`
monitor:
  tools:
    merger:
      command: "rv-monitor -merge"
`))
	if err != nil {
		t.Fatalf("ValidateSchema() error: %v", err)
	}
	if len(problems) == 0 {
		t.Error("expected a schema problem for a string command")
	}
}

func TestValidateSchemaMalformedYAML(t *testing.T) {
	if _, err := ValidateSchema([]byte("monitor: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	if len(errs) != 0 {
		t.Errorf("Validate() returned %d errors for valid config:", len(errs))
		for _, e := range errs {
			t.Errorf("  - %s", e)
		}
	}
}

func TestValidateRecursiveGlob(t *testing.T) {
	cfg := Default("/repo")
	cfg.Monitor.DepGlob = "**/*.java"
	if !hasField(Validate(cfg), "monitor.dep_glob") {
		t.Error("expected validation error for recursive glob")
	}
}

func TestValidateMalformedGlob(t *testing.T) {
	cfg := Default("/repo")
	cfg.Instrument.AspectGlob = "[a"
	if !hasField(Validate(cfg), "instrument.aspect_glob") {
		t.Error("expected validation error for malformed glob")
	}
}

func TestValidateMergerNeedsInput(t *testing.T) {
	cfg := Default("/repo")
	cfg.Monitor.Tools.Merger.Args = []string{"-merge", "{inputs}"}
	if !hasField(Validate(cfg), "monitor.tools.merger.args") {
		t.Error("expected validation error for merger without {input}")
	}
}

func TestValidateCompilerRejectsInput(t *testing.T) {
	cfg := Default("/repo")
	cfg.Monitor.Tools.Compiler.Args = []string{"{input}"}
	if !hasField(Validate(cfg), "monitor.tools.compiler.args") {
		t.Error("expected validation error for {input} outside the merger")
	}
}

func TestValidateMissingToolCommand(t *testing.T) {
	cfg := Default("/repo")
	cfg.Monitor.Tools.SpecCompiler.Command = nil
	if !hasField(Validate(cfg), "monitor.tools.spec_compiler.command") {
		t.Error("expected validation error for missing command")
	}
}

func TestValidateStagingEqualsDeps(t *testing.T) {
	cfg := Default("/repo")
	cfg.Monitor.StagingDir = "monitor/dep/"
	if !hasField(Validate(cfg), "monitor.staging_dir") {
		t.Error("expected validation error when staging dir is the dependency dir")
	}
}

func TestValidateInstrumentSubdirs(t *testing.T) {
	cfg := Default("/repo")
	cfg.Instrument.SourceSubdir = "aspectJ"
	if !hasField(Validate(cfg), "instrument.source_subdir") {
		t.Error("expected validation error for shared subdir")
	}

	cfg = Default("/repo")
	cfg.Instrument.AspectSubdir = "../escape"
	if !hasField(Validate(cfg), "instrument.aspect_subdir") {
		t.Error("expected validation error for subdir outside generated_dir")
	}
}

func TestValidateTimeout(t *testing.T) {
	for _, bad := range []string{"soon", "-1m"} {
		cfg := Default("/repo")
		cfg.Process.Timeout = bad
		if !hasField(Validate(cfg), "process.timeout") {
			t.Errorf("expected validation error for timeout %q", bad)
		}
	}
}

func TestValidateRequiredField(t *testing.T) {
	cfg := Default("/repo")
	cfg.Instrument.GeneratedDir = ""
	errs := Validate(cfg)
	if !hasField(errs, "instrument.generated_dir") {
		t.Errorf("expected required error, got %v", errs)
	}
}

func TestLoadDefaultWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	wd, _ := os.Getwd()
	if cfg.Root != wd {
		t.Errorf("Root = %q, want %q", cfg.Root, wd)
	}
}

func TestLoadDefaultFindsFile(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	t.Chdir(filepath.Dir(path))

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.Monitor.SpecDir != "specs" {
		t.Errorf("SpecDir = %q, want specs (from file)", cfg.Monitor.SpecDir)
	}
}

func TestHistoryDSN(t *testing.T) {
	cfg := Default("/repo")
	for dsn, want := range map[string]string{
		"":                          "",
		"runs.db":                   "/repo/runs.db",
		"/var/lib/rv/runs.db":       "/var/lib/rv/runs.db",
		":memory:":                  ":memory:",
		"postgres://u@db/rv":        "postgres://u@db/rv",
		"file:runs.db?cache=shared": "file:runs.db?cache=shared",
	} {
		cfg.History.DSN = dsn
		if got := cfg.HistoryDSN(); got != want {
			t.Errorf("HistoryDSN(%q) = %q, want %q", dsn, got, want)
		}
	}
}
