package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasnoah/rvstage/internal/pipeline"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for semantic errors the schema cannot express.
// It returns all errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	m := cfg.Monitor
	required(&errs, "monitor.workdir", m.WorkDir)
	required(&errs, "monitor.spec_dir", m.SpecDir)
	required(&errs, "monitor.staging_dir", m.StagingDir)
	required(&errs, "monitor.dep_dir", m.DepDir)
	required(&errs, "monitor.output_dir", m.OutputDir)
	validGlob(&errs, "monitor.spec_glob", m.SpecGlob)
	validGlob(&errs, "monitor.descriptor_glob", m.DescriptorGlob)
	validGlob(&errs, "monitor.dep_glob", m.DepGlob)
	validGlob(&errs, "monitor.source_glob", m.SourceGlob)
	validTool(&errs, "monitor.tools.spec_compiler", m.Tools.SpecCompiler, false)
	validTool(&errs, "monitor.tools.merger", m.Tools.Merger, true)
	validTool(&errs, "monitor.tools.compiler", m.Tools.Compiler, false)
	if m.StagingDir != "" && m.DepDir != "" && sameDir(m.StagingDir, m.DepDir) {
		add("monitor.staging_dir", "must differ from monitor.dep_dir")
	}

	in := cfg.Instrument
	required(&errs, "instrument.workdir", in.WorkDir)
	required(&errs, "instrument.aspect_dir", in.AspectDir)
	required(&errs, "instrument.dep_dir", in.DepDir)
	required(&errs, "instrument.generated_dir", in.GeneratedDir)
	required(&errs, "instrument.aspect_subdir", in.AspectSubdir)
	required(&errs, "instrument.source_subdir", in.SourceSubdir)
	validGlob(&errs, "instrument.aspect_glob", in.AspectGlob)
	validGlob(&errs, "instrument.dep_glob", in.DepGlob)
	if in.AspectSubdir != "" && sameDir(in.AspectSubdir, in.SourceSubdir) {
		add("instrument.source_subdir", "must differ from instrument.aspect_subdir")
	}
	for _, f := range []struct{ field, dir string }{
		{"instrument.aspect_subdir", in.AspectSubdir},
		{"instrument.source_subdir", in.SourceSubdir},
	} {
		if filepath.IsAbs(f.dir) || strings.HasPrefix(filepath.Clean(f.dir), "..") {
			add(f.field, "must be a subdirectory of instrument.generated_dir, got %q", f.dir)
		}
	}

	if cfg.Process.Timeout != "" {
		d, err := time.ParseDuration(cfg.Process.Timeout)
		if err != nil {
			add("process.timeout", "invalid duration %q", cfg.Process.Timeout)
		} else if d < 0 {
			add("process.timeout", "must not be negative")
		}
	}

	return errs
}

func required(errs *[]ValidationError, field, value string) {
	if value == "" {
		*errs = append(*errs, ValidationError{Field: field, Message: "is required"})
	}
}

func validGlob(errs *[]ValidationError, field, glob string) {
	switch {
	case glob == "":
		*errs = append(*errs, ValidationError{Field: field, Message: "is required"})
	case strings.Contains(glob, "**") || strings.ContainsRune(glob, '/'):
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("%q must match a single directory level", glob)})
	default:
		if _, err := path.Match(glob, ""); err != nil {
			*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("malformed pattern %q", glob)})
		}
	}
}

// validTool checks the command and the placeholders its args use. perFile
// tools must reference {input}; the others must not.
func validTool(errs *[]ValidationError, field string, t pipeline.Tool, perFile bool) {
	if len(t.Command) == 0 || t.Command[0] == "" {
		*errs = append(*errs, ValidationError{Field: field + ".command", Message: "is required"})
		return
	}
	usesInput := false
	for _, a := range t.Args {
		if strings.Contains(strings.ReplaceAll(a, "{inputs}", ""), "{input}") {
			usesInput = true
		}
	}
	if perFile && !usesInput {
		*errs = append(*errs, ValidationError{Field: field + ".args", Message: "must reference {input}; the tool runs once per file"})
	}
	if !perFile && usesInput {
		*errs = append(*errs, ValidationError{Field: field + ".args", Message: "{input} is only available to the merger; use {inputs}"})
	}
}

func sameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
