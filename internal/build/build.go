// Package build assembles the monitor and instrumentation pipelines from
// configuration.
package build

import (
	"path/filepath"
	"strings"

	"github.com/lucasnoah/rvstage/internal/config"
	"github.com/lucasnoah/rvstage/internal/fileset"
	"github.com/lucasnoah/rvstage/internal/pipeline"
)

// Pipeline names.
const (
	MonitorPipeline    = "monitor"
	InstrumentPipeline = "instrument"
)

// Canonical stage names.
const (
	StageTranslate   = "translate"
	StageMerge       = "merge"
	StageCopyDeps    = "copy-deps"
	StageCompile     = "compile"
	StageEnsureDirs  = "ensure-dirs"
	StageCopyAspects = "copy-aspects"
)

// MonitorStages returns translate -> merge -> copy-deps -> compile.
func MonitorStages(m config.Monitor) []pipeline.Stage {
	compiler := withOutput(m.Tools.Compiler, m.OutputDir)
	return []pipeline.Stage{
		{
			Name:        StageTranslate,
			Description: "Run the spec compiler",
			Ensure:      []string{m.StagingDir},
			Inputs:      &fileset.Pattern{Dir: m.SpecDir, Glob: m.SpecGlob},
			Tool:        tool(m.Tools.SpecCompiler),
		},
		{
			Name:        StageMerge,
			Description: "Merge monitor descriptors",
			Inputs:      &fileset.Pattern{Dir: m.StagingDir, Glob: m.DescriptorGlob},
			Tool:        tool(m.Tools.Merger),
			PerFile:     true,
		},
		{
			Name:        StageCopyDeps,
			Description: "Copy monitor dependencies",
			Inputs:      &fileset.Pattern{Dir: m.DepDir, Glob: m.DepGlob},
			CopyTo:      m.StagingDir,
		},
		{
			Name:        StageCompile,
			Description: "Compile staged sources",
			Inputs:      &fileset.Pattern{Dir: m.StagingDir, Glob: m.SourceGlob},
			Tool:        &compiler,
		},
	}
}

// InstrumentStages returns ensure-dirs -> copy-aspects -> copy-deps. The
// generated-sources tree is compiled by a separate build.
func InstrumentStages(in config.Instrument) []pipeline.Stage {
	aspectDir := filepath.Join(in.GeneratedDir, in.AspectSubdir)
	sourceDir := filepath.Join(in.GeneratedDir, in.SourceSubdir)
	return []pipeline.Stage{
		{
			Name:        StageEnsureDirs,
			Description: "Prepare generated-sources",
			Ensure:      []string{aspectDir, sourceDir},
		},
		{
			Name:        StageCopyAspects,
			Description: "Copy aspects",
			Inputs:      &fileset.Pattern{Dir: in.AspectDir, Glob: in.AspectGlob},
			CopyTo:      aspectDir,
		},
		{
			Name:        StageCopyDeps,
			Description: "Copy logger dependencies",
			Inputs:      &fileset.Pattern{Dir: in.DepDir, Glob: in.DepGlob},
			CopyTo:      sourceDir,
		},
	}
}

// Monitor builds the monitor pipeline for cfg.
func Monitor(cfg *config.Config, opts ...pipeline.Option) *pipeline.Pipeline {
	return pipeline.New(MonitorPipeline, cfg.MonitorWorkDir(), MonitorStages(cfg.Monitor), opts...)
}

// Instrument builds the instrumentation pipeline for cfg.
func Instrument(cfg *config.Config, opts ...pipeline.Option) *pipeline.Pipeline {
	return pipeline.New(InstrumentPipeline, cfg.InstrumentWorkDir(), InstrumentStages(cfg.Instrument), opts...)
}

// ByName returns the named pipeline, or nil if there is none.
func ByName(name string, cfg *config.Config, opts ...pipeline.Option) *pipeline.Pipeline {
	switch name {
	case MonitorPipeline:
		return Monitor(cfg, opts...)
	case InstrumentPipeline:
		return Instrument(cfg, opts...)
	default:
		return nil
	}
}

// Names lists the pipelines ByName knows.
func Names() []string {
	return []string{MonitorPipeline, InstrumentPipeline}
}

func tool(t pipeline.Tool) *pipeline.Tool {
	return &t
}

// withOutput substitutes the compiler's {output} placeholder.
func withOutput(t pipeline.Tool, out string) pipeline.Tool {
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = strings.ReplaceAll(a, "{output}", out)
	}
	t.Args = args
	return t
}

// CleanTarget is a set of staged files removed by an explicit clean.
type CleanTarget struct {
	Dir  string
	Glob string
}

// CleanTargets lists what a clean of the named pipeline removes: generated
// descriptors and staged sources for monitor, staged aspects and sources for
// instrument. Dirs are absolute.
func CleanTargets(name string, cfg *config.Config) []CleanTarget {
	switch name {
	case MonitorPipeline:
		dir := join(cfg.MonitorWorkDir(), cfg.Monitor.StagingDir)
		return []CleanTarget{
			{Dir: dir, Glob: cfg.Monitor.DescriptorGlob},
			{Dir: dir, Glob: cfg.Monitor.SourceGlob},
		}
	case InstrumentPipeline:
		gen := join(cfg.InstrumentWorkDir(), cfg.Instrument.GeneratedDir)
		return []CleanTarget{
			{Dir: filepath.Join(gen, cfg.Instrument.AspectSubdir), Glob: cfg.Instrument.AspectGlob},
			{Dir: filepath.Join(gen, cfg.Instrument.SourceSubdir), Glob: cfg.Instrument.DepGlob},
		}
	default:
		return nil
	}
}

func join(workDir, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workDir, dir)
}

// WatchPatterns lists the source inputs of the named pipeline with absolute
// dirs. Staging directories are excluded since the pipeline writes to them.
func WatchPatterns(name string, cfg *config.Config) []fileset.Pattern {
	switch name {
	case MonitorPipeline:
		work := cfg.MonitorWorkDir()
		return []fileset.Pattern{
			{Dir: join(work, cfg.Monitor.SpecDir), Glob: cfg.Monitor.SpecGlob},
			{Dir: join(work, cfg.Monitor.DepDir), Glob: cfg.Monitor.DepGlob},
		}
	case InstrumentPipeline:
		work := cfg.InstrumentWorkDir()
		return []fileset.Pattern{
			{Dir: join(work, cfg.Instrument.AspectDir), Glob: cfg.Instrument.AspectGlob},
			{Dir: join(work, cfg.Instrument.DepDir), Glob: cfg.Instrument.DepGlob},
		}
	default:
		return nil
	}
}
