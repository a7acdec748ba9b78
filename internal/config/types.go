package config

import "github.com/lucasnoah/rvstage/internal/pipeline"

// Config is the top-level structure parsed from rvstage.yaml.
type Config struct {
	Monitor    Monitor    `yaml:"monitor"`
	Instrument Instrument `yaml:"instrument"`
	Process    Process    `yaml:"process"`
	History    History    `yaml:"history"`

	// Root is the directory relative workdirs resolve against: the config
	// file's directory, or the current directory for the built-in defaults.
	Root string `yaml:"-"`
}

// Monitor configures the translate -> merge -> copy -> compile pipeline.
// Paths other than WorkDir are relative to WorkDir.
type Monitor struct {
	WorkDir        string       `yaml:"workdir"`
	SpecDir        string       `yaml:"spec_dir"`
	SpecGlob       string       `yaml:"spec_glob"`
	StagingDir     string       `yaml:"staging_dir"`
	DescriptorGlob string       `yaml:"descriptor_glob"`
	DepDir         string       `yaml:"dep_dir"`
	DepGlob        string       `yaml:"dep_glob"`
	SourceGlob     string       `yaml:"source_glob"`
	OutputDir      string       `yaml:"output_dir"`
	Tools          MonitorTools `yaml:"tools"`
}

// MonitorTools are the external tools the monitor pipeline drives.
type MonitorTools struct {
	SpecCompiler pipeline.Tool `yaml:"spec_compiler"`
	Merger       pipeline.Tool `yaml:"merger"`
	Compiler     pipeline.Tool `yaml:"compiler"`
}

// Instrument configures the aspect/dependency staging pipeline.
type Instrument struct {
	WorkDir      string `yaml:"workdir"`
	AspectDir    string `yaml:"aspect_dir"`
	AspectGlob   string `yaml:"aspect_glob"`
	DepDir       string `yaml:"dep_dir"`
	DepGlob      string `yaml:"dep_glob"`
	GeneratedDir string `yaml:"generated_dir"`
	AspectSubdir string `yaml:"aspect_subdir"`
	SourceSubdir string `yaml:"source_subdir"`
}

// Process holds settings for external tool execution.
type Process struct {
	// Timeout bounds each tool invocation, e.g. "10m". Empty means no limit.
	Timeout string `yaml:"timeout"`
}

// History configures the optional run history store.
type History struct {
	// DSN is a SQLite file path or a postgres:// URL. Empty disables history.
	DSN string `yaml:"dsn"`
}
