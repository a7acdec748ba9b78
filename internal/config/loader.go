package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/rvstage/internal/pipeline"
)

// DefaultFile is the config file name LoadDefault looks for.
const DefaultFile = "rvstage.yaml"

// Default returns the configuration for the standard repository layout,
// rooted at root:
//
//	getconsistency/monitor/*.p        specifications
//	getconsistency/monitor/dep/*.java monitor dependencies
//	getconsistency/logger/*.aj        aspects
//	getconsistency/logger/dep/*.java  logger dependencies
//	ext/P, ext/rv-monitor             external tools
func Default(root string) *Config {
	return &Config{
		Root: root,
		Monitor: Monitor{
			WorkDir:        "getconsistency",
			SpecDir:        "monitor",
			SpecGlob:       "*.p",
			StagingDir:     "monitor/generated",
			DescriptorGlob: "*.rvm",
			DepDir:         "monitor/dep",
			DepGlob:        "*.java",
			SourceGlob:     "*.java",
			OutputDir:      "./",
			Tools: MonitorTools{
				SpecCompiler: pipeline.Tool{
					Command: []string{"dotnet", "../ext/P/Bld/Drops/Release/Binaries/netcoreapp3.1/P.dll"},
					Args:    []string{"{inputs}", "-g:RVM", "-o:{staging}"},
				},
				Merger: pipeline.Tool{
					Command: []string{"../ext/rv-monitor/target/release/rv-monitor/bin/rv-monitor"},
					Args:    []string{"-merge", "{input}"},
				},
				Compiler: pipeline.Tool{
					Command: []string{"javac"},
					Args:    []string{"{inputs}", "-d", "{output}"},
				},
			},
		},
		Instrument: Instrument{
			WorkDir:      "getconsistency",
			AspectDir:    "logger",
			AspectGlob:   "*.aj",
			DepDir:       "logger/dep",
			DepGlob:      "*.java",
			GeneratedDir: "target/generated-sources",
			AspectSubdir: "aspectJ",
			SourceSubdir: "java",
		},
	}
}

// Load reads, schema-checks, and parses the config at path, then fills any
// setting the file leaves out from Default. Relative workdirs resolve against
// the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	problems, err := ValidateSchema(data)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("config %s does not match schema: %s", path, strings.Join(problems, "; "))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg.Root = filepath.Dir(abs)

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault loads ./rvstage.yaml when present, and otherwise returns the
// built-in defaults rooted at the current directory.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(DefaultFile); err == nil {
		return Load(DefaultFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking %s: %w", DefaultFile, err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return Default(wd), nil
}

// applyDefaults fills fields left empty in the file from Default.
func applyDefaults(cfg *Config) {
	d := Default(cfg.Root)

	m, dm := &cfg.Monitor, d.Monitor
	setDefault(&m.WorkDir, dm.WorkDir)
	setDefault(&m.SpecDir, dm.SpecDir)
	setDefault(&m.SpecGlob, dm.SpecGlob)
	setDefault(&m.StagingDir, dm.StagingDir)
	setDefault(&m.DescriptorGlob, dm.DescriptorGlob)
	setDefault(&m.DepDir, dm.DepDir)
	setDefault(&m.DepGlob, dm.DepGlob)
	setDefault(&m.SourceGlob, dm.SourceGlob)
	setDefault(&m.OutputDir, dm.OutputDir)
	setDefaultTool(&m.Tools.SpecCompiler, dm.Tools.SpecCompiler)
	setDefaultTool(&m.Tools.Merger, dm.Tools.Merger)
	setDefaultTool(&m.Tools.Compiler, dm.Tools.Compiler)

	in, di := &cfg.Instrument, d.Instrument
	setDefault(&in.WorkDir, di.WorkDir)
	setDefault(&in.AspectDir, di.AspectDir)
	setDefault(&in.AspectGlob, di.AspectGlob)
	setDefault(&in.DepDir, di.DepDir)
	setDefault(&in.DepGlob, di.DepGlob)
	setDefault(&in.GeneratedDir, di.GeneratedDir)
	setDefault(&in.AspectSubdir, di.AspectSubdir)
	setDefault(&in.SourceSubdir, di.SourceSubdir)
}

func setDefault(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// setDefaultTool keeps a configured command's own args, even if empty, but
// takes the default args along with a default command.
func setDefaultTool(t *pipeline.Tool, def pipeline.Tool) {
	if len(t.Command) == 0 {
		t.Command = def.Command
		if t.Args == nil {
			t.Args = def.Args
		}
	}
}

// MonitorWorkDir returns the absolute working directory of the monitor pipeline.
func (c *Config) MonitorWorkDir() string {
	return c.resolve(c.Monitor.WorkDir)
}

// InstrumentWorkDir returns the absolute working directory of the instrumentation pipeline.
func (c *Config) InstrumentWorkDir() string {
	return c.resolve(c.Instrument.WorkDir)
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) || c.Root == "" {
		return dir
	}
	return filepath.Join(c.Root, dir)
}

// ProcessTimeout parses process.timeout. Empty means no limit.
func (c *Config) ProcessTimeout() (time.Duration, error) {
	if c.Process.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Process.Timeout)
	if err != nil {
		return 0, fmt.Errorf("process.timeout: %w", err)
	}
	return d, nil
}

// HistoryDSN returns history.dsn with a relative SQLite path resolved against
// the config root. URLs and :memory: are returned unchanged.
func (c *Config) HistoryDSN() string {
	dsn := c.History.DSN
	if dsn == "" || dsn == ":memory:" || strings.Contains(dsn, "://") || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return c.resolve(dsn)
}
