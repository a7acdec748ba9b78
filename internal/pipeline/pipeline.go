// Package pipeline runs an ordered list of stages, one at a time, stopping at
// the first failure. A failed run is retried from the first stage; stages are
// idempotent, so a rerun on unchanged inputs reproduces the same outputs.
package pipeline

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasnoah/rvstage/internal/fileset"
	"github.com/lucasnoah/rvstage/internal/process"
	"github.com/lucasnoah/rvstage/internal/staging"
)

// Pipeline executes a sequence of stages inside one working directory.
type Pipeline struct {
	name      string
	workDir   string
	stages    []Stage
	runner    process.Runner
	log       *zap.Logger
	observers []Observer
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunner sets the process runner used to invoke tools.
func WithRunner(r process.Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithObserver adds an observer of stage transitions.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// New creates a Pipeline. Relative stage paths resolve against workDir, and
// every tool runs with workDir as its current directory.
func New(name, workDir string, stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:    name,
		workDir: workDir,
		stages:  stages,
		runner:  process.NewExecRunner(0),
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// WorkDir returns the directory the pipeline runs in.
func (p *Pipeline) WorkDir() string { return p.workDir }

// Stages returns the configured stages in execution order.
func (p *Pipeline) Stages() []Stage { return p.stages }

// Run executes each stage in order and stops at the first failure. Stages
// after the failing one are marked skipped and never run. The returned error
// is a *StageError wrapping the original cause.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Pipeline:  p.name,
		WorkDir:   p.workDir,
		State:     StateRunning,
		Stages:    make([]StageReport, len(p.stages)),
		StartedAt: p.now(),
	}
	for i, s := range p.stages {
		res.Stages[i] = StageReport{Name: s.Name, State: StatePending}
	}

	log := p.log.With(zap.String("pipeline", p.name), zap.String("run_id", res.RunID))

	// A malformed stage fails the run before any stage does work.
	for i := range p.stages {
		if err := p.stages[i].Validate(); err != nil {
			res.Stages[i].Err = err
			p.move(res, i, StateFailed, err)
			for j := range p.stages {
				if j != i {
					p.move(res, j, StateSkipped, nil)
				}
			}
			return p.fail(res, log, i, err)
		}
	}

	log.Info("pipeline started", zap.String("workdir", p.workDir), zap.Int("stages", len(p.stages)))

	for i := range p.stages {
		s := &p.stages[i]
		rep := &res.Stages[i]

		p.move(res, i, StateRunning, nil)
		if s.Description != "" {
			log.Info(s.Description, zap.String("stage", s.Name))
		}
		start := p.now()

		err := ctx.Err()
		if err == nil {
			err = p.execute(ctx, s, rep)
		}
		rep.Duration = p.now().Sub(start)

		if err != nil {
			rep.Err = err
			p.move(res, i, StateFailed, err)
			for j := i + 1; j < len(p.stages); j++ {
				p.move(res, j, StateSkipped, nil)
			}
			return p.fail(res, log, i, err)
		}

		p.move(res, i, StateSucceeded, nil)
		log.Debug("stage succeeded",
			zap.String("stage", s.Name),
			zap.Int("inputs", rep.Inputs),
			zap.Int("copied", rep.Copied),
			zap.Int("invocations", rep.Invocations),
			zap.Duration("duration", rep.Duration),
		)
	}

	res.State = StateSucceeded
	res.FinishedAt = p.now()
	log.Info("pipeline succeeded", zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

func (p *Pipeline) fail(res *Result, log *zap.Logger, i int, err error) (*Result, error) {
	name := res.Stages[i].Name
	res.State = StateFailed
	res.FailedStage = name
	res.Err = err
	res.FinishedAt = p.now()
	log.Error("stage failed", zap.String("stage", name), zap.Duration("duration", res.Stages[i].Duration), zap.Error(err))
	return res, &StageError{Pipeline: p.name, Stage: name, Err: err}
}

// move transitions stage i and notifies observers. Transitions are driven
// only by Run, so an invalid one is a programming error.
func (p *Pipeline) move(res *Result, i int, to State, cause error) {
	rep := &res.Stages[i]
	from := rep.State
	if err := rep.transition(to); err != nil {
		panic(err)
	}
	t := Transition{
		RunID:    res.RunID,
		Pipeline: p.name,
		Stage:    rep.Name,
		Index:    i,
		From:     from,
		To:       to,
		Err:      cause,
		At:       p.now(),
	}
	for _, o := range p.observers {
		o.StageTransition(t)
	}
}

func (p *Pipeline) execute(ctx context.Context, s *Stage, rep *StageReport) error {
	for _, d := range s.Ensure {
		dir := p.abs(d)
		if _, err := staging.Ensure(dir); err != nil {
			return &FilesystemError{Op: "ensure", Path: dir, Err: err}
		}
	}

	var inputs []string
	if s.Inputs != nil {
		files, err := fileset.Resolve(p.workDir, *s.Inputs)
		if err != nil {
			var missing *fileset.MissingInputError
			if errors.As(err, &missing) || errors.Is(err, path.ErrBadPattern) {
				return err
			}
			return &FilesystemError{Op: "readdir", Path: p.abs(s.Inputs.Dir), Err: err}
		}
		inputs = files
		rep.Inputs = len(files)
	}

	stagingDir := ""
	if len(s.Ensure) > 0 {
		stagingDir = p.abs(s.Ensure[0])
	}

	if s.CopyTo != "" {
		dir := p.abs(s.CopyTo)
		stagingDir = dir
		if _, err := staging.Ensure(dir); err != nil {
			return &FilesystemError{Op: "ensure", Path: dir, Err: err}
		}
		n, err := staging.CopyInto(dir, inputs)
		rep.Copied = n
		if err != nil {
			return &FilesystemError{Op: "copy", Path: dir, Err: err}
		}
		staged := make([]string, len(inputs))
		for i, f := range inputs {
			staged[i] = filepath.Join(dir, filepath.Base(f))
		}
		inputs = staged
	}

	if s.Tool == nil {
		return nil
	}

	vars := toolVars{inputs: inputs, staging: stagingDir, workDir: p.workDir}
	if !s.PerFile {
		return p.invoke(ctx, s, rep, vars)
	}
	for _, f := range inputs {
		vars.input = f
		if err := p.invoke(ctx, s, rep, vars); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) invoke(ctx context.Context, s *Stage, rep *StageReport, vars toolVars) error {
	cmd, err := s.Tool.command(vars)
	if err != nil {
		return err
	}
	rep.Invocations++
	p.log.Debug("running tool", zap.String("stage", s.Name), zap.Stringer("command", cmd))
	return p.runner.Run(ctx, cmd)
}

func (p *Pipeline) abs(dir string) string {
	if filepath.IsAbs(dir) || p.workDir == "" {
		return dir
	}
	return filepath.Join(p.workDir, dir)
}
