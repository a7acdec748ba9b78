package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/rvstage/internal/build"
	"github.com/lucasnoah/rvstage/internal/config"
	"github.com/lucasnoah/rvstage/internal/history"
	"github.com/lucasnoah/rvstage/internal/pipeline"
	"github.com/lucasnoah/rvstage/internal/process"
)

var (
	dryRun     bool
	reportPath string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Translate specifications and compile the generated monitors",
	Long: `Runs translate -> merge -> copy-deps -> compile in the monitor workdir.
The first failing stage stops the run; later stages are skipped.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNamed(cmd, build.MonitorPipeline)
	},
}

var instrumentCmd = &cobra.Command{
	Use:   "instrument",
	Short: "Stage logging aspects and dependencies into generated-sources",
	Long: `Runs ensure-dirs -> copy-aspects -> copy-deps in the instrument workdir.
Compiling the generated-sources tree is left to the host build.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNamed(cmd, build.InstrumentPipeline)
	},
}

func runNamed(cmd *cobra.Command, name string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	if dryRun {
		printPlan(cmd.OutOrStdout(), build.ByName(name, cfg))
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	r, err := newRun(cmd, cfg)
	if err != nil {
		return err
	}
	defer r.close()

	res, runErr := r.run(ctx, name)
	if reportPath != "" && res != nil {
		if err := pipeline.WriteReport(reportPath, res); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

// loadValidConfig loads the config and refuses to continue on any
// validation error.
func loadValidConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("invalid config", zap.String("field", e.Field), zap.String("problem", e.Message))
		}
		return nil, fmt.Errorf("config has %d validation error(s)", len(errs))
	}
	return cfg, nil
}

// pipelineRun carries what every run of a command shares: the runner wired
// to the command's output and the optional history store.
type pipelineRun struct {
	cfg    *config.Config
	runner *process.ExecRunner
	db     *history.DB
}

func newRun(cmd *cobra.Command, cfg *config.Config) (*pipelineRun, error) {
	timeout, err := cfg.ProcessTimeout()
	if err != nil {
		return nil, err
	}
	r := &pipelineRun{
		cfg: cfg,
		runner: &process.ExecRunner{
			Stdout:  cmd.OutOrStdout(),
			Stderr:  cmd.ErrOrStderr(),
			Timeout: timeout,
		},
	}
	if cfg.History.DSN != "" {
		d, err := openHistory(cfg)
		if err != nil {
			return nil, err
		}
		r.db = d
	}
	return r, nil
}

func (r *pipelineRun) run(ctx context.Context, name string) (*pipeline.Result, error) {
	opts := []pipeline.Option{pipeline.WithRunner(r.runner), pipeline.WithLogger(logger)}
	var rec *history.Recorder
	if r.db != nil {
		rec = history.NewRecorder(r.db)
		opts = append(opts, pipeline.WithObserver(rec))
	}

	p := build.ByName(name, r.cfg, opts...)
	if p == nil {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}
	res, runErr := p.Run(ctx)

	if rec != nil {
		if err := errors.Join(rec.Err(), r.db.RecordRun(res)); err != nil {
			logger.Warn("recording run history", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	return res, runErr
}

func (r *pipelineRun) close() {
	if r.db != nil {
		r.db.Close()
	}
}

func printPlan(w io.Writer, p *pipeline.Pipeline) {
	fmt.Fprintf(w, "pipeline %s in %s\n", p.Name(), p.WorkDir())
	for i, s := range p.Stages() {
		fmt.Fprintf(w, "%d. %-13s %s\n", i+1, s.Name, s.Description)
		for _, d := range s.Ensure {
			fmt.Fprintf(w, "     ensure  %s\n", d)
		}
		if s.Inputs != nil {
			fmt.Fprintf(w, "     inputs  %s\n", s.Inputs)
		}
		if s.CopyTo != "" {
			fmt.Fprintf(w, "     copy to %s\n", s.CopyTo)
		}
		if s.Tool != nil {
			mode := "once"
			if s.PerFile {
				mode = "per file"
			}
			fmt.Fprintf(w, "     run     %v %v (%s)\n", s.Tool.Command, s.Tool.Args, mode)
		}
	}
}

func init() {
	for _, c := range []*cobra.Command{monitorCmd, instrumentCmd} {
		c.Flags().BoolVar(&dryRun, "dry-run", false, "print the stages without running them")
		c.Flags().StringVar(&reportPath, "report", "", "write a JSON report of the run to this file")
	}
}
