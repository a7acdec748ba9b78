package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/rvstage/internal/build"
	"github.com/lucasnoah/rvstage/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <monitor|instrument>",
	Short: "Rerun a pipeline whenever its inputs change",
	Long: `Runs the pipeline once, then reruns it from the first stage each time a
matching file in one of its input directories is created, changed, or
removed. Staging directories are not watched. Stop with Ctrl-C.`,
	Args:         cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs:    build.Names(),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		debounce, _ := cmd.Flags().GetDuration("debounce")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		r, err := newRun(cmd, cfg)
		if err != nil {
			return err
		}
		defer r.close()

		rerun := func(ctx context.Context, changed []string) {
			if len(changed) > 0 {
				logger.Info("inputs changed, rerunning", zap.String("pipeline", name), zap.Strings("changed", changed))
			}
			// Failures are already logged by the pipeline; keep watching.
			_, _ = r.run(ctx, name)
		}

		w, err := watch.New(build.WatchPatterns(name, cfg), rerun,
			watch.WithDebounce(debounce), watch.WithLogger(logger))
		if err != nil {
			return err
		}
		defer w.Stop()

		rerun(ctx, nil)
		if err := w.Start(ctx); err != nil {
			return err
		}
		logger.Info("watching for changes", zap.String("pipeline", name))

		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a rerun")
}
