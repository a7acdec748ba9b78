package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/rvstage/internal/build"
	"github.com/lucasnoah/rvstage/internal/staging"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <monitor|instrument>",
	Short: "Remove staged artifacts left by earlier runs",
	Long: `Pipelines never delete anything on their own, so files staged by an
earlier run persist even after their source is removed. clean deletes the
staged files of one pipeline; source directories are never touched.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: build.Names(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}

		total := 0
		for _, target := range build.CleanTargets(args[0], cfg) {
			n, err := staging.Clean(target.Dir, target.Glob)
			total += n
			if err != nil {
				return fmt.Errorf("clean %s: %w", target.Dir, err)
			}
			logger.Debug("cleaned", zap.String("dir", target.Dir), zap.String("glob", target.Glob), zap.Int("removed", n))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d staged file(s).\n", total)
		return nil
	},
}
