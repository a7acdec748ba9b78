package cli

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lucasnoah/rvstage/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	verbose    bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "rvstage",
	Short: "rvstage: staged build pipelines for runtime-verification monitors",
	Long: `rvstage turns monitor specifications into compiled monitor code and stages
logging aspects for instrumentation.

Each pipeline runs its stages in order inside the configured working
directory and stops at the first failure. Reruns always start from the
first stage. Settings come from rvstage.yaml (see "rvstage config show").`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(cmd.ErrOrStderr(), verbose)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// newLogger writes human-readable log lines to w.
func newLogger(w io.Writer, debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to rvstage.yaml (default ./rvstage.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every tool invocation")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(instrumentCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(watchCmd)
}
