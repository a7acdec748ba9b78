package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/rvstage/internal/config"
	"github.com/lucasnoah/rvstage/internal/history"
)

var errHistoryDisabled = errors.New("run history is disabled: set history.dsn in rvstage.yaml")

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Run history database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cleanup, err := openConfiguredHistory()
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all recorded runs (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to reset without --yes")
		}
		d, cleanup, err := openConfiguredHistory()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := d.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Run history reset.")
		return nil
	},
}

// openHistory opens and migrates the store named by cfg.History.DSN. A
// relative SQLite path resolves against the config root.
func openHistory(cfg *config.Config) (*history.DB, error) {
	d, err := history.Open(cfg.HistoryDSN())
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func openConfiguredHistory() (*history.DB, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.History.DSN == "" {
		return nil, nil, errHistoryDisabled
	}
	d, err := openHistory(cfg)
	if err != nil {
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

func init() {
	dbResetCmd.Flags().Bool("yes", false, "confirm deleting all history")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
