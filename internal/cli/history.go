package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded pipeline runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openConfiguredHistory()
		if err != nil {
			return err
		}
		defer cleanup()

		name, _ := cmd.Flags().GetString("pipeline")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := d.ListRuns(name, limit)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-36s %-10s %-9s %-12s %s\n", "RUN", "PIPELINE", "STATE", "FAILED AT", "STARTED")
		fmt.Fprintf(w, "%-36s %-10s %-9s %-12s %s\n",
			strings.Repeat("-", 36),
			strings.Repeat("-", 10),
			strings.Repeat("-", 9),
			strings.Repeat("-", 12),
			strings.Repeat("-", 7))
		for _, r := range runs {
			fmt.Fprintf(w, "%-36s %-10s %-9s %-12s %s\n", r.RunID, r.Pipeline, r.State, r.FailedStage, r.StartedAt)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its stage transitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openConfiguredHistory()
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := d.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no run %q", args[0])
		}
		events, err := d.StageEvents(run.RunID)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(map[string]any{"run": run, "events": events}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Run:      %s\n", run.RunID)
		fmt.Fprintf(w, "Pipeline: %s\n", run.Pipeline)
		fmt.Fprintf(w, "Workdir:  %s\n", run.WorkDir)
		fmt.Fprintf(w, "State:    %s\n", run.State)
		if run.FailedStage != "" {
			fmt.Fprintf(w, "Failed:   %s: %s\n", run.FailedStage, run.Error)
		}
		fmt.Fprintf(w, "Started:  %s\n", run.StartedAt)
		fmt.Fprintf(w, "Finished: %s\n", run.FinishedAt)
		fmt.Fprintln(w)
		for _, e := range events {
			line := fmt.Sprintf("  %s  %-13s %s -> %s", e.Timestamp, e.Stage, e.From, e.To)
			if e.Error != "" {
				line += "  (" + e.Error + ")"
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

func init() {
	historyListCmd.Flags().String("pipeline", "", "only runs of this pipeline")
	historyListCmd.Flags().Int("limit", 20, "maximum number of runs (0 for all)")
	for _, c := range []*cobra.Command{historyListCmd, historyShowCmd} {
		c.Flags().String("format", "text", "output format: text or json")
	}
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}
