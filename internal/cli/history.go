package cli

import (
	"fmt"
	"io"

	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/history"
	"github.com/ariel-frischer/proctest/internal/orchestrator"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View command execution history",
	Long: `View a log of proctest runs with timestamp, command, run ID, exit code,
duration and node totals. With --runs the persisted run summaries are listed
instead, newest first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		defer env.close()
		return runHistoryWithStateDir(cmd, env.cfg.StateDir)
	},
}

func init() {
	historyCmd.GroupID = GroupState
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("command", "", "Filter by command name")
	historyCmd.Flags().IntP("limit", "n", 0, "Limit to last N entries (most recent)")
	historyCmd.Flags().BoolP("clear", "c", false, "Clear all history")
	historyCmd.Flags().Bool("runs", false, "List run summaries instead of the command history")
}

// runHistoryWithStateDir runs the history command against stateDir.
func runHistoryWithStateDir(cmd *cobra.Command, stateDir string) error {
	clearFlag, _ := cmd.Flags().GetBool("clear")
	commandFilter, _ := cmd.Flags().GetString("command")
	limit, _ := cmd.Flags().GetInt("limit")
	runs, _ := cmd.Flags().GetBool("runs")

	if limit < 0 {
		return clierrors.NewArgumentError(fmt.Sprintf("limit must be positive, got %d", limit))
	}

	if clearFlag {
		if err := history.ClearHistory(stateDir); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
		return nil
	}

	if runs {
		summaries, err := orchestrator.ListSummaries(stateDir)
		if err != nil {
			return fmt.Errorf("listing run summaries: %w", err)
		}
		if limit > 0 && len(summaries) > limit {
			summaries = summaries[:limit]
		}
		if len(summaries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		displaySummaries(cmd.OutOrStdout(), summaries)
		return nil
	}

	histFile, err := history.LoadHistory(stateDir)
	if err != nil {
		return clierrors.WrapWithMessage(err, clierrors.Internal, "loading history",
			"Run 'proctest history --clear' to discard a corrupt history file")
	}

	entries := filterEntries(histFile.Entries, commandFilter, limit)
	if len(entries) == 0 {
		if commandFilter != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "No matching entries for command '%s'.\n", commandFilter)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No history available.")
		}
		return nil
	}

	displayEntries(cmd.OutOrStdout(), entries)
	return nil
}

// filterEntries filters and limits history entries.
func filterEntries(entries []history.HistoryEntry, commandFilter string, limit int) []history.HistoryEntry {
	var result []history.HistoryEntry
	for _, entry := range entries {
		if commandFilter == "" || entry.Command == commandFilter {
			result = append(result, entry)
		}
	}

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

// displayEntries formats and displays history entries.
func displayEntries(out io.Writer, entries []history.HistoryEntry) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	for _, entry := range entries {
		timestamp := entry.Timestamp.Format("2006-01-02 15:04:05")

		exitCodeStr := fmt.Sprintf("%d", entry.ExitCode)
		if entry.ExitCode == 0 {
			exitCodeStr = green(exitCodeStr)
		} else {
			exitCodeStr = red(exitCodeStr)
		}

		runID := entry.RunID
		if runID == "" {
			runID = "-"
		}

		fmt.Fprintf(out, "%s  %-10s %-25s exit=%s  %-8s ok=%d fail=%d skip=%d\n",
			cyan(timestamp),
			entry.Command,
			runID,
			exitCodeStr,
			entry.Duration,
			entry.Succeeded, entry.Failed, entry.Skipped,
		)
	}
}

// displaySummaries lists run summaries, newest first.
func displaySummaries(out io.Writer, summaries []*orchestrator.RunSummary) {
	cyan := color.New(color.FgCyan).SprintFunc()
	for _, s := range summaries {
		succeeded, failed, skipped := s.Totals()
		fmt.Fprintf(out, "%s  %-25s %-9s %-9s ok=%d fail=%d skip=%d\n",
			cyan(s.StartedAt.Format("2006-01-02 15:04:05")),
			s.RunID, s.Status, s.Selection,
			succeeded, failed, skipped)
	}
}
