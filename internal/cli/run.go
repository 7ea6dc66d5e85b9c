package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/history"
	"github.com/ariel-frischer/proctest/internal/orchestrator"
	"github.com/ariel-frischer/proctest/internal/progress"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover and verify every configured group",
	Long: `Run a full orchestration: discover every group, resolve prerequisites,
apply the selection, then verify each group in its own process, one group
at a time.

Without flags the persisted selection (edited with select/deselect) decides
which nodes run. --tag and --only switch to the alternate selection for this
run only; the persisted selection is left untouched.`,
	Example: `  proctest run
  proctest run --tag smoke
  proctest run --only 'Store.*' --only '#4'
  proctest run --failed`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		opts, err := selectionOptions(cmd)
		if err != nil {
			return err
		}
		opts.Command = "run"
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			opts.Observer = progress.NewDisplay(cmd.OutOrStdout(), progress.DetectTerminalCapabilities())
		}
		return executeRun(cmd.Context(), cmd.OutOrStdout(), env, opts)
	},
}

func init() {
	runCmd.GroupID = GroupRun
	rootCmd.AddCommand(runCmd)
	addSelectionFlags(runCmd)
	runCmd.Flags().BoolP("quiet", "q", false, "Do not show per-group progress")
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("tag", "t", nil, "Select nodes declaring this tag, with their subtrees (repeatable)")
	cmd.Flags().StringSliceP("only", "o", nil, "Select nodes matching this pattern, with their subtrees (repeatable)")
	cmd.Flags().BoolP("failed", "f", false, "Reselect nodes that did not succeed in the previous run")
}

func selectionOptions(cmd *cobra.Command) (orchestrator.Options, error) {
	tags, _ := cmd.Flags().GetStringSlice("tag")
	only, _ := cmd.Flags().GetStringSlice("only")
	failed, _ := cmd.Flags().GetBool("failed")
	opts := orchestrator.Options{Tags: tags, Only: only, Failed: failed}
	if failed && (len(tags) > 0 || len(only) > 0) {
		return opts, clierrors.InvalidFlagCombination("--failed with --tag/--only",
			"--failed reselects on the persisted selection; --tag and --only use the alternate one")
	}
	return opts, nil
}

// executeRun runs the orchestration, prints its summary and records it in
// the history.
func executeRun(ctx context.Context, out io.Writer, env *runtimeEnv, opts orchestrator.Options) error {
	start := time.Now()
	res, err := orchestrator.New(env.cfg, units, env.log).Run(ctx, opts)
	if res != nil {
		printSummary(out, res.Summary)
	}
	if err == nil && res.Failed() {
		err = errNodesFailed
	}

	entry := history.HistoryEntry{
		Timestamp: time.Now(),
		Command:   opts.Command,
		ExitCode:  ExitCode(err),
		Duration:  time.Since(start).Round(time.Millisecond).String(),
		Groups:    env.cfg.GroupNames(),
	}
	if res != nil {
		entry.RunID = res.Summary.RunID
		entry.Succeeded, entry.Failed, entry.Skipped = res.Summary.Totals()
	}
	history.NewWriter(env.cfg.StateDir, env.cfg.MaxHistoryEntries, env.log).LogEntry(entry)
	return err
}

// printSummary writes the per-group outcome table of a run.
func printSummary(out io.Writer, s *orchestrator.RunSummary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(out, "\nRun %s (%s)\n", s.RunID, s.Selection)
	for _, g := range s.Groups {
		status := string(g.Status)
		switch g.Status {
		case orchestrator.GroupStatusCompleted:
			status = green(status)
		case orchestrator.GroupStatusFailed, orchestrator.GroupStatusKilled:
			status = red(status)
		default:
			status = yellow(status)
		}
		fmt.Fprintf(out, "  %-16s %-10s %s\n", g.Name, status, formatCounts(g.Counts))
		if g.FailureReason != "" {
			fmt.Fprintf(out, "  %-16s %s\n", "", g.FailureReason)
		}
	}
	for _, msg := range s.ConfigErrors {
		fmt.Fprintf(out, "  %s %s\n", red("config:"), msg)
	}
	if len(s.Supporters) > 0 {
		names := make([]string, 0, len(s.Supporters))
		for name := range s.Supporters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  requirement %s: %d supporting node(s)\n", name, len(s.Supporters[name]))
		}
	}

	succeeded, failed, skipped := s.Totals()
	fmt.Fprintf(out, "%s: %d succeeded, %d failed, %d skipped\n", s.Status, succeeded, failed, skipped)
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	states := make([]string, 0, len(counts))
	for st := range counts {
		states = append(states, st)
	}
	sort.Strings(states)
	var out string
	for i, st := range states {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", st, counts[st])
	}
	return out
}
