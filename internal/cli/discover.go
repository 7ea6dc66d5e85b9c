package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/ariel-frischer/proctest/internal/orchestrator"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover every group and persist the tree without verifying",
	Long: `Run the discovery pass of every group, resolve prerequisites and write the
configuration snapshots. No verification process is launched.

Use it to check a suite for configuration errors, or to refresh the tree
before editing the selection with select and deselect.`,
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
		opts.Command = "discover"
		return recordCommand(env, opts.Command, func() error {
			return executeDiscover(cmd.Context(), cmd.OutOrStdout(), env, opts)
		})
	},
}

func init() {
	discoverCmd.GroupID = GroupRun
	rootCmd.AddCommand(discoverCmd)
	addSelectionFlags(discoverCmd)
}

func executeDiscover(ctx context.Context, out io.Writer, env *runtimeEnv, opts orchestrator.Options) error {
	res, err := orchestrator.New(env.cfg, units, env.log).Discover(ctx, opts)
	if err != nil {
		if res != nil {
			printSummary(out, res.Summary)
		}
		return err
	}

	for _, g := range res.Summary.Groups {
		fmt.Fprintf(out, "%-16s %d node(s), #%d-#%d\n", g.Name, g.Count, g.First, g.First+g.Count-1)
	}
	fmt.Fprintf(out, "discovered %d node(s) in %d group(s)\n", res.Registry.Len(), len(res.Summary.Groups))
	return nil
}
