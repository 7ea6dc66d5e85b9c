package cli

import (
	"fmt"

	"github.com/ariel-frischer/proctest/internal/orchestrator"
	"github.com/spf13/cobra"
)

var expandCmd = &cobra.Command{
	Use:     "expand <pattern>",
	Short:   "Show the children of nodes in tree output",
	Example: `  proctest expand 'demo.run'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetExpanded(cmd, args, true)
	},
}

var collapseCmd = &cobra.Command{
	Use:     "collapse <pattern>",
	Short:   "Hide the children of nodes in tree output",
	Example: `  proctest collapse 'Arith.all'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetExpanded(cmd, args, false)
	},
}

func init() {
	expandCmd.GroupID = GroupState
	collapseCmd.GroupID = GroupState
	rootCmd.AddCommand(expandCmd, collapseCmd)
}

func runSetExpanded(cmd *cobra.Command, args []string, expanded bool) error {
	if err := requireArg(cmd, args); err != nil {
		return err
	}
	env, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	st, err := orchestrator.LoadState(env.cfg)
	if err != nil {
		return err
	}
	return recordCommand(env, cmd.Name(), func() error {
		nodes, err := st.SetExpanded(args[0], expanded)
		if err != nil {
			return err
		}
		if err := st.Save(cmd.Name()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d node(s)\n", cmd.Name(), len(nodes))
		return nil
	})
}
