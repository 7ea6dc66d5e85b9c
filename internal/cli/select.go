package cli

import (
	"fmt"
	"io"

	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/orchestrator"
	"github.com/spf13/cobra"
)

var selectCmd = &cobra.Command{
	Use:   "select <pattern>",
	Short: "Select nodes for the next run",
	Long: `Select the nodes matching pattern on the persisted selection. Selecting a
node also selects its ancestors and the prerequisites it needs, so the next
run can actually execute it.

With --failed no pattern is taken: nodes whose last outcome was not a
success are reselected.`,
	Example: `  proctest select 'Store.*'
  proctest select '#12'
  proctest select --failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		failed, _ := cmd.Flags().GetBool("failed")
		if !failed {
			if err := requireArg(cmd, args); err != nil {
				return err
			}
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
		if failed {
			return recordCommand(env, "select", func() error {
				return reselectFailed(cmd.OutOrStdout(), st)
			})
		}
		return recordCommand(env, "select", func() error {
			return setRun(cmd.OutOrStdout(), st, args[0], true)
		})
	},
}

var deselectCmd = &cobra.Command{
	Use:   "deselect <pattern>",
	Short: "Exclude nodes from the next run",
	Long: `Deselect the nodes matching pattern on the persisted selection. Their
descendants and the nodes requiring them are deselected too.`,
	Example: `  proctest deselect 'Store.read'
  proctest deselect 'second:*'`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		return recordCommand(env, "deselect", func() error {
			return setRun(cmd.OutOrStdout(), st, args[0], false)
		})
	},
}

func init() {
	selectCmd.GroupID = GroupState
	deselectCmd.GroupID = GroupState
	rootCmd.AddCommand(selectCmd, deselectCmd)
	selectCmd.Flags().BoolP("failed", "f", false, "Reselect nodes that did not succeed in the last run")
}

func setRun(out io.Writer, st *orchestrator.State, ref string, selected bool) error {
	nodes, err := st.SetRun(ref, selected)
	if err != nil {
		return err
	}
	verb := "deselect"
	if selected {
		verb = "select"
	}
	if err := st.Save(verb); err != nil {
		return err
	}
	fmt.Fprintf(out, "%sed %d node(s); %d of %d selected\n", verb, len(nodes), countSelected(st), st.Registry.Len())
	return nil
}

func reselectFailed(out io.Writer, st *orchestrator.State) error {
	n := st.SelectFailed()
	if err := st.Save("select --failed"); err != nil {
		return err
	}
	fmt.Fprintf(out, "reselected %d node(s); %d of %d selected\n", n, countSelected(st), st.Registry.Len())
	return nil
}

func countSelected(st *orchestrator.State) int {
	n := 0
	for _, nd := range st.Registry.Nodes() {
		if nd.Selected(node.RunFlag) {
			n++
		}
	}
	return n
}
