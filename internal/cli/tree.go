package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/orchestrator"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree [pattern]",
	Short: "Show the persisted tree with selection and outcomes",
	Long: `Show the tree persisted by the last discover or run, one node per line:
selection mark, sequence index, identity, last outcome and resolved
prerequisites. Children of collapsed nodes are hidden unless --all is set.

With a pattern only the matching subtrees are shown.`,
	Example: `  proctest tree
  proctest tree --all --failures
  proctest tree 'second:Beta.*'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		st, err := orchestrator.LoadState(env.cfg)
		if err != nil {
			return err
		}
		opts := treeOptions{}
		opts.all, _ = cmd.Flags().GetBool("all")
		opts.failures, _ = cmd.Flags().GetBool("failures")
		if len(args) == 1 {
			opts.pattern = args[0]
		}
		return printTree(cmd.OutOrStdout(), st, opts)
	},
}

func init() {
	treeCmd.GroupID = GroupState
	rootCmd.AddCommand(treeCmd)
	treeCmd.Flags().BoolP("all", "a", false, "Show children of collapsed nodes")
	treeCmd.Flags().Bool("failures", false, "Show failure messages under failed nodes")
}

type treeOptions struct {
	pattern  string
	all      bool
	failures bool
}

// printTree writes the persisted tree. Matched subtrees are shown in full
// regardless of expansion.
func printTree(out io.Writer, st *orchestrator.State, opts treeOptions) error {
	if opts.pattern != "" {
		nodes, err := st.Resolve(opts.pattern)
		if err != nil {
			return err
		}
		shown := make(map[*node.Node]bool)
		for _, n := range nodes {
			if covered(n, shown) {
				continue
			}
			shown[n] = true
			printNode(out, n, n.Depth(), treeOptions{all: true, failures: opts.failures})
		}
		return nil
	}

	for _, g := range st.Registry.Groups() {
		verified := "not verified"
		if st.Verified[g.Name] {
			verified = "verified"
		}
		fmt.Fprintf(out, "%s  #%d-#%d  %s\n",
			color.New(color.Bold).Sprint(g.Name), g.First, g.First+g.Count-1, verified)
		printNode(out, st.Registry.MustNode(g.First), 0, opts)
	}
	return nil
}

// covered reports whether an ancestor of n is already shown.
func covered(n *node.Node, shown map[*node.Node]bool) bool {
	for _, a := range n.Ancestors() {
		if shown[a] {
			return true
		}
	}
	return false
}

func printNode(out io.Writer, n *node.Node, depth int, opts treeOptions) {
	indent := strings.Repeat("  ", depth)
	mark := "[ ]"
	if n.Run {
		mark = "[x]"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s %s  %s", indent, mark, n.Heading(), stateLabel(n))
	if edges := n.Prereqs.All(); len(edges) > 0 {
		fmt.Fprintf(&sb, "  requires %s", seqList(edges))
	}
	if len(n.Tags) > 0 {
		fmt.Fprintf(&sb, "  tags=%s", strings.Join(n.Tags, ","))
	}
	if len(n.Supports) > 0 {
		fmt.Fprintf(&sb, "  supports=%s", strings.Join(n.Supports, ","))
	}
	collapsed := !opts.all && !n.Expanded && len(n.Children()) > 0
	if collapsed {
		fmt.Fprintf(&sb, "  (+%d)", n.Size()-1)
	}
	fmt.Fprintln(out, sb.String())

	if opts.failures {
		for _, f := range n.Failures {
			fmt.Fprintf(out, "%s      ! %s\n", indent, f.Message)
		}
	}
	if collapsed {
		return
	}
	for _, c := range n.Children() {
		printNode(out, c, depth+1, opts)
	}
}

func stateLabel(n *node.Node) string {
	switch {
	case n.State == node.CompleteSucceeded:
		return color.New(color.FgGreen).Sprint(n.State)
	case n.State == node.CompleteFailed:
		return color.New(color.FgRed).Sprint(n.State)
	case n.State != node.Uninitialized:
		return color.New(color.FgYellow).Sprint(n.State)
	case n.PrevState != node.Uninitialized:
		return fmt.Sprintf("NOT_RUN (prev %s)", n.PrevState)
	default:
		return "NOT_RUN"
	}
}

func seqList(seqs []int) string {
	parts := make([]string, len(seqs))
	for i, s := range seqs {
		parts[i] = "#" + strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}
