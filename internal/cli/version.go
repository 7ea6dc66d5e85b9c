package cli

import (
	"fmt"
	"runtime"

	"github.com/ariel-frischer/proctest/internal/build"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Display version information (v)",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		suffix := ""
		if build.IsDevBuild() {
			suffix = " (development build)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "proctest %s%s\ncommit %s, built %s, %s\n",
			build.Version, suffix, build.Commit, build.BuildDate, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
