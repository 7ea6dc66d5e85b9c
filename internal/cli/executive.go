package cli

import (
	"github.com/ariel-frischer/proctest/internal/config"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/executive"
	"github.com/spf13/cobra"
)

// executiveCmd is the entry point of a verification process. The
// coordinator launches it with the path of an executive descriptor.
var executiveCmd = &cobra.Command{
	Use:    config.ExecutiveCommand + " <descriptor>",
	Short:  "Run the verification pass of one group (internal)",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := executive.Main(args[0], units); err != nil {
			return clierrors.Wrap(err, clierrors.Runtime)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(executiveCmd)
}
