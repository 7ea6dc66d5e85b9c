package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ariel-frischer/proctest/internal/config"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented configuration file",
	Long: `Write .proctest/config.yml with every option and its default, ready to
be edited. An existing file is kept unless --force is given.`,
	Example: `  proctest init
  proctest init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.ProjectConfigPath()
		}
		return writeConfigTemplate(cmd, path, force)
	},
}

func init() {
	initCmd.GroupID = GroupState
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing configuration file")
}

func writeConfigTemplate(cmd *cobra.Command, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return clierrors.NewArgumentError(
			fmt.Sprintf("configuration file %s already exists", path),
			"Use --force to overwrite it",
		)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.GetDefaultConfigTemplate()), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Config: created %s\n", path)
	return nil
}
