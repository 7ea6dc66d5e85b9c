// Package cli implements the proctest command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/ariel-frischer/proctest/internal/config"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/history"
	"github.com/ariel-frischer/proctest/internal/lifecycle"
	"github.com/ariel-frischer/proctest/internal/logging"
	"github.com/ariel-frischer/proctest/internal/registry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Command group IDs.
const (
	GroupRun   = "run"
	GroupState = "state"
)

// units resolves entry points and requirements. Embedding applications
// register into registry.Default before calling Execute.
var units = registry.Default

var rootCmd = &cobra.Command{
	Use:   "proctest",
	Short: "Two-pass, process-isolated test orchestration",
	Long: `proctest discovers a tree of tests, resolves the prerequisites between them
and verifies each configured group in its own child process. A watchdog
kills verification processes that stop sending heartbeats, and outcomes
flushed before a crash are kept.`,
	Example: `  # Discover and verify every configured group
  proctest run

  # Verify only nodes tagged smoke
  proctest run --tag smoke

  # Rerun what failed last time
  proctest run --failed

  # Inspect and edit the persisted selection
  proctest tree
  proctest deselect 'Store.*'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupRun, Title: "Run Commands:"},
		&cobra.Group{ID: GroupState, Title: "State Commands:"},
	)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default: .proctest/config.yml)")
	rootCmd.PersistentFlags().String("state-dir", "", "Override the state directory")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return clierrors.NewArgumentErrorWithUsage(err.Error(), cmd.UseLine())
	})
}

// Execute runs the root command and prints any error. Use ExitCode to turn
// the returned error into a process exit code.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errNodesFailed) {
		clierrors.FprintAny(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// runtimeEnv is the configuration and logger a command works with.
type runtimeEnv struct {
	cfg   *config.Configuration
	log   *zap.Logger
	close func() error
}

// loadRuntime loads the configuration selected by the persistent flags and
// builds the logger.
func loadRuntime(cmd *cobra.Command) (*runtimeEnv, error) {
	configPath, _ := cmd.Flags().GetString("config")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	log, closeLog, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Configuration)
	}
	return &runtimeEnv{cfg: cfg, log: log, close: closeLog}, nil
}

func loadConfig(path string) (*config.Configuration, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigPath: path})
	if err == nil {
		return cfg, nil
	}
	if path != "" && errors.Is(err, os.ErrNotExist) {
		return nil, clierrors.ConfigFileNotFound(path)
	}
	if path == "" {
		path = config.ProjectConfigPath()
	}
	return nil, clierrors.ConfigParseError(path, err)
}

// requireArg returns a usage error when a pattern argument is missing.
func requireArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return clierrors.NewArgumentErrorWithUsage(
			fmt.Sprintf("%s requires exactly one node pattern", cmd.Name()),
			cmd.UseLine(),
			"Patterns are #<seq> or [group:]Class[.method[(arg)]] with * wildcards",
		)
	}
	return nil
}

// recordCommand runs fn and logs the command to the history.
func recordCommand(env *runtimeEnv, name string, fn func() error) error {
	w := history.NewWriter(env.cfg.StateDir, env.cfg.MaxHistoryEntries, env.log)
	return lifecycle.Run(w, name, ExitCode, fn)
}
