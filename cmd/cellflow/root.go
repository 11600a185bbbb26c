package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds global flags and the logger shared by every subcommand
type app struct {
	verbose bool
	logger  *zap.Logger
}

// newRootCmd builds the command tree. A logger already set on a is used as
// is instead of building one from the flags.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cellflow",
		Short: "Run dependency graphs of cells",
		Long: `cellflow loads a graph of nodes from a YAML file and evaluates it.

Nodes run after the nodes they list in "after". Timer and watch nodes are
inputs: in flow mode every time one fires, only the nodes downstream of it are
recomputed, and nodes whose inputs did not change are skipped.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return nil
			}
			config := zap.NewProductionConfig()
			if a.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			a.logger, err = config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newDotCmd(a))
	rootCmd.AddCommand(newValidateCmd(a))

	return rootCmd
}
