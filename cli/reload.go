package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReloadCommand creates the reload command: a one-shot connectivity check.
func NewReloadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Load the directory once and print the counts",
		Long: `Connect to the configured store, create missing tables or headers,
load employees and rewards and print how many were found.

Exits non-zero when the store does not answer or cannot be read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(nil)
			if err != nil {
				return err
			}
			log, err := rootOpts.newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ping(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "store unreachable", err)
			}
			snap, err := a.dir.Reload(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "reload failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "funcionarios: %d\nrecompensas: %d\n", snap.EmployeeCount(), snap.RewardCount())
			return nil
		},
	}
}
