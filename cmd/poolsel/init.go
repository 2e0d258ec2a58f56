package main

import (
	"fmt"

	"github.com/4thel00z/poolsel/internal"
	"github.com/spf13/cobra"
)

func NewInitCmd(uc *internal.InitUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a poolsel workspace",
		Long:  `Create a .poolsel directory with a config, an item store and a round ledger.`,
		Args:  cobra.NoArgs,
		RunE:  makeInitRunner(uc),
	}

	cmd.Flags().Bool("force", false, "Reinitialize missing parts of an existing workspace")
	return cmd
}

func makeInitRunner(uc *internal.InitUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")

		out, err := uc.Execute(cmd.Context(), internal.InitInput{Force: force})
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}

		if out.Created {
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized poolsel workspace at %s\n", out.Dir)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Reinitialized poolsel workspace at %s\n", out.Dir)
		}
		return nil
	}
}
