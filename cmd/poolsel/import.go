package main

import (
	"fmt"

	"github.com/4thel00z/poolsel/internal"
	"github.com/spf13/cobra"
)

func NewImportCmd(uc *internal.ImportPoolUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <pool> <file.jsonl>",
		Short: "Import items into a pool",
		Long: `Import scored items from a JSON Lines file. Each line holds one item:

  {"name": "img/0001.png", "uncertainty": 0.83, "embedding": [0.1, 0.4, ...]}

The pool is created on first import. Names matched by .poolselignore are skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: makeImportRunner(uc),
	}

	cmd.Flags().Bool("refresh", false, "Update scores and embeddings of items already in the pool")
	cmd.Flags().Bool("reindex", false, "Rebuild the pool's neighbor index afterwards")
	return cmd
}

func makeImportRunner(uc *internal.ImportPoolUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		reindex, _ := cmd.Flags().GetBool("reindex")
		asJSON, _ := cmd.Flags().GetBool("json")

		out, err := uc.Execute(cmd.Context(), internal.ImportInput{
			Pool: args[0], Path: args[1], Refresh: refresh, Reindex: reindex,
		})
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}

		if asJSON {
			return outputJSON(cmd, map[string]any{
				"pool":      out.Pool,
				"dimension": out.Dimension,
				"added":     out.Added,
				"updated":   out.Updated,
				"ignored":   out.Ignored,
				"indexed":   out.Indexed,
			})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d items into %s (%d updated, %d ignored)\n",
			out.Added, out.Pool, out.Updated, out.Ignored)
		if out.Indexed {
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt index for %s\n", out.Pool)
		}
		return nil
	}
}
