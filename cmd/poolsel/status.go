package main

import (
	"fmt"
	"time"

	"github.com/4thel00z/poolsel/internal"
	"github.com/spf13/cobra"
)

func NewStatusCmd(uc *internal.StatusUseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		Long:  `Show the selection defaults, the pools with their sizes and the last committed round.`,
		Args:  cobra.NoArgs,
		RunE:  makeStatusRunner(uc),
	}
}

func makeStatusRunner(uc *internal.StatusUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		out, err := uc.Execute(cmd.Context())
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}

		if asJSON {
			pools := make([]map[string]any, 0, len(out.Pools))
			for _, p := range out.Pools {
				pools = append(pools, map[string]any{
					"name":      p.Name,
					"dimension": p.Dimension,
					"size":      p.Size,
					"indexed":   p.Indexed,
				})
			}
			return outputJSON(cmd, map[string]any{
				"root":         out.Root,
				"candidates":   out.Candidates,
				"select":       out.Select,
				"zero_vectors": out.ZeroVectors,
				"pools":        pools,
				"annotations":  out.Annotations,
				"rounds":       out.Rounds,
				"last_round":   out.LastRound,
			})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Workspace %s\n", out.Root)
		fmt.Fprintf(w, "Selecting %d of the %d most uncertain items (zero vectors: %s)\n\n", out.Select, out.Candidates, out.ZeroVectors)

		if len(out.Pools) == 0 {
			fmt.Fprintln(w, "No pools yet, see poolsel import")
		}
		for _, p := range out.Pools {
			indexed := ""
			if p.Indexed {
				indexed = "  indexed"
			}
			fmt.Fprintf(w, "  %-24s %8d items  dim %d%s\n", p.Name, p.Size, p.Dimension, indexed)
		}

		fmt.Fprintf(w, "\n%d items marked for annotation in %d rounds\n", out.Annotations, out.Rounds)
		if r := out.LastRound; r != nil {
			fmt.Fprintf(w, "Last round %s (%s) on %s at %s\n", shortID(r.ID), r.Tag, r.Pool, r.CreatedAt.Local().Format(time.DateTime))
		}
		return nil
	}
}
