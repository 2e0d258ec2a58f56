package main

import (
	"fmt"

	"github.com/4thel00z/poolsel/internal"
	"github.com/spf13/cobra"
)

func NewIndexCmd(uc *internal.RebuildIndexUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage neighbor indexes",
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rebuildCmd := &cobra.Command{
		Use:   "rebuild <pool>",
		Short: "Rebuild the neighbor index of a pool",
		Long:  `Rebuild the approximate nearest neighbor index from the items currently in the pool.`,
		Args:  cobra.ExactArgs(1),
		RunE:  makeIndexRebuildRunner(uc),
	}

	cmd.AddCommand(rebuildCmd)
	return cmd
}

func makeIndexRebuildRunner(uc *internal.RebuildIndexUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		out, err := uc.Execute(cmd.Context(), internal.RebuildIndexInput{Pool: args[0]})
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}

		if !out.Indexed {
			fmt.Fprintf(cmd.OutOrStdout(), "Pool %s has %d items, too few for an index\n", out.Pool, out.Items)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d items of %s (%d trees)\n", out.Items, out.Pool, out.Trees)
		return nil
	}
}

func NewNeighborsCmd(uc *internal.NeighborsUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neighbors <pool> <item>",
		Short: "Show the items most similar to an item",
		Long:  `Show the pool items most similar to an item, using the pool's neighbor index.`,
		Args:  cobra.ExactArgs(2),
		RunE:  makeNeighborsRunner(uc),
	}

	cmd.Flags().IntP("number", "n", 0, "Number of neighbors (default: index.neighbors)")
	return cmd
}

func makeNeighborsRunner(uc *internal.NeighborsUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("number")
		asJSON, _ := cmd.Flags().GetBool("json")

		out, err := uc.Execute(cmd.Context(), internal.NeighborsInput{
			Pool: args[0], Item: args[1], Limit: limit,
		})
		if err != nil {
			return fmt.Errorf("neighbors: %w", err)
		}

		if asJSON {
			neighbors := make([]map[string]any, 0, len(out.Neighbors))
			for _, n := range out.Neighbors {
				neighbors = append(neighbors, map[string]any{"name": n.Name, "score": n.Score})
			}
			return outputJSON(cmd, map[string]any{"pool": out.Pool, "item": out.Item, "neighbors": neighbors})
		}

		for _, n := range out.Neighbors {
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s\n", n.Score, n.Name)
		}
		return nil
	}
}
