package main

import (
	"fmt"
	"time"

	"github.com/4thel00z/poolsel/internal"
	"github.com/spf13/cobra"
)

func NewPoolsCmd(uc *internal.ListPoolsUseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List pools",
		Args:  cobra.NoArgs,
		RunE:  makePoolsRunner(uc),
	}
}

func makePoolsRunner(uc *internal.ListPoolsUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		pools, err := uc.Execute(cmd.Context())
		if err != nil {
			return fmt.Errorf("list pools: %w", err)
		}

		if asJSON {
			out := make([]map[string]any, 0, len(pools))
			for _, p := range pools {
				out = append(out, map[string]any{
					"name":       p.Name,
					"dimension":  p.Dimension,
					"size":       p.Size,
					"created_at": p.CreatedAt,
				})
			}
			return outputJSON(cmd, out)
		}

		for _, p := range pools {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %8d items  dim %d\n", p.Name, p.Size, p.Dimension)
		}
		return nil
	}
}

func NewItemsCmd(uc *internal.ListItemsUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items <pool>",
		Short: "List the items of a pool",
		Args:  cobra.ExactArgs(1),
		RunE:  makeItemsRunner(uc),
	}

	cmd.Flags().IntP("limit", "n", 0, "Show at most this many items")
	cmd.Flags().BoolP("by-uncertainty", "u", false, "Order by descending uncertainty instead of import order")
	return cmd
}

func makeItemsRunner(uc *internal.ListItemsUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		byUncertainty, _ := cmd.Flags().GetBool("by-uncertainty")
		asJSON, _ := cmd.Flags().GetBool("json")

		out, err := uc.Execute(cmd.Context(), internal.ListItemsInput{
			Pool: args[0], Limit: limit, ByUncertainty: byUncertainty,
		})
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}

		if asJSON {
			items := make([]map[string]any, 0, len(out.Items))
			for _, it := range out.Items {
				items = append(items, map[string]any{
					"name":        it.Name,
					"uncertainty": it.Uncertainty,
				})
			}
			return outputJSON(cmd, map[string]any{"pool": out.Pool, "total": out.Total, "items": items})
		}

		for _, it := range out.Items {
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s\n", it.Uncertainty, it.Name)
		}
		if len(out.Items) < out.Total {
			fmt.Fprintf(cmd.OutOrStdout(), "... %d more\n", out.Total-len(out.Items))
		}
		return nil
	}
}

func NewRemoveCmd(uc *internal.RemoveItemsUseCase) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <pool> <item>...",
		Aliases: []string{"rm"},
		Short:   "Remove items from a pool",
		Long:    `Remove items from a pool. Either all named items are removed or none.`,
		Args:    cobra.MinimumNArgs(2),
		RunE:    makeRemoveRunner(uc),
	}
}

func makeRemoveRunner(uc *internal.RemoveItemsUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		out, err := uc.Execute(cmd.Context(), internal.RemoveInput{Pool: args[0], Items: args[1:]})
		if err != nil {
			return fmt.Errorf("remove: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d items from %s\n", out.Removed, args[0])
		return nil
	}
}

func NewAnnotationsCmd(uc *internal.ListAnnotationsUseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "annotations [tag]",
		Short: "List items marked for annotation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  makeAnnotationsRunner(uc),
	}
}

func makeAnnotationsRunner(uc *internal.ListAnnotationsUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		var tag string
		if len(args) == 1 {
			tag = args[0]
		}

		anns, err := uc.Execute(cmd.Context(), internal.ListAnnotationsInput{Tag: tag})
		if err != nil {
			return fmt.Errorf("list annotations: %w", err)
		}

		if asJSON {
			out := make([]map[string]any, 0, len(anns))
			for _, a := range anns {
				out = append(out, map[string]any{
					"pool":        a.Pool,
					"item":        a.Item,
					"tag":         a.Tag,
					"round":       a.Round,
					"uncertainty": a.Uncertainty,
					"created_at":  a.CreatedAt,
				})
			}
			return outputJSON(cmd, out)
		}

		for _, a := range anns {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %s/%s\n", a.CreatedAt.Local().Format(time.DateTime), a.Tag, a.Pool, a.Item)
		}
		return nil
	}
}
