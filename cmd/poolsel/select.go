package main

import (
	"fmt"

	"github.com/4thel00z/poolsel/internal"
	"github.com/spf13/cobra"
)

func NewSelectCmd(uc *internal.SelectRoundUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <pool>",
		Short: "Pick the next batch to annotate",
		Long: `Rank the pool by uncertainty, keep the top candidates and pick a subset
that covers the whole pool. Without --commit nothing is changed.`,
		Args: cobra.ExactArgs(1),
		RunE: makeSelectRunner(uc),
	}

	cmd.Flags().IntP("candidates", "c", 0, "Number of most uncertain items to consider (default: selection.candidates)")
	cmd.Flags().IntP("select", "k", 0, "Number of items to pick (default: selection.select)")
	cmd.Flags().String("tag", "", "Annotation tag for the round")
	cmd.Flags().Bool("commit", false, "Mark the picks for annotation, remove them from the pool and record the round")
	cmd.Flags().String("metrics-file", "", "Write selection metrics in Prometheus text format to this file")
	return cmd
}

func makeSelectRunner(uc *internal.SelectRoundUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		commit, _ := cmd.Flags().GetBool("commit")
		metricsFile, _ := cmd.Flags().GetString("metrics-file")
		asJSON, _ := cmd.Flags().GetBool("json")

		input := internal.SelectInput{
			Pool: args[0], Tag: tag, Commit: commit, MetricsFile: metricsFile,
		}
		if cmd.Flags().Changed("candidates") {
			n, _ := cmd.Flags().GetInt("candidates")
			input.Candidates = &n
		}
		if cmd.Flags().Changed("select") {
			n, _ := cmd.Flags().GetInt("select")
			input.Select = &n
		}

		uc.SetHookOutput(cmd.ErrOrStderr())
		out, err := uc.Execute(cmd.Context(), input)
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}

		if asJSON {
			return outputSelectJSON(cmd, out)
		}

		w := cmd.OutOrStdout()
		for i, it := range out.Items {
			fmt.Fprintf(w, "%3d  %-40s  uncertainty %.4f  gain %.4f\n", i+1, it.Name, it.Uncertainty, it.Gain)
		}
		fmt.Fprintf(w, "\n%d of %d candidates, coverage %.4f over %d items\n",
			len(out.Items), len(out.Candidates), out.Coverage, out.Stats.PoolSize)

		if out.Committed {
			fmt.Fprintf(w, "Committed round %s as %s [%s]\n", shortID(out.RoundID), out.Tag, shortID(out.CommitHash))
		} else {
			fmt.Fprintln(w, "Dry run, pass --commit to record the round")
		}
		return nil
	}
}

func outputSelectJSON(cmd *cobra.Command, out *internal.SelectOutput) error {
	items := make([]map[string]any, 0, len(out.Items))
	for _, it := range out.Items {
		items = append(items, map[string]any{
			"index":       it.Index,
			"name":        it.Name,
			"uncertainty": it.Uncertainty,
			"gain":        it.Gain,
		})
	}

	return outputJSON(cmd, map[string]any{
		"round":      out.RoundID,
		"pool":       out.Pool,
		"tag":        out.Tag,
		"items":      items,
		"candidates": out.Candidates,
		"coverage":   out.Coverage,
		"pool_size":  out.Stats.PoolSize,
		"committed":  out.Committed,
		"commit":     out.CommitHash,
		"hook_ran":   out.HookRan,
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
