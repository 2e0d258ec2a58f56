package main

import (
	"fmt"
	"time"

	"github.com/4thel00z/poolsel/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewRoundsCmd(uc *internal.RoundsUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "List committed selection rounds",
		Long:  `List committed selection rounds, newest first.`,
		Args:  cobra.NoArgs,
		RunE:  makeRoundsRunner(uc),
	}

	cmd.Flags().IntP("number", "n", 0, "Limit number of rounds")
	cmd.AddCommand(newRoundsShowCmd(uc), newRoundsLogCmd(uc))
	return cmd
}

func makeRoundsRunner(uc *internal.RoundsUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("number")
		asJSON, _ := cmd.Flags().GetBool("json")

		rounds, err := uc.Execute(cmd.Context(), internal.RoundsInput{Limit: limit})
		if err != nil {
			return fmt.Errorf("list rounds: %w", err)
		}

		if asJSON {
			return outputJSON(cmd, rounds)
		}

		for _, r := range rounds {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-16s %3d from %-16s coverage %.4f\n",
				shortID(r.ID), r.CreatedAt.Local().Format(time.DateTime), r.Tag, len(r.Items), r.Pool, r.Coverage)
		}
		return nil
	}
}

func newRoundsShowCmd(uc *internal.RoundsUseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a round manifest",
		Long:  `Show a round manifest. Any unambiguous prefix of the round ID works.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			round, err := uc.Show(cmd.Context(), internal.ShowRoundInput{ID: args[0]})
			if err != nil {
				return fmt.Errorf("show round: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, round)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(round); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newRoundsLogCmd(uc *internal.RoundsUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the ledger history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("number")
			oneline, _ := cmd.Flags().GetBool("oneline")
			asJSON, _ := cmd.Flags().GetBool("json")

			commits, err := uc.Log(cmd.Context(), internal.RoundsInput{Limit: limit})
			if err != nil {
				return fmt.Errorf("get log: %w", err)
			}

			if asJSON {
				out := make([]map[string]any, 0, len(commits))
				for _, c := range commits {
					out = append(out, map[string]any{
						"hash":      c.Hash,
						"message":   c.Message,
						"author":    c.Author,
						"timestamp": c.Timestamp,
					})
				}
				return outputJSON(cmd, out)
			}

			for _, c := range commits {
				if oneline {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", c.Hash[:7], c.Message)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "commit %s\n", c.Hash)
				fmt.Fprintf(cmd.OutOrStdout(), "Author: %s\n", c.Author)
				fmt.Fprintf(cmd.OutOrStdout(), "Date:   %s\n\n", c.Timestamp.Format("Mon Jan 2 15:04:05 2006 -0700"))
				fmt.Fprintf(cmd.OutOrStdout(), "    %s\n\n", c.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntP("number", "n", 10, "Limit number of commits")
	cmd.Flags().Bool("oneline", false, "Show each commit on one line")
	return cmd
}
