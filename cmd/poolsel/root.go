package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/poolsel/internal"
	"github.com/spf13/cobra"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "poolsel",
		Short:         "Uncertainty and diversity sampling for active learning",
		Long:          `Pick the next batch to annotate from an unlabeled pool: the most uncertain items, thinned to a representative subset.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	setHelpWithExternals(rootCmd)

	if a != nil {
		rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		}
		addSubcommands(rootCmd, a)
	}

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("workspace", "w", "", "Workspace root (default: search upward from the working directory)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("log-level", "", "Log level (default: log.level from config)")
	cmd.PersistentFlags().String("log-format", "", "Log format, text or json (default: log.format from config)")
}

// configure points the runtime at the requested workspace and builds the
// logger. Flags win over the workspace config.
func (a *app) configure(cmd *cobra.Command) error {
	wsPath, _ := cmd.Flags().GetString("workspace")
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	a.rt.Resolver = internal.NewWorkspaceResolver(wsPath)

	if _, cfg, err := a.rt.Config(); err == nil {
		if !cmd.Flags().Changed("log-level") {
			level = cfg.Log.Level
		}
		if !cmd.Flags().Changed("log-format") {
			format = cfg.Log.Format
		}
	}

	logger, err := internal.NewLogger(cmd.ErrOrStderr(), level, format)
	if err != nil {
		return err
	}
	a.rt.Logger = logger
	return nil
}

func addSubcommands(root *cobra.Command, a *app) {
	root.AddCommand(
		NewInitCmd(internal.NewInitUseCase(a.rt)),
		NewImportCmd(internal.NewImportPoolUseCase(a.rt)),
		NewSelectCmd(internal.NewSelectRoundUseCase(a.rt)),
		NewPoolsCmd(internal.NewListPoolsUseCase(a.rt)),
		NewItemsCmd(internal.NewListItemsUseCase(a.rt)),
		NewRemoveCmd(internal.NewRemoveItemsUseCase(a.rt)),
		NewAnnotationsCmd(internal.NewListAnnotationsUseCase(a.rt)),
		NewRoundsCmd(internal.NewRoundsUseCase(a.rt)),
		NewIndexCmd(internal.NewRebuildIndexUseCase(a.rt)),
		NewNeighborsCmd(internal.NewNeighborsUseCase(a.rt)),
		NewStatusCmd(internal.NewStatusUseCase(a.rt)),
		NewWatchCmd(a.rt, internal.NewImportPoolUseCase(a.rt)),
	)
}

func setHelpWithExternals(cmd *cobra.Command) {
	defaultHelp := cmd.HelpFunc()

	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		printExternalCommands(c)
	})
}

func printExternalCommands(cmd *cobra.Command) {
	externals := listExternalCommands()
	if len(externals) == 0 {
		return
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nExternal commands (poolsel-*):")
	for _, name := range externals {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
