package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "slackarchive",
		Short:         "Paginated archive of Slack and Telegram conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to configuration file (default ./config.yaml if present)")

	cmd.AddCommand(
		newServeCommand(opts),
		newImportCommand(opts),
		newPaginateCommand(opts),
	)
	return cmd
}
