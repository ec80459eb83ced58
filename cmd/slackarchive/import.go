package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/edgard/slackarchive/internal/ingest"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "import <export.zip>",
		Short: "Import a Slack workspace export and paginate every channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			if !cmd.Flags().Changed("workers") {
				workers = rt.cfg.Import.Workers
			}
			im := ingest.NewImporter(rt.engine, rt.store, rt.log, workers)
			summary, err := im.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s messages and %s replies across %s channels (%s pages closed)\n",
				humanize.Comma(int64(summary.Messages)),
				humanize.Comma(int64(summary.Replies)),
				humanize.Comma(int64(summary.Channels)),
				humanize.Comma(int64(summary.PagesClosed)))
			if len(summary.Skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Skipped directories with no matching channel: %v\n", summary.Skipped)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "channels imported in parallel (default from config)")
	return cmd
}
