package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPaginateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paginate [channel...]",
		Short: "Close every full page, for the given channels or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			channels := args
			if len(channels) == 0 {
				if channels, err = rt.store.ListChannelIDs(ctx); err != nil {
					return err
				}
			}

			total := 0
			for _, ch := range channels {
				closed, err := rt.engine.AdvanceAll(ctx, ch)
				total += closed
				if err != nil {
					return fmt.Errorf("failed to paginate channel %s: %w", ch, err)
				}
				rt.log.Debug().Str("channel", ch).Int("pages_closed", closed).Msg("Channel paginated")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Closed %d pages across %d channels\n", total, len(channels))
			return nil
		},
	}
}
