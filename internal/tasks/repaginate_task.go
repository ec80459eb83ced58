package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// newRepaginateTask runs AdvanceAll over every known channel, closing any
// page left full by an interrupted import or a failed live advance.
func newRepaginateTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With().Str("task", RepaginateTaskName).Logger()

	return func(ctx context.Context) error {
		start := time.Now()

		channels, err := deps.Store.ListChannelIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list channels: %w", err)
		}

		var (
			closed int
			errs   []error
		)
		for _, ch := range channels {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := deps.Engine.AdvanceAll(ctx, ch)
			closed += n
			if err != nil {
				log.Error().Err(err).Str("channel", ch).Msg("Failed to repaginate channel")
				errs = append(errs, fmt.Errorf("channel %s: %w", ch, err))
			}
		}

		ev := log.Debug()
		if closed > 0 {
			ev = log.Info()
		}
		ev.Int("channels", len(channels)).
			Int("pages_closed", closed).
			Dur("duration", time.Since(start)).
			Msg("Repagination finished")

		return errors.Join(errs...)
	}
}
