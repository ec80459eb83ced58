package tasks

import (
	"context"
	"fmt"
	"time"
)

func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With().Str("task", SQLMaintenanceTaskName).Logger()

	return func(ctx context.Context) error {
		log.Info().Msg("Starting SQL maintenance")
		start := time.Now()

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.Error().Err(err).Dur("duration", time.Since(start)).Msg("SQL maintenance failed")
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.Info().Dur("duration", time.Since(start)).Msg("SQL maintenance completed")
		return nil
	}
}
