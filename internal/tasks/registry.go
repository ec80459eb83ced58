package tasks

import "context"

// ScheduledTaskFunc is the signature of every scheduled task. Tasks must
// respect ctx cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// Task names, matching the keys of the scheduler.tasks config section.
const (
	RepaginateTaskName     = "repaginate"
	SQLMaintenanceTaskName = "sql_maintenance"
)

// RegisterAllTasks returns every task keyed by name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		RepaginateTaskName:     newRepaginateTask(deps),
		SQLMaintenanceTaskName: newSQLMaintenanceTask(deps),
	}

	deps.Logger.Info().Int("count", len(tasks)).Msg("Initialized scheduled tasks")
	return tasks
}
