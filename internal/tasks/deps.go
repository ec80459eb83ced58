// Package tasks implements the archive's scheduled maintenance jobs.
package tasks

import (
	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/database"
	"github.com/edgard/slackarchive/internal/timeline"
)

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger zerolog.Logger
	Store  database.Store
	Engine *timeline.Engine
}
