package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/config"
	"github.com/edgard/slackarchive/internal/logger"
	"github.com/edgard/slackarchive/internal/tasks"
)

// Scheduler runs the configured tasks on their cron schedules.
type Scheduler struct {
	scheduler gocron.Scheduler
	log       zerolog.Logger
	cfg       config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler for taskMap configured by cfg.
func NewScheduler(log zerolog.Logger, cfg config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	log = logger.Component(log, "scheduler")

	s, err := gocron.NewScheduler(gocron.WithLogger(logger.NewGocronLogger(log)))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		log:       log,
		cfg:       cfg,
		taskMap:   taskMap,
	}, nil
}

// Start registers every enabled task and starts ticking. Tasks share ctx,
// so cancelling it aborts running jobs. A task that cannot be scheduled is
// logged and skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	scheduled := 0
	for name, taskCfg := range s.cfg.Tasks {
		if !taskCfg.Enabled {
			s.log.Info().Str("task_name", name).Msg("Skipping disabled task")
			continue
		}
		taskFunc, ok := s.taskMap[name]
		if !ok {
			s.log.Warn().Str("task_name", name).Msg("Scheduled task configured but not registered, skipping")
			continue
		}
		if taskCfg.Schedule == "" {
			s.log.Warn().Str("task_name", name).Msg("Scheduled task enabled but has empty schedule, skipping")
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(taskCfg.Schedule, true),
			gocron.NewTask(s.run, ctx, name, taskFunc),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.log.Error().Err(err).Str("task_name", name).Str("schedule", taskCfg.Schedule).Msg("Failed to schedule task")
			continue
		}

		s.log.Info().Str("task_name", name).Str("schedule", taskCfg.Schedule).Msg("Scheduled task")
		scheduled++
	}

	s.scheduler.Start()
	s.running = true
	s.log.Info().Int("tasks_scheduled", scheduled).Msg("Scheduler started")
	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, fn tasks.ScheduledTaskFunc) {
	start := time.Now()
	s.log.Debug().Str("task_name", name).Msg("Running scheduled task")
	if err := fn(ctx); err != nil {
		s.log.Error().Err(err).Str("task_name", name).Msg("Scheduled task failed")
	}
	s.log.Debug().Str("task_name", name).Dur("duration", time.Since(start)).Msg("Finished scheduled task")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.scheduler.Shutdown(); err != nil {
		s.log.Error().Err(err).Msg("Error during scheduler shutdown")
		return fmt.Errorf("scheduler shutdown failed: %w", err)
	}
	s.log.Info().Msg("Scheduler stopped")
	return nil
}
