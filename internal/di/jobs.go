package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/config"
	"github.com/aristath/factorlab/internal/modules/calculations"
	"github.com/aristath/factorlab/internal/reliability"
	"github.com/aristath/factorlab/internal/scheduler"
)

// Maintenance schedules (seconds field first)
const (
	cacheCleanupSchedule   = "0 0 * * * *"
	walCheckpointSchedule  = "0 */15 * * * *"
	integrityCheckSchedule = "0 30 2 * * *"
)

// RegisterJobs adds the batch and maintenance jobs to sched and returns them by name
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (map[string]scheduler.Job, error) {
	jobs := make(map[string]scheduler.Job)

	add := func(schedule string, job scheduler.Job) error {
		if err := sched.AddJob(schedule, job); err != nil {
			return fmt.Errorf("failed to register %s (%q): %w", job.Name(), schedule, err)
		}
		jobs[job.Name()] = job
		return nil
	}

	batch := scheduler.NewBatchJob(container.Store, container.Runner, cfg.Tickers, cfg.Windows, cfg.BatchTimeout, log)
	if err := add(cfg.Schedule, batch); err != nil {
		return nil, err
	}

	if container.Cache != nil {
		if err := add(cacheCleanupSchedule, calculations.NewCleanupJob(container.Cache, log)); err != nil {
			return nil, err
		}
	}

	dbs := container.Databases()
	if err := add(walCheckpointSchedule, scheduler.NewCheckWALCheckpointsJob(dbs, log)); err != nil {
		return nil, err
	}
	if err := add(integrityCheckSchedule, scheduler.NewCheckDatabasesJob(dbs, log)); err != nil {
		return nil, err
	}

	if container.Publisher != nil && cfg.S3.RetentionDays > 0 {
		rotation := reliability.NewRotationJob(container.Publisher, cfg.S3.RetentionDays, log)
		if err := add(cfg.S3.RotateSchedule, rotation); err != nil {
			return nil, err
		}
	}

	log.Info().Int("jobs", len(jobs)).Msg("Jobs registered")
	return jobs, nil
}
