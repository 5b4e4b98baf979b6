// Package scheduler runs the recurring analysis and maintenance jobs on
// cron schedules.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of recurring background work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a new scheduler. Schedules use six fields with seconds first.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule, e.g. "0 0 3 * * *" for
// 3 AM daily or "@every 1h". Every run is timed and logged under the
// job's name.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	jobLog := s.log.With().Str("job", job.Name()).Logger()
	_, err := s.cron.AddFunc(schedule, func() {
		runLogged(jobLog, job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	jobLog := s.log.With().Str("job", job.Name()).Logger()
	jobLog.Info().Msg("Running job immediately")

	start := time.Now()
	if err := job.Run(); err != nil {
		jobLog.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Job failed")
		return err
	}
	jobLog.Info().Dur("elapsed", time.Since(start)).Msg("Job completed")
	return nil
}

func runLogged(jobLog zerolog.Logger, job Job) {
	start := time.Now()
	jobLog.Debug().Msg("Running job")

	if err := job.Run(); err != nil {
		jobLog.Error().
			Err(err).
			Dur("elapsed", time.Since(start)).
			Msg("Job failed")
		return
	}
	jobLog.Info().Dur("elapsed", time.Since(start)).Msg("Job completed")
}
