// Package scheduler runs the engine's background maintenance jobs on cron
// schedules.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of background work. Run is invoked on the job's schedule and
// its error is logged, not propagated; a failing job runs again next tick.
type Job interface {
	Run() error
	Name() string
}

// Scheduler wraps a seconds-resolution cron runner
type Scheduler struct {
	cron *cron.Cron
	jobs []string
	log  zerolog.Logger
}

// New creates an empty scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers a job on a six-field cron spec (e.g. "0 0 3 * * *" for
// 03:00 daily)
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Dur("duration_ms", time.Since(started)).
				Msg("Job failed")
			return
		}
		s.log.Debug().
			Str("job", job.Name()).
			Dur("duration_ms", time.Since(started)).
			Msg("Job completed")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, job.Name(), err)
	}

	s.jobs = append(s.jobs, job.Name())
	s.log.Info().Str("schedule", spec).Str("job", job.Name()).Msg("Job registered")
	return nil
}

// Jobs returns the names of all registered jobs
func (s *Scheduler) Jobs() []string {
	out := make([]string, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start begins dispatching jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("num_jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop halts dispatch and waits for any running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}
