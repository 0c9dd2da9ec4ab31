package analysis

import (
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob purges stored results older than the retention window. It is
// registered with the scheduler and runs unattended.
type CleanupJob struct {
	repo          *Repository
	retentionDays int
	log           zerolog.Logger
}

// NewCleanupJob creates the retention job
func NewCleanupJob(repo *Repository, retentionDays int, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:          repo,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "analysis_cleanup").Logger(),
	}
}

// Name identifies the job in scheduler logs
func (j *CleanupJob) Name() string {
	return "analysis_cleanup"
}

// Run deletes expired records. Retention of 0 disables the purge.
func (j *CleanupJob) Run() error {
	if j.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)
	deleted, err := j.repo.DeleteOlderThan(cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Purged expired analysis results")
	}
	return nil
}
