package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MaintenanceJob keeps the SQLite files healthy during quiet hours: integrity
// check, WAL truncation, and a VACUUM for databases that do not auto-vacuum.
type MaintenanceJob struct {
	dbs []*DB
	log zerolog.Logger
}

// NewMaintenanceJob creates the nightly maintenance job over the given
// databases
func NewMaintenanceJob(log zerolog.Logger, dbs ...*DB) *MaintenanceJob {
	return &MaintenanceJob{
		dbs: dbs,
		log: log.With().Str("component", "db_maintenance").Logger(),
	}
}

// Name implements scheduler.Job
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run checks and compacts each database in turn. The first failure aborts the
// pass so a corrupt file is reported before anything rewrites it.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, db := range j.dbs {
		if err := db.HealthCheck(ctx); err != nil {
			return err
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			return err
		}
		// Cache-profile databases run with auto_vacuum(FULL) and reclaim
		// space on their own.
		if db.Profile() != ProfileCache {
			if err := db.Vacuum(); err != nil {
				return err
			}
		}
		j.log.Debug().Str("database", db.Name()).Msg("Maintenance pass complete")
	}

	return nil
}
