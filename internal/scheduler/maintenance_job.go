package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/modules/calculations"
	"github.com/quantfolio/quantfolio/internal/modules/runs"
)

// MaintenanceJob prunes old runs and cache entries and checkpoints the WAL
// files so the databases stay compact.
type MaintenanceJob struct {
	runs          *runs.Repository
	cache         *calculations.Cache
	databases     []*database.DB
	retentionDays int
	log           zerolog.Logger
}

// NewMaintenanceJob creates a database maintenance job.
func NewMaintenanceJob(
	runsRepo *runs.Repository,
	cache *calculations.Cache,
	databases []*database.DB,
	retentionDays int,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		runs:          runsRepo,
		cache:         cache,
		databases:     databases,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance pass.
func (j *MaintenanceJob) Run() error {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	runsPurged, err := j.runs.PurgeOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge runs: %w", err)
	}
	cachePurged, err := j.cache.PurgeOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}

	for _, db := range j.databases {
		if err := db.WALCheckpoint(""); err != nil {
			j.log.Warn().Err(err).Str("db", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	j.log.Info().
		Int64("runs_purged", runsPurged).
		Int64("cache_purged", cachePurged).
		Time("cutoff", cutoff).
		Msg("Maintenance completed")

	return nil
}
