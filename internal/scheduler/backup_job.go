package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vvolkov/rebalancer/internal/reliability"
)

// BackupJob archives and uploads the backup set (instrument catalog plus
// persisted etf_metrics snapshots) to R2 on a daily interval, then prunes
// archives past the retention window.
type BackupJob struct {
	log           zerolog.Logger
	service       *reliability.R2BackupService
	retentionDays int
}

// NewBackupJob builds a BackupJob.
func NewBackupJob(service *reliability.R2BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &BackupJob{
		log:           log.With().Str("job", "r2_backup").Logger(),
		service:       service,
		retentionDays: retentionDays,
	}
}

// Name returns the job name.
func (j *BackupJob) Name() string {
	return "r2_backup"
}

// Run creates and uploads one backup archive, then rotates out anything
// past the retention window.
func (j *BackupJob) Run() error {
	info, err := j.service.CreateBackup(context.Background())
	if err != nil {
		return fmt.Errorf("r2 backup failed: %w", err)
	}
	j.log.Info().Str("archive", info.Filename).Int64("size_bytes", info.SizeBytes).Msg("backup uploaded")

	if err := j.service.RotateOldBackups(context.Background(), j.retentionDays); err != nil {
		j.log.Error().Err(err).Msg("backup rotation failed")
	}
	return nil
}
