package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewBackupJob_DefaultsRetention(t *testing.T) {
	job := NewBackupJob(nil, 0, zerolog.Nop())
	assert.Equal(t, 30, job.retentionDays)
}

func TestBackupJob_Name(t *testing.T) {
	job := NewBackupJob(nil, 7, zerolog.Nop())
	assert.Equal(t, "r2_backup", job.Name())
}
