package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/opensoc/soc_log_server/internal/model"
	"github.com/opensoc/soc_log_server/internal/testutil"
)

func TestJobRepository_ClaimQueuedJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusQueued)

	claimed, err := repo.Claim(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, claimed.Status)
	assert.Equal(t, job.Version+1, claimed.Version)
	assert.NotNil(t, claimed.StartTime, "first claim sets start_time")
}

func TestJobRepository_ClaimPausedJobKeepsStartTime(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusPaused)
	require.NotNil(t, job.StartTime)
	original := *job.StartTime

	claimed, err := repo.Claim(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, claimed.Status)
	require.NotNil(t, claimed.StartTime)
	assert.WithinDuration(t, original, *claimed.StartTime, time.Second)
}

func TestJobRepository_ClaimConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusQueued)

	_, err := repo.Claim(job.ID)
	require.NoError(t, err)

	// Second claim loses the CAS
	_, err = repo.Claim(job.ID)
	assert.ErrorIs(t, err, ErrClaimConflict)

	// Terminal jobs cannot be claimed either
	done := testutil.TestJob(t, db, file.ID, model.JobStatusCompleted)
	_, err = repo.Claim(done.ID)
	assert.ErrorIs(t, err, ErrClaimConflict)
}

func TestJobRepository_GetActiveByTarget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	testutil.TestJob(t, db, file.ID, model.JobStatusCompleted)
	testutil.TestJob(t, db, file.ID, model.JobStatusCancelled)

	_, err := repo.GetActiveByTarget(file.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	active := testutil.TestJob(t, db, file.ID, model.JobStatusPaused)
	found, err := repo.GetActiveByTarget(file.ID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)
}

func TestJobRepository_Requeue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusPaused)
	require.NoError(t, repo.SetPauseRequested(job.ID, true))

	require.NoError(t, repo.Requeue(job.ID))

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, found.Status)
	assert.False(t, found.PauseRequested, "requeue clears the stale pause flag")

	// Only paused jobs can be requeued
	running := testutil.TestJob(t, db, file.ID, model.JobStatusRunning)
	err = repo.Requeue(running.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestJobRepository_PersistBatchCheckpoint(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusRunning,
		testutil.WithCheckpoint(2, 50))

	cp := BatchCheckpoint{LinesProcessed: 25, IssuesFound: 3, AlertsCreated: 2}
	require.NoError(t, repo.PersistBatchCheckpoint(job.ID, cp))

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.CurrentBatch)
	assert.Equal(t, int64(75), found.LinesProcessed)
	assert.Equal(t, 3, found.IssuesFound)
	assert.Equal(t, 2, found.AlertsCreated)
	assert.Equal(t, job.Version+1, found.Version)
}

func TestJobRepository_CheckpointRejectedAfterStatusChange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusPaused)

	err := repo.PersistBatchCheckpoint(job.ID, BatchCheckpoint{LinesProcessed: 10})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestJobRepository_MarkTerminal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusRunning)

	require.NoError(t, repo.MarkTerminal(job.ID, model.JobStatusError, "classifier unavailable"))

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, found.Status)
	assert.Equal(t, "classifier unavailable", found.ErrorMessage)
	assert.NotNil(t, found.EndTime)

	// Already terminal, must not change again
	err = repo.MarkTerminal(job.ID, model.JobStatusCompleted, "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestJobRepository_MarkTerminalPausedLeavesEndTimeEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusRunning)

	require.NoError(t, repo.MarkTerminal(job.ID, model.JobStatusPaused, ""))

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, found.Status)
	assert.Nil(t, found.EndTime)
}

func TestJobRepository_ControlFlags(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	job := testutil.TestJob(t, db, file.ID, model.JobStatusRunning)

	require.NoError(t, repo.SetPauseRequested(job.ID, true))
	require.NoError(t, repo.SetCancelRequested(job.ID))

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.True(t, found.PauseRequested)
	assert.True(t, found.CancelRequested)

	require.NoError(t, repo.ClearControlFlags(job.ID))
	found, err = repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.False(t, found.PauseRequested)
	assert.False(t, found.CancelRequested)
}

func TestJobRepository_DeleteTerminalBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)

	old := testutil.TestJob(t, db, file.ID, model.JobStatusCompleted)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(old).Update("end_time", past).Error)

	recent := testutil.TestJob(t, db, file.ID, model.JobStatusCompleted)
	require.NoError(t, db.Model(recent).Update("end_time", time.Now()).Error)

	active := testutil.TestJob(t, db, file.ID, model.JobStatusRunning)

	deleted, err := repo.DeleteTerminalBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByID(old.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetByID(recent.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(active.ID)
	assert.NoError(t, err)
}

func TestJobRepository_ListStaleRunning(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	stale := testutil.TestJob(t, db, file.ID, model.JobStatusRunning)
	require.NoError(t, db.Model(stale).
		UpdateColumn("updated_at", time.Now().Add(-12*time.Hour)).Error)

	testutil.TestJob(t, db, file.ID, model.JobStatusRunning)
	testutil.TestJob(t, db, file.ID, model.JobStatusQueued)

	found, err := repo.ListStaleRunning(time.Now().Add(-6 * time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)
}

func TestJobRepository_CountQueued(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	testutil.TestJob(t, db, file.ID, model.JobStatusQueued)
	testutil.TestJob(t, db, file.ID, model.JobStatusQueued)
	testutil.TestJob(t, db, file.ID, model.JobStatusRunning)

	count, err := repo.CountQueued()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestJobRepository_ListByTarget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	repo := NewJobRepository(db)

	file := testutil.TestLogFile(t, db)
	other := testutil.TestLogFile(t, db)

	for i := 0; i < 3; i++ {
		testutil.TestJob(t, db, file.ID, model.JobStatusCompleted)
	}
	testutil.TestJob(t, db, other.ID, model.JobStatusQueued)

	jobs, err := repo.ListByTarget(file.ID, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	jobs, err = repo.ListByTarget(file.ID, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
