package alerting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/soc_log_server/internal/engine"
	"github.com/opensoc/soc_log_server/internal/repository"
	"github.com/opensoc/soc_log_server/internal/testutil"
)

func TestSink_CreateAlert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	alertRepo := repository.NewAlertRepository(db)
	sink := NewSink(alertRepo)

	req := &engine.AlertRequest{
		OrganizationID: 1,
		TargetID:       7,
		LogLineID:      42,
		LineNumber:     42,
		SourceSystem:   "ai_log_analysis",
		Severity:       "high",
		Title:          "brute_force detected at line 42",
		Description:    "repeated failed logins from one source",
		Confidence:     0.87,
	}

	alertID, err := sink.CreateAlert(context.Background(), req)
	require.NoError(t, err)
	require.NotZero(t, alertID)

	alert, err := alertRepo.GetByID(alertID)
	require.NoError(t, err)
	assert.NotEmpty(t, alert.Reference)
	assert.Equal(t, int64(7), alert.TargetID)
	assert.Equal(t, int64(42), alert.LogLineID)
	assert.Equal(t, "high", alert.Severity)
	assert.Equal(t, "open", alert.Status)
	assert.Equal(t, "brute_force detected at line 42", alert.Title)

	entries, err := alertRepo.ListTimeline(alertID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ai_analysis", entries[0].EntryType)
	assert.True(t, entries[0].AISourced)
	require.NotNil(t, entries[0].Confidence)
	assert.Equal(t, 0.87, *entries[0].Confidence)
	assert.Contains(t, entries[0].Message, "line 42")
}

func TestSink_UniqueReferencePerAlert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	sink := NewSink(repository.NewAlertRepository(db))

	first, err := sink.CreateAlert(context.Background(), &engine.AlertRequest{
		OrganizationID: 1, TargetID: 1, LogLineID: 1, LineNumber: 1,
		SourceSystem: "ai_log_analysis", Severity: "low", Title: "a",
	})
	require.NoError(t, err)
	second, err := sink.CreateAlert(context.Background(), &engine.AlertRequest{
		OrganizationID: 1, TargetID: 1, LogLineID: 2, LineNumber: 2,
		SourceSystem: "ai_log_analysis", Severity: "low", Title: "b",
	})
	require.NoError(t, err)

	alertRepo := repository.NewAlertRepository(db)
	a, err := alertRepo.GetByID(first)
	require.NoError(t, err)
	b, err := alertRepo.GetByID(second)
	require.NoError(t, err)
	assert.NotEqual(t, a.Reference, b.Reference)
}
