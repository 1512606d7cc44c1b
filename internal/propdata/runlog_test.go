package propdata

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLog_Lifecycle(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	log := NewRunLog(mock)

	mock.ExpectExec("INSERT INTO prop_data.pipeline_runs").
		WithArgs(runID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO prop_data.pipeline_run_stages").
		WithArgs(runID, "ingest.parcel", int64(500), 1, 0, int64(1200), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE prop_data.pipeline_runs").
		WithArgs(runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, log.Start(context.Background(), runID))
	require.NoError(t, log.RecordStage(context.Background(), StageEntry{
		RunID:       runID,
		Stage:       "ingest.parcel",
		RowsWritten: 500,
		BatchesOK:   1,
		Elapsed:     1200 * time.Millisecond,
	}))
	require.NoError(t, log.Complete(context.Background(), runID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_Fail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	log := NewRunLog(mock)

	mock.ExpectExec("UPDATE prop_data.pipeline_runs").
		WithArgs("normalize: boom", runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, log.Fail(context.Background(), runID, "normalize: boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_Recent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	started := time.Now().Add(-time.Hour)
	completed := time.Now()

	mock.ExpectQuery("SELECT run_id, status, started_at").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "status", "started_at", "completed_at", "error"}).
			AddRow(runID, "complete", started, &completed, (*string)(nil)))

	log := NewRunLog(mock)
	runs, err := log.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)
	assert.Equal(t, "complete", runs[0].Status)
	assert.Empty(t, runs[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_Stages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()

	mock.ExpectQuery("SELECT stage, rows_written").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{"stage", "rows_written", "batches_ok", "batches_failed", "elapsed_ms", "error"}).
			AddRow("ingest.parcel", int64(900), 2, 0, int64(350), (*string)(nil)).
			AddRow("normalize", int64(850), 2, 1, int64(90), (*string)(nil)))

	log := NewRunLog(mock)
	stages, err := log.Stages(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "ingest.parcel", stages[0].Stage)
	assert.Equal(t, int64(900), stages[0].RowsWritten)
	assert.Equal(t, 350*time.Millisecond, stages[0].Elapsed)
	assert.Equal(t, 1, stages[1].BatchesFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
