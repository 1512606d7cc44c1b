package propdata

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/propsignal/propsync/internal/db"
)

// RunEntry is a row in prop_data.pipeline_runs.
type RunEntry struct {
	RunID       uuid.UUID  `json:"run_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// StageEntry is a row in prop_data.pipeline_run_stages: one per-stage
// outcome, including the per-batch success/failure tally.
type StageEntry struct {
	RunID         uuid.UUID     `json:"run_id"`
	Stage         string        `json:"stage"`
	RowsWritten   int64         `json:"rows_written"`
	BatchesOK     int           `json:"batches_ok"`
	BatchesFailed int           `json:"batches_failed"`
	Elapsed       time.Duration `json:"elapsed"`
	Error         string        `json:"error,omitempty"`
}

// RunLog records pipeline runs and their per-stage outcomes.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a pipeline run.
func (l *RunLog) Start(ctx context.Context, runID uuid.UUID) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO prop_data.pipeline_runs (run_id, status, started_at)
		 VALUES ($1, 'running', now())`,
		runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: start run %s", runID)
	}
	return nil
}

// RecordStage persists one stage outcome for a run.
func (l *RunLog) RecordStage(ctx context.Context, s StageEntry) error {
	var errMsg *string
	if s.Error != "" {
		errMsg = &s.Error
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO prop_data.pipeline_run_stages
		 (run_id, stage, rows_written, batches_ok, batches_failed, elapsed_ms, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id, stage) DO UPDATE SET
		   rows_written = EXCLUDED.rows_written,
		   batches_ok = EXCLUDED.batches_ok,
		   batches_failed = EXCLUDED.batches_failed,
		   elapsed_ms = EXCLUDED.elapsed_ms,
		   error = EXCLUDED.error`,
		s.RunID, s.Stage, s.RowsWritten, s.BatchesOK, s.BatchesFailed, s.Elapsed.Milliseconds(), errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: record stage %s for run %s", s.Stage, s.RunID)
	}
	return nil
}

// Complete marks a run as successfully finished.
func (l *RunLog) Complete(ctx context.Context, runID uuid.UUID) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE prop_data.pipeline_runs
		 SET status = 'complete', completed_at = now()
		 WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (l *RunLog) Fail(ctx context.Context, runID uuid.UUID, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE prop_data.pipeline_runs
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE run_id = $2`,
		errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// Recent returns the latest runs, most recent first.
func (l *RunLog) Recent(ctx context.Context, limit int) ([]RunEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT run_id, status, started_at, completed_at, error
		 FROM prop_data.pipeline_runs
		 ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent runs")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var errStr *string
		if err := rows.Scan(&e.RunID, &e.Status, &e.StartedAt, &e.CompletedAt, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run row")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stages returns the per-stage outcomes recorded for a run.
func (l *RunLog) Stages(ctx context.Context, runID uuid.UUID) ([]StageEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT stage, rows_written, batches_ok, batches_failed, elapsed_ms, error
		 FROM prop_data.pipeline_run_stages
		 WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: list stages for run %s", runID)
	}
	defer rows.Close()

	var entries []StageEntry
	for rows.Next() {
		e := StageEntry{RunID: runID}
		var elapsedMS int64
		var errStr *string
		if err := rows.Scan(&e.Stage, &e.RowsWritten, &e.BatchesOK, &e.BatchesFailed, &elapsedMS, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan stage row")
		}
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
