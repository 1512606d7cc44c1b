// Package pipeline orchestrates a full refresh: reset, per-source
// ingest, normalize, enrich, comparables, catalog. Each run is
// recorded in the run log with per-stage outcomes.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/comps"
	"github.com/propsignal/propsync/internal/db"
	"github.com/propsignal/propsync/internal/enrich"
	"github.com/propsignal/propsync/internal/ingest"
	"github.com/propsignal/propsync/internal/normalize"
	"github.com/propsignal/propsync/internal/propdata"
	"github.com/propsignal/propsync/internal/socrata"
)

// resetTables are truncated at the start of every run. Satellites hang
// off properties via ON DELETE CASCADE but are listed anyway so the
// reset does not depend on FK wiring.
var resetTables = []string{
	"prop_data.staging_parcels",
	"prop_data.staging_valuations",
	"prop_data.staging_transactions",
	"prop_data.staging_compliance",
	"prop_data.comparables",
	"prop_data.valuation_history",
	"prop_data.transaction_history",
	"prop_data.compliance_records",
	"prop_data.properties",
}

// Opts bounds a run. Limits are absolute download ceilings — a zero
// limit fetches nothing, so callers resolve defaults before building
// Opts (the CLI fills them from config). Sources narrows the run to a
// subset of registered sources.
type Opts struct {
	ParcelLimit      int
	ValuationLimit   int
	TransactionLimit int
	ComplianceLimit  int
	Sources          []string
}

// StageReport is one stage's outcome within a run.
type StageReport struct {
	Stage         string        `json:"stage"`
	RowsWritten   int64         `json:"rows_written"`
	BatchesOK     int           `json:"batches_ok"`
	BatchesFailed int           `json:"batches_failed"`
	Elapsed       time.Duration `json:"elapsed"`
}

// RunReport is the caller-facing summary of a completed run.
type RunReport struct {
	RunID     uuid.UUID     `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Stages    []StageReport `json:"stages"`
}

// Runner wires the stages to a shared pool, fetcher, and source
// registry. All run state lives in the per-call report, so a Runner is
// safe to reuse.
type Runner struct {
	pool     db.Pool
	fetcher  socrata.Fetcher
	registry *ingest.Registry
	runlog   *propdata.RunLog
}

// NewRunner builds a Runner.
func NewRunner(pool db.Pool, fetcher socrata.Fetcher, registry *ingest.Registry) *Runner {
	return &Runner{
		pool:     pool,
		fetcher:  fetcher,
		registry: registry,
		runlog:   propdata.NewRunLog(pool),
	}
}

// Run executes the full pipeline. Ingest tolerates failed batches;
// any downstream stage error aborts the run and marks it failed.
func (r *Runner) Run(ctx context.Context, opts Opts) (*RunReport, error) {
	report := &RunReport{RunID: uuid.New(), StartedAt: time.Now()}
	log := zap.L().With(zap.String("run_id", report.RunID.String()))
	log.Info("pipeline run starting")

	if err := r.runlog.Start(ctx, report.RunID); err != nil {
		return nil, err
	}

	if err := r.run(ctx, opts, report, log); err != nil {
		if failErr := r.runlog.Fail(ctx, report.RunID, err.Error()); failErr != nil {
			log.Warn("run log fail-mark failed", zap.Error(failErr))
		}
		report.Elapsed = time.Since(report.StartedAt)
		return report, err
	}

	if err := r.runlog.Complete(ctx, report.RunID); err != nil {
		return nil, err
	}
	report.Elapsed = time.Since(report.StartedAt)
	log.Info("pipeline run complete", zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

func (r *Runner) run(ctx context.Context, opts Opts, report *RunReport, log *zap.Logger) error {
	if err := db.Truncate(ctx, r.pool, resetTables...); err != nil {
		return err
	}

	catalog := make([]propdata.CatalogEntry, 0, 4)
	refreshed := time.Now()

	for _, src := range r.sources(opts) {
		start := time.Now()
		res, err := src.Ingest(ctx, r.pool, r.fetcher, r.limitFor(src.Name(), opts))
		if err != nil {
			return eris.Wrapf(err, "pipeline: ingest %s", src.Name())
		}
		r.recordStage(ctx, report, log, propdata.StageEntry{
			RunID:         report.RunID,
			Stage:         "ingest:" + src.Name(),
			RowsWritten:   res.Written,
			BatchesOK:     res.BatchesOK(),
			BatchesFailed: res.BatchesFailed(),
			Elapsed:       time.Since(start),
		})
		catalog = append(catalog, propdata.CatalogEntry{
			Name:          src.Name(),
			DisplayName:   src.DisplayName(),
			URL:           src.URL(),
			RecordCount:   res.Written,
			LastRefreshed: &refreshed,
		})
	}

	start := time.Now()
	normRes, err := normalize.Run(ctx, r.pool)
	if err != nil {
		return err
	}
	r.recordStage(ctx, report, log, propdata.StageEntry{
		RunID:       report.RunID,
		Stage:       "normalize",
		RowsWritten: normRes.Written,
		Elapsed:     time.Since(start),
	})

	start = time.Now()
	enrichRes, err := enrich.Run(ctx, r.pool)
	if err != nil {
		return err
	}
	r.recordStage(ctx, report, log, propdata.StageEntry{
		RunID:       report.RunID,
		Stage:       "enrich",
		RowsWritten: enrichRes.Linked(),
		Elapsed:     time.Since(start),
	})

	start = time.Now()
	compsRes, err := comps.Run(ctx, r.pool)
	if err != nil {
		return err
	}
	r.recordStage(ctx, report, log, propdata.StageEntry{
		RunID:       report.RunID,
		Stage:       "comparables",
		RowsWritten: compsRes.Written,
		Elapsed:     time.Since(start),
	})

	return propdata.UpsertCatalog(ctx, r.pool, catalog)
}

// sources resolves the run's source list, preserving registry order.
func (r *Runner) sources(opts Opts) []ingest.Source {
	if len(opts.Sources) == 0 {
		return r.registry.All()
	}
	wanted := make(map[string]bool, len(opts.Sources))
	for _, name := range opts.Sources {
		wanted[name] = true
	}
	var out []ingest.Source
	for _, src := range r.registry.All() {
		if wanted[src.Name()] {
			out = append(out, src)
		}
	}
	return out
}

func (r *Runner) limitFor(name string, opts Opts) int {
	switch name {
	case "pluto":
		return opts.ParcelLimit
	case "dof_valuation":
		return opts.ValuationLimit
	case "acris":
		return opts.TransactionLimit
	case "hpd_compliance":
		return opts.ComplianceLimit
	default:
		return 0
	}
}

// recordStage appends to the report and persists the stage row. A
// bookkeeping write failure is logged but does not abort the run.
func (r *Runner) recordStage(ctx context.Context, report *RunReport, log *zap.Logger, e propdata.StageEntry) {
	report.Stages = append(report.Stages, StageReport{
		Stage:         e.Stage,
		RowsWritten:   e.RowsWritten,
		BatchesOK:     e.BatchesOK,
		BatchesFailed: e.BatchesFailed,
		Elapsed:       e.Elapsed,
	})
	if err := r.runlog.RecordStage(ctx, e); err != nil {
		log.Warn("stage record failed", zap.String("stage", e.Stage), zap.Error(err))
	}
}
