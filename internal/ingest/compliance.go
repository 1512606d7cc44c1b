package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/bbl"
	"github.com/propsignal/propsync/internal/db"
	"github.com/propsignal/propsync/internal/socrata"
)

// Compliance ingests HPD building compliance summaries into
// prop_data.staging_compliance.
type Compliance struct {
	url string
}

func (s *Compliance) Name() string        { return "hpd_compliance" }
func (s *Compliance) DisplayName() string { return "HPD Building Compliance" }
func (s *Compliance) Table() string       { return "prop_data.staging_compliance" }
func (s *Compliance) URL() string         { return s.url }

var complianceColumns = []string{
	"bbl", "building_id", "open_violations", "total_violations",
	"last_inspection", "raw",
}

// Ingest implements Source.
func (s *Compliance) Ingest(ctx context.Context, pool db.Pool, f socrata.Fetcher, maxRecords int) (*Result, error) {
	log := zap.L().With(zap.String("source", s.Name()))

	records := f.FetchAll(ctx, s.url, socrata.Query{Order: "buildingid"}, maxRecords)
	log.Info("downloaded", zap.Int("records", len(records)))

	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		if i > 0 && i%progressEvery == 0 {
			log.Info("mapping records", zap.Int("processed", i))
		}

		id := rec.Str("bbl")
		if !bbl.Valid(id) {
			id = bbl.Create(rec.Str("boroid"), rec.Str("block"), rec.Str("lot"))
		}
		if !bbl.Valid(id) {
			continue
		}

		rows = append(rows, []any{
			id,
			rec.Str("buildingid"),
			rec.Int("openviolations", 0),
			rec.Int("totalviolations", 0),
			nullableDate(rec, "lastinspectiondate"),
			rec.Raw(),
		})
	}

	written, outcomes := writeBatches(ctx, pool, "prop_data", "staging_compliance", complianceColumns, rows, log)
	log.Info("ingest complete",
		zap.Int("downloaded", len(records)),
		zap.Int64("written", written),
	)

	return &Result{Downloaded: int64(len(records)), Written: written, Batches: outcomes}, nil
}
