package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/bbl"
	"github.com/propsignal/propsync/internal/db"
	"github.com/propsignal/propsync/internal/socrata"
)

// Valuation ingests DOF assessment rolls into prop_data.staging_valuations.
type Valuation struct {
	url string
}

func (s *Valuation) Name() string        { return "dof_valuation" }
func (s *Valuation) DisplayName() string { return "DOF Property Valuation" }
func (s *Valuation) Table() string       { return "prop_data.staging_valuations" }
func (s *Valuation) URL() string         { return s.url }

var valuationColumns = []string{
	"bbl", "year", "market_value", "assessed_land", "assessed_total",
	"taxable_value", "exemption_value", "raw",
}

// Ingest implements Source.
func (s *Valuation) Ingest(ctx context.Context, pool db.Pool, f socrata.Fetcher, maxRecords int) (*Result, error) {
	log := zap.L().With(zap.String("source", s.Name()))

	records := f.FetchAll(ctx, s.url, socrata.Query{Order: "bble"}, maxRecords)
	log.Info("downloaded", zap.Int("records", len(records)))

	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		if i > 0 && i%progressEvery == 0 {
			log.Info("mapping records", zap.Int("processed", i))
		}

		id := rec.Str("bble")
		if !bbl.Valid(id) {
			id = bbl.Create(rec.Str("boro"), rec.Str("block"), rec.Str("lot"))
		}
		if !bbl.Valid(id) {
			continue
		}

		assessedTotal := rec.Float("avtot", 0)
		exemption := rec.Float("extot", 0)

		rows = append(rows, []any{
			id,
			rec.Int("year", 0),
			rec.Float("fullval", 0),
			rec.Float("avland", 0),
			assessedTotal,
			assessedTotal - exemption,
			exemption,
			rec.Raw(),
		})
	}

	written, outcomes := writeBatches(ctx, pool, "prop_data", "staging_valuations", valuationColumns, rows, log)
	log.Info("ingest complete",
		zap.Int("downloaded", len(records)),
		zap.Int64("written", written),
	)

	return &Result{Downloaded: int64(len(records)), Written: written, Batches: outcomes}, nil
}
