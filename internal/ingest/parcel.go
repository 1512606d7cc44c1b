package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/bbl"
	"github.com/propsignal/propsync/internal/db"
	"github.com/propsignal/propsync/internal/socrata"
)

// Parcel ingests the primary land-use source (PLUTO) into
// prop_data.staging_parcels.
type Parcel struct {
	url string
}

func (s *Parcel) Name() string        { return "pluto" }
func (s *Parcel) DisplayName() string { return "NYC PLUTO Tax Lots" }
func (s *Parcel) Table() string       { return "prop_data.staging_parcels" }
func (s *Parcel) URL() string         { return s.url }

var parcelColumns = []string{
	"bbl", "borough", "block", "lot", "address", "zip_code",
	"bldg_class", "land_use", "lot_area", "bldg_area", "res_area",
	"num_floors", "units_res", "units_total", "year_built",
	"assess_land", "assess_total", "latitude", "longitude", "raw",
}

// Ingest implements Source.
func (s *Parcel) Ingest(ctx context.Context, pool db.Pool, f socrata.Fetcher, maxRecords int) (*Result, error) {
	log := zap.L().With(zap.String("source", s.Name()))

	records := f.FetchAll(ctx, s.url, socrata.Query{Order: "bbl"}, maxRecords)
	log.Info("downloaded", zap.Int("records", len(records)))

	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		if i > 0 && i%progressEvery == 0 {
			log.Info("mapping records", zap.Int("processed", i))
		}

		id := parcelBBL(rec)
		if !bbl.Valid(id) {
			continue
		}

		rows = append(rows, []any{
			id,
			rec.Str("borough"),
			rec.Str("block"),
			rec.Str("lot"),
			rec.Str("address"),
			rec.Str("zipcode"),
			rec.Str("bldgclass"),
			rec.Str("landuse"),
			rec.Float("lotarea", 0),
			rec.Float("bldgarea", 0),
			rec.Float("resarea", 0),
			rec.Float("numfloors", 0),
			rec.Int("unitsres", 0),
			rec.Int("unitstotal", 0),
			rec.Int("yearbuilt", 0),
			rec.Float("assessland", 0),
			rec.Float("assesstot", 0),
			nullableFloat(rec, "latitude"),
			nullableFloat(rec, "longitude"),
			rec.Raw(),
		})
	}

	written, outcomes := writeBatches(ctx, pool, "prop_data", "staging_parcels", parcelColumns, rows, log)
	log.Info("ingest complete",
		zap.Int("downloaded", len(records)),
		zap.Int64("written", written),
	)

	return &Result{Downloaded: int64(len(records)), Written: written, Batches: outcomes}, nil
}

// parcelBBL returns the record's own BBL when present, otherwise
// derives one from the borough/block/lot triple.
func parcelBBL(rec socrata.Record) string {
	if id := rec.Str("bbl"); bbl.Valid(id) {
		return id
	}
	return bbl.Create(rec.Str("borough"), rec.Str("block"), rec.Str("lot"))
}

// nullableFloat maps an absent numeric field to SQL NULL instead of zero.
func nullableFloat(rec socrata.Record, name string) any {
	if rec.Str(name) == "" {
		return nil
	}
	return rec.Float(name, 0)
}
