// Package normalize transforms parcel staging rows into canonical
// property entities: one row per BBL, first write wins.
package normalize

import (
	"context"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/bbl"
	"github.com/propsignal/propsync/internal/db"
)

const (
	batchSize = 500

	// Heuristic constants for size/value derivation.
	defaultSqft       = 1500.0
	defaultPriceSqft  = 400.0
	assessMultiple    = 3.0
	assessValueCap    = 50_000_000.0
	sqftValueCap      = 10_000_000.0
)

var propertyColumns = []string{
	"id", "bbl", "address", "borough", "county", "zip_code",
	"latitude", "longitude", "centroid", "property_type", "bldg_class",
	"sqft", "beds", "baths", "units", "year_built", "lot_area",
	"estimated_value", "price_per_sqft", "opportunity_score", "confidence_level",
}

// Result summarizes a normalization pass.
type Result struct {
	Read    int64 `json:"read"`
	Written int64 `json:"written"`
}

// parcelRow is one staging_parcels row as read by the normalizer.
type parcelRow struct {
	BBL         string
	Address     string
	ZipCode     string
	BldgClass   string
	LotArea     float64
	BldgArea    float64
	ResArea     float64
	UnitsRes    int
	UnitsTotal  int
	YearBuilt   int
	AssessTotal float64
	Latitude    *float64
	Longitude   *float64
}

// Run reads all parcel staging rows and writes canonical properties in
// batches. Duplicate BBLs are dropped in-process and, as a backstop,
// by ON CONFLICT DO NOTHING on the bbl unique constraint. Any write
// error here is fatal to the pipeline run.
func Run(ctx context.Context, pool db.Pool) (*Result, error) {
	log := zap.L().With(zap.String("component", "normalize"))

	rows, err := pool.Query(ctx,
		`SELECT bbl, address, zip_code, bldg_class, lot_area, bldg_area, res_area,
		        units_res, units_total, year_built, assess_total, latitude, longitude
		 FROM prop_data.staging_parcels ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "normalize: query staging parcels")
	}
	defer rows.Close()

	res := &Result{}
	seen := make(map[string]bool)
	batch := make([][]any, 0, batchSize)

	flush := func() error {
		n, err := db.BulkInsert(ctx, pool, db.InsertConfig{
			Table:        "prop_data.properties",
			Columns:      propertyColumns,
			ConflictKeys: []string{"bbl"},
		}, batch)
		if err != nil {
			return eris.Wrap(err, "normalize: write properties")
		}
		res.Written += n
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		var p parcelRow
		if err := rows.Scan(
			&p.BBL, &p.Address, &p.ZipCode, &p.BldgClass, &p.LotArea, &p.BldgArea,
			&p.ResArea, &p.UnitsRes, &p.UnitsTotal, &p.YearBuilt, &p.AssessTotal,
			&p.Latitude, &p.Longitude,
		); err != nil {
			return nil, eris.Wrap(err, "normalize: scan staging row")
		}
		res.Read++

		if seen[p.BBL] {
			continue
		}
		seen[p.BBL] = true

		batch = append(batch, propertyValues(p))
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "normalize: iterate staging rows")
	}

	if len(batch) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}

	log.Info("normalize complete", zap.Int64("read", res.Read), zap.Int64("written", res.Written))
	return res, nil
}

// propertyValues derives the canonical column values for one parcel.
func propertyValues(p parcelRow) []any {
	boroughCode := bbl.Borough(p.BBL)
	sqft := deriveSqft(p.ResArea, p.BldgArea)
	beds, baths := deriveBedsBaths(p.UnitsRes)
	value := estimateValue(p.AssessTotal, sqft)
	score := opportunityScore()

	return []any{
		uuid.New(),
		p.BBL,
		p.Address,
		bbl.BoroughName(boroughCode),
		bbl.CountyName(boroughCode),
		p.ZipCode,
		p.Latitude,
		p.Longitude,
		centroid(p.Longitude, p.Latitude),
		PropertyType(p.BldgClass),
		p.BldgClass,
		sqft,
		beds,
		baths,
		p.UnitsTotal,
		p.YearBuilt,
		p.LotArea,
		value,
		pricePerSqft(value, sqft),
		score,
		ConfidenceLevel(score),
	}
}

// deriveSqft prefers residential area, then total building area, then
// the fixed default.
func deriveSqft(resArea, bldgArea float64) float64 {
	if resArea > 0 {
		return resArea
	}
	if bldgArea > 0 {
		return bldgArea
	}
	return defaultSqft
}

// deriveBedsBaths bands residential unit counts into bed/bath
// estimates. Over four units the per-unit layout is unknowable from
// lot data, so both stay zero.
func deriveBedsBaths(unitsRes int) (int, int) {
	switch {
	case unitsRes == 1:
		return 3, 2
	case unitsRes >= 2 && unitsRes <= 4:
		return unitsRes * 2, unitsRes
	default:
		return 0, 0
	}
}

// estimateValue triples the assessed value when one exists (NYC
// assessments run well below market), otherwise falls back to a
// per-square-foot estimate. Both paths are capped.
func estimateValue(assessTotal, sqft float64) float64 {
	if assessTotal > 0 {
		return min(assessTotal*assessMultiple, assessValueCap)
	}
	return min(sqft*defaultPriceSqft, sqftValueCap)
}

func pricePerSqft(value, sqft float64) float64 {
	if sqft <= 0 {
		return defaultPriceSqft
	}
	return value / sqft
}

// opportunityScore is a bounded-random placeholder in [40, 95). The
// real mispricing model is undecided; only the range and the
// confidence thresholds below are contractual.
func opportunityScore() float64 {
	return 40 + rand.Float64()*55
}

// ConfidenceLevel buckets an opportunity score.
func ConfidenceLevel(score float64) string {
	switch {
	case score > 70:
		return "High"
	case score > 50:
		return "Medium"
	default:
		return "Low"
	}
}

// centroid encodes a lon/lat pair as an EWKB point (SRID 4326), or nil
// when either coordinate is missing.
func centroid(lon, lat *float64) []byte {
	if lon == nil || lat == nil {
		return nil
	}
	pt := geom.NewPointFlat(geom.XY, []float64{*lon, *lat}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil
	}
	return data
}
