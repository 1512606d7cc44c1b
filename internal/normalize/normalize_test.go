package normalize

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var stagingCols = []string{
	"bbl", "address", "zip_code", "bldg_class", "lot_area", "bldg_area",
	"res_area", "units_res", "units_total", "year_built", "assess_total",
	"latitude", "longitude",
}

func stagingRow(bbl string) []any {
	return []any{bbl, "1 Main St", "10001", "A1", 2000.0, 1800.0, 1500.0, 1, 1, 1920, 500000.0, (*float64)(nil), (*float64)(nil)}
}

func TestRun_DeduplicatesBBL(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(stagingCols).
		AddRow(stagingRow("1001230001")...).
		AddRow(stagingRow("1001230002")...).
		AddRow(stagingRow("1001230001")...) // duplicate: dropped in-process

	mock.ExpectQuery("SELECT bbl, address, zip_code").WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_prop_data_properties"}, propertyColumns).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("bbl"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	res, err := Run(context.Background(), mock)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Read)
	assert.Equal(t, int64(2), res.Written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_EmptyStaging(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT bbl, address, zip_code").
		WillReturnRows(pgxmock.NewRows(stagingCols))

	res, err := Run(context.Background(), mock)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Read)
	assert.Equal(t, int64(0), res.Written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_WriteErrorIsFatal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT bbl, address, zip_code").
		WillReturnRows(pgxmock.NewRows(stagingCols).AddRow(stagingRow("1001230001")...))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = Run(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write properties")
}

func TestPropertyType(t *testing.T) {
	assert.Equal(t, TypeSingleFamily, PropertyType("A1"))
	assert.Equal(t, TypeMultiFamily, PropertyType("B2"))
	assert.Equal(t, TypeCoop, PropertyType("C6"))
	assert.Equal(t, TypeMultiFamily, PropertyType("C1")) // C prefix, not a coop code
	assert.Equal(t, TypeCondo, PropertyType("R4"))
	assert.Equal(t, TypeVacantLand, PropertyType("V0"))
	assert.Equal(t, TypeIndustrial, PropertyType("U"))    // one-char codes still map
	assert.Equal(t, TypeSingleFamily, PropertyType(""))   // unmapped default
	assert.Equal(t, TypeSingleFamily, PropertyType("U9X")) // overlong junk is not a U-class
	assert.Equal(t, TypeSingleFamily, PropertyType("unknown"))
}

func TestDeriveSqft(t *testing.T) {
	assert.Equal(t, 1200.0, deriveSqft(1200, 2000))
	assert.Equal(t, 2000.0, deriveSqft(0, 2000))
	assert.Equal(t, 1500.0, deriveSqft(0, 0))
}

func TestDeriveBedsBaths(t *testing.T) {
	beds, baths := deriveBedsBaths(1)
	assert.Equal(t, 3, beds)
	assert.Equal(t, 2, baths)

	beds, baths = deriveBedsBaths(3)
	assert.Equal(t, 6, beds)
	assert.Equal(t, 3, baths)

	beds, baths = deriveBedsBaths(12)
	assert.Zero(t, beds)
	assert.Zero(t, baths)

	beds, baths = deriveBedsBaths(0)
	assert.Zero(t, beds)
	assert.Zero(t, baths)
}

func TestEstimateValue(t *testing.T) {
	assert.Equal(t, 1_500_000.0, estimateValue(500_000, 1000))
	assert.Equal(t, 50_000_000.0, estimateValue(100_000_000, 1000)) // capped
	assert.Equal(t, 400_000.0, estimateValue(0, 1000))              // sqft fallback
	assert.Equal(t, 10_000_000.0, estimateValue(0, 100_000))        // fallback capped
}

func TestPricePerSqft(t *testing.T) {
	assert.Equal(t, 500.0, pricePerSqft(1_000_000, 2000))
	assert.Equal(t, 400.0, pricePerSqft(1_000_000, 0)) // fixed fallback
}

func TestOpportunityScore_Range(t *testing.T) {
	for range 200 {
		s := opportunityScore()
		assert.GreaterOrEqual(t, s, 40.0)
		assert.Less(t, s, 95.0)
	}
}

func TestConfidenceLevel_Thresholds(t *testing.T) {
	assert.Equal(t, "High", ConfidenceLevel(70.01))
	assert.Equal(t, "Medium", ConfidenceLevel(70))
	assert.Equal(t, "Medium", ConfidenceLevel(50.01))
	assert.Equal(t, "Low", ConfidenceLevel(50))
	assert.Equal(t, "Low", ConfidenceLevel(12))
	assert.Equal(t, "High", ConfidenceLevel(94.9))
}

func TestCentroid(t *testing.T) {
	lon, lat := -73.99, 40.75
	data := centroid(&lon, &lat)
	require.NotNil(t, data)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, 4326, g.SRID())
	assert.Equal(t, []float64{-73.99, 40.75}, g.FlatCoords())

	assert.Nil(t, centroid(nil, &lat))
	assert.Nil(t, centroid(&lon, nil))
}
