package propdata

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertCatalog_Empty(t *testing.T) {
	assert.NoError(t, UpsertCatalog(context.TODO(), nil, nil))
}

func TestUpsertCatalog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_prop_data_data_sources"},
		[]string{"name", "display_name", "url", "record_count", "last_refreshed"}).
		WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("name"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	now := time.Now()
	err = UpsertCatalog(context.Background(), mock, []CatalogEntry{
		{Name: "pluto", DisplayName: "NYC PLUTO", URL: "https://data.cityofnewyork.us/resource/64uk-42ks.json", RecordCount: 857000, LastRefreshed: &now},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCatalog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT name, display_name, url, record_count, last_refreshed").
		WillReturnRows(pgxmock.NewRows([]string{"name", "display_name", "url", "record_count", "last_refreshed"}).
			AddRow("acris", "ACRIS Real Property Master", (*string)(nil), int64(12000), &now).
			AddRow("pluto", "NYC PLUTO", strPtr("https://example.test"), int64(857000), (*time.Time)(nil)))

	entries, err := ListCatalog(context.Background(), mock)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "acris", entries[0].Name)
	assert.Empty(t, entries[0].URL)
	assert.Equal(t, int64(857000), entries[1].RecordCount)
	assert.Equal(t, "https://example.test", entries[1].URL)
	assert.Nil(t, entries[1].LastRefreshed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }
