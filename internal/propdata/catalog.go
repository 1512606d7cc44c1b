package propdata

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propsignal/propsync/internal/db"
)

// CatalogEntry is the bookkeeping row for one upstream source.
type CatalogEntry struct {
	Name          string     `json:"name" yaml:"name"`
	DisplayName   string     `json:"display_name" yaml:"display_name"`
	URL           string     `json:"url,omitempty" yaml:"url,omitempty"`
	RecordCount   int64      `json:"record_count" yaml:"record_count"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty" yaml:"last_refreshed,omitempty"`
}

// UpsertCatalog writes one catalog row per source keyed by name,
// refreshing record_count and last_refreshed for rows that already
// exist. The catalog is touched only at the end of a run.
func UpsertCatalog(ctx context.Context, pool db.Pool, entries []CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{e.Name, e.DisplayName, e.URL, e.RecordCount, e.LastRefreshed})
	}

	_, err := db.BulkInsert(ctx, pool, db.InsertConfig{
		Table:        "prop_data.data_sources",
		Columns:      []string{"name", "display_name", "url", "record_count", "last_refreshed"},
		ConflictKeys: []string{"name"},
		Update:       true,
	}, rows)
	if err != nil {
		return eris.Wrap(err, "catalog: upsert")
	}
	return nil
}

// ListCatalog returns all catalog entries in name order.
func ListCatalog(ctx context.Context, pool db.Pool) ([]CatalogEntry, error) {
	rows, err := pool.Query(ctx,
		`SELECT name, display_name, url, record_count, last_refreshed
		 FROM prop_data.data_sources ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list")
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		var url *string
		if err := rows.Scan(&e.Name, &e.DisplayName, &url, &e.RecordCount, &e.LastRefreshed); err != nil {
			return nil, eris.Wrap(err, "catalog: scan row")
		}
		if url != nil {
			e.URL = *url
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
