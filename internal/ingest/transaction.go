package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/bbl"
	"github.com/propsignal/propsync/internal/db"
	"github.com/propsignal/propsync/internal/socrata"
)

// Transaction ingests ACRIS recorded documents into
// prop_data.staging_transactions. The natural key is the ACRIS
// document id; BBL is attached when the record carries a lot reference.
type Transaction struct {
	url string
}

func (s *Transaction) Name() string        { return "acris" }
func (s *Transaction) DisplayName() string { return "ACRIS Real Property Master" }
func (s *Transaction) Table() string       { return "prop_data.staging_transactions" }
func (s *Transaction) URL() string         { return s.url }

var transactionColumns = []string{
	"document_id", "bbl", "doc_type", "doc_date", "doc_amount",
	"party_one", "party_two", "recorded_at", "raw",
}

// Ingest implements Source.
func (s *Transaction) Ingest(ctx context.Context, pool db.Pool, f socrata.Fetcher, maxRecords int) (*Result, error) {
	log := zap.L().With(zap.String("source", s.Name()))

	records := f.FetchAll(ctx, s.url, socrata.Query{Order: "document_id"}, maxRecords)
	log.Info("downloaded", zap.Int("records", len(records)))

	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		if i > 0 && i%progressEvery == 0 {
			log.Info("mapping records", zap.Int("processed", i))
		}

		docID := rec.Str("document_id")
		if docID == "" {
			continue
		}

		rows = append(rows, []any{
			docID,
			transactionBBL(rec),
			rec.Str("doc_type"),
			nullableDate(rec, "document_date"),
			rec.Float("document_amt", 0),
			rec.Str("party_one"),
			rec.Str("party_two"),
			nullableDate(rec, "recorded_datetime"),
			rec.Raw(),
		})
	}

	written, outcomes := writeBatches(ctx, pool, "prop_data", "staging_transactions", transactionColumns, rows, log)
	log.Info("ingest complete",
		zap.Int("downloaded", len(records)),
		zap.Int64("written", written),
	)

	return &Result{Downloaded: int64(len(records)), Written: written, Batches: outcomes}, nil
}

// transactionBBL derives a BBL from the document's lot reference, or
// SQL NULL when the document carries none.
func transactionBBL(rec socrata.Record) any {
	if rec.Str("block") == "" || rec.Str("lot") == "" {
		return nil
	}
	id := bbl.Create(rec.Str("borough"), rec.Str("block"), rec.Str("lot"))
	if !bbl.Valid(id) {
		return nil
	}
	return id
}

// nullableDate maps an absent or malformed timestamp to SQL NULL.
func nullableDate(rec socrata.Record, name string) any {
	t := rec.Time(name)
	if t.IsZero() {
		return nil
	}
	return t.Format(time.DateOnly)
}
