// Package ingest maps source-shaped Socrata records into the prop_data
// staging tables. One ingestor per upstream source; each filters rows
// lacking a usable natural key, batches writes, and tolerates per-batch
// failures.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/db"
	"github.com/propsignal/propsync/internal/socrata"
)

const (
	// batchSize is the fixed COPY batch. A failed batch loses at most
	// this many rows.
	batchSize = 500

	// progressEvery controls coarse progress logging.
	progressEvery = 10000
)

// BatchOutcome records the fate of one write batch.
type BatchOutcome struct {
	Index int    `json:"index"`
	Rows  int    `json:"rows"`
	Err   string `json:"err,omitempty"`
}

// Failed reports whether the batch was rejected.
func (b BatchOutcome) Failed() bool { return b.Err != "" }

// Result summarizes one source's ingestion: how many records came off
// the wire, how many survived filtering and batch writes, and the
// per-batch outcomes.
type Result struct {
	Downloaded int64          `json:"downloaded"`
	Written    int64          `json:"written"`
	Batches    []BatchOutcome `json:"batches"`
}

// BatchesOK returns the count of successful batches.
func (r *Result) BatchesOK() int {
	n := 0
	for _, b := range r.Batches {
		if !b.Failed() {
			n++
		}
	}
	return n
}

// BatchesFailed returns the count of rejected batches.
func (r *Result) BatchesFailed() int {
	return len(r.Batches) - r.BatchesOK()
}

// Source is one upstream open-data endpoint and its staging mapping.
type Source interface {
	// Name is the catalog key, e.g. "pluto".
	Name() string

	// DisplayName is the human-readable catalog label.
	DisplayName() string

	// Table is the schema-qualified staging table.
	Table() string

	// URL is the Socrata resource endpoint.
	URL() string

	// Ingest fetches up to maxRecords and loads the staging table.
	Ingest(ctx context.Context, pool db.Pool, f socrata.Fetcher, maxRecords int) (*Result, error)
}

// Registry holds the sources in pipeline order.
type Registry struct {
	sources []Source
}

// NewRegistry builds the standard four-source registry in run order:
// parcel, valuation, transaction, compliance.
func NewRegistry(parcelURL, valuationURL, transactionURL, complianceURL string) *Registry {
	return &Registry{sources: []Source{
		&Parcel{url: parcelURL},
		&Valuation{url: valuationURL},
		&Transaction{url: transactionURL},
		&Compliance{url: complianceURL},
	}}
}

// All returns the sources in registration order.
func (r *Registry) All() []Source { return r.sources }

// Get returns a source by name, or nil.
func (r *Registry) Get(name string) Source {
	for _, s := range r.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Names returns the registered source names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// writeBatches loads rows into schema.table in fixed-size batches. A
// rejected batch is logged and recorded, never fatal: ingestion
// proceeds with the next batch and the caller reads the damage off the
// returned outcomes.
func writeBatches(ctx context.Context, pool db.Pool, schema, table string, columns []string, rows [][]any, log *zap.Logger) (int64, []BatchOutcome) {
	var written int64
	var outcomes []BatchOutcome

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		idx := start / batchSize

		n, err := db.CopyInto(ctx, pool, schema, table, columns, batch)
		if err != nil {
			log.Warn("batch write failed, skipping",
				zap.Int("batch", idx),
				zap.Int("rows", len(batch)),
				zap.Error(err),
			)
			outcomes = append(outcomes, BatchOutcome{Index: idx, Rows: len(batch), Err: err.Error()})
			continue
		}

		written += n
		outcomes = append(outcomes, BatchOutcome{Index: idx, Rows: len(batch)})
	}

	return written, outcomes
}
