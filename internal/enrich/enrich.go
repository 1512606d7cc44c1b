// Package enrich links valuation, transaction, and compliance staging
// rows to canonical properties by BBL and derives per-category fields.
// Rows whose BBL has no canonical match are dropped silently.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/db"
)

const batchSize = 500

// Result summarizes the three linking passes.
type Result struct {
	Valuations   PassResult `json:"valuations"`
	Transactions PassResult `json:"transactions"`
	Compliance   PassResult `json:"compliance"`
}

// PassResult is one satellite pass: rows read from staging and rows
// actually linked. The difference is the silently-dropped remainder.
type PassResult struct {
	Read   int64 `json:"read"`
	Linked int64 `json:"linked"`
}

// Linked is the total satellite rows written across all passes.
func (r *Result) Linked() int64 {
	return r.Valuations.Linked + r.Transactions.Linked + r.Compliance.Linked
}

// Run executes the three linking passes against the just-normalized
// canonical set. A write or scan error is fatal to the pipeline run.
func Run(ctx context.Context, pool db.Pool) (*Result, error) {
	log := zap.L().With(zap.String("component", "enrich"))

	index, err := loadIndex(ctx, pool)
	if err != nil {
		return nil, err
	}
	log.Info("canonical index loaded", zap.Int("properties", len(index)))

	res := &Result{}

	if res.Valuations, err = linkValuations(ctx, pool, index); err != nil {
		return nil, err
	}
	if res.Transactions, err = linkTransactions(ctx, pool, index); err != nil {
		return nil, err
	}
	if res.Compliance, err = linkCompliance(ctx, pool, index); err != nil {
		return nil, err
	}

	log.Info("enrich complete",
		zap.Int64("valuations", res.Valuations.Linked),
		zap.Int64("transactions", res.Transactions.Linked),
		zap.Int64("compliance", res.Compliance.Linked),
	)
	return res, nil
}

// loadIndex builds the in-memory BBL → property id map. This assumes
// the canonical set fits in memory; pushing the join into the storage
// layer is the known scaling boundary.
func loadIndex(ctx context.Context, pool db.Pool) (map[string]uuid.UUID, error) {
	rows, err := pool.Query(ctx, "SELECT id, bbl FROM prop_data.properties")
	if err != nil {
		return nil, eris.Wrap(err, "enrich: query canonical index")
	}
	defer rows.Close()

	index := make(map[string]uuid.UUID)
	for rows.Next() {
		var id uuid.UUID
		var b string
		if err := rows.Scan(&id, &b); err != nil {
			return nil, eris.Wrap(err, "enrich: scan index row")
		}
		index[b] = id
	}
	return index, rows.Err()
}

// flusher batches satellite rows through BulkInsert with DO NOTHING on
// the pass's natural key.
type flusher struct {
	cfg    db.InsertConfig
	batch  [][]any
	linked int64
}

func (f *flusher) add(ctx context.Context, pool db.Pool, row []any) error {
	f.batch = append(f.batch, row)
	if len(f.batch) >= batchSize {
		return f.flush(ctx, pool)
	}
	return nil
}

func (f *flusher) flush(ctx context.Context, pool db.Pool) error {
	if len(f.batch) == 0 {
		return nil
	}
	n, err := db.BulkInsert(ctx, pool, f.cfg, f.batch)
	if err != nil {
		return eris.Wrapf(err, "enrich: write %s", f.cfg.Table)
	}
	f.linked += n
	f.batch = f.batch[:0]
	return nil
}

func linkValuations(ctx context.Context, pool db.Pool, index map[string]uuid.UUID) (PassResult, error) {
	var res PassResult

	rows, err := pool.Query(ctx,
		`SELECT bbl, year, market_value, assessed_total, taxable_value, exemption_value
		 FROM prop_data.staging_valuations ORDER BY id`,
	)
	if err != nil {
		return res, eris.Wrap(err, "enrich: query staging valuations")
	}
	defer rows.Close()

	f := &flusher{cfg: db.InsertConfig{
		Table: "prop_data.valuation_history",
		Columns: []string{
			"property_id", "bbl", "year", "market_value", "assessed_value",
			"taxable_value", "exemption_value", "assessment_ratio",
		},
		ConflictKeys: []string{"property_id", "bbl", "year"},
	}}

	for rows.Next() {
		var b string
		var year *int
		var market, assessed, taxable, exemption *float64
		if err := rows.Scan(&b, &year, &market, &assessed, &taxable, &exemption); err != nil {
			return res, eris.Wrap(err, "enrich: scan valuation row")
		}
		res.Read++

		propertyID, ok := index[b]
		if !ok {
			continue
		}

		yr := 0
		if year != nil {
			yr = *year
		}
		if err := f.add(ctx, pool, []any{
			propertyID, b, yr, market, assessed, taxable, exemption,
			assessmentRatio(assessed, market),
		}); err != nil {
			return res, err
		}
	}
	if err := rows.Err(); err != nil {
		return res, eris.Wrap(err, "enrich: iterate valuation rows")
	}
	if err := f.flush(ctx, pool); err != nil {
		return res, err
	}

	res.Linked = f.linked
	return res, nil
}

func linkTransactions(ctx context.Context, pool db.Pool, index map[string]uuid.UUID) (PassResult, error) {
	var res PassResult

	rows, err := pool.Query(ctx,
		`SELECT bbl, document_id, doc_type, doc_amount, doc_date, party_one, party_two
		 FROM prop_data.staging_transactions WHERE bbl IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return res, eris.Wrap(err, "enrich: query staging transactions")
	}
	defer rows.Close()

	f := &flusher{cfg: db.InsertConfig{
		Table: "prop_data.transaction_history",
		Columns: []string{
			"property_id", "bbl", "document_id", "doc_type", "sale_price",
			"sale_date", "party_one", "party_two",
		},
		ConflictKeys: []string{"property_id", "document_id"},
	}}

	for rows.Next() {
		var b, docID string
		var docType, partyOne, partyTwo *string
		var amount *float64
		var docDate *time.Time
		if err := rows.Scan(&b, &docID, &docType, &amount, &docDate, &partyOne, &partyTwo); err != nil {
			return res, eris.Wrap(err, "enrich: scan transaction row")
		}
		res.Read++

		propertyID, ok := index[b]
		if !ok {
			continue
		}

		code := ""
		if docType != nil {
			code = *docType
		}
		if err := f.add(ctx, pool, []any{
			propertyID, b, docID, MapDocType(code), amount, docDate, partyOne, partyTwo,
		}); err != nil {
			return res, err
		}
	}
	if err := rows.Err(); err != nil {
		return res, eris.Wrap(err, "enrich: iterate transaction rows")
	}
	if err := f.flush(ctx, pool); err != nil {
		return res, err
	}

	res.Linked = f.linked
	return res, nil
}

func linkCompliance(ctx context.Context, pool db.Pool, index map[string]uuid.UUID) (PassResult, error) {
	var res PassResult

	rows, err := pool.Query(ctx,
		`SELECT bbl, building_id, open_violations, total_violations, last_inspection
		 FROM prop_data.staging_compliance ORDER BY id`,
	)
	if err != nil {
		return res, eris.Wrap(err, "enrich: query staging compliance")
	}
	defer rows.Close()

	f := &flusher{cfg: db.InsertConfig{
		Table: "prop_data.compliance_records",
		Columns: []string{
			"property_id", "bbl", "building_id", "open_violations",
			"total_violations", "compliance_score", "risk_level", "last_inspection",
		},
		ConflictKeys: []string{"property_id", "bbl"},
	}}

	for rows.Next() {
		var b string
		var buildingID *string
		var open, total int
		var lastInspection *time.Time
		if err := rows.Scan(&b, &buildingID, &open, &total, &lastInspection); err != nil {
			return res, eris.Wrap(err, "enrich: scan compliance row")
		}
		res.Read++

		propertyID, ok := index[b]
		if !ok {
			continue
		}

		if err := f.add(ctx, pool, []any{
			propertyID, b, buildingID, open, total,
			ComplianceScore(open), RiskLevel(open), lastInspection,
		}); err != nil {
			return res, err
		}
	}
	if err := rows.Err(); err != nil {
		return res, eris.Wrap(err, "enrich: iterate compliance rows")
	}
	if err := f.flush(ctx, pool); err != nil {
		return res, err
	}

	res.Linked = f.linked
	return res, nil
}

// assessmentRatio is assessed/market, or nil when either side is absent.
func assessmentRatio(assessed, market *float64) *float64 {
	if assessed == nil || market == nil || *market <= 0 {
		return nil
	}
	ratio := *assessed / *market
	return &ratio
}

// MapDocType normalizes ACRIS document-type codes into the four-value
// enum used by the transaction satellite.
func MapDocType(code string) string {
	switch c := strings.ToUpper(strings.TrimSpace(code)); {
	case strings.HasPrefix(c, "DEED"):
		return "sale"
	case c == "MTGE" || c == "AGMT" || c == "SPRD" || c == "SAT":
		return "mortgage"
	case strings.HasPrefix(c, "ASST") || c == "ASPM":
		return "assignment"
	default:
		return "transfer"
	}
}

// ComplianceScore derives a 0-100 score from the open-violation count.
func ComplianceScore(openViolations int) float64 {
	penalty := openViolations * 10
	if penalty > 100 {
		penalty = 100
	}
	return float64(100 - penalty)
}

// RiskLevel buckets the open-violation count.
func RiskLevel(openViolations int) string {
	switch {
	case openViolations == 0:
		return "low"
	case openViolations <= 5:
		return "medium"
	default:
		return "high"
	}
}
