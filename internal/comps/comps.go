// Package comps generates comparable-property candidate sets. Peers are
// drawn from the same zip code and property type; scores and price
// adjustments are placeholder heuristics until the valuation model
// replaces them.
package comps

import (
	"context"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propsignal/propsync/internal/db"
)

const (
	maxPeers  = 5
	batchSize = 1000

	// Placeholder pricing model: peer $/sqft applied to a nominal
	// 1,500 sqft subject, jittered, and capped to keep outlier $/sqft
	// rows from producing absurd figures.
	nominalSqft   = 1500.0
	adjustedCap   = 2e9
	minSimilarity = 0.70
	maxSimilarity = 0.95
)

var compColumns = []string{
	"subject_property_id", "comp_property_id", "similarity_score",
	"sqft_adjustment", "age_adjustment", "bed_adjustment", "adjusted_price",
}

// Result summarizes a comparables pass.
type Result struct {
	Subjects int64 `json:"subjects"` // properties that received at least one comp
	Written  int64 `json:"written"`
}

type property struct {
	id           uuid.UUID
	zip          string
	propertyType string
	pricePerSqft float64
}

type peerKey struct {
	zip          string
	propertyType string
}

// Run builds comparable sets for every canonical property. Errors are
// fatal to the pipeline run.
func Run(ctx context.Context, pool db.Pool) (*Result, error) {
	log := zap.L().With(zap.String("component", "comps"))

	props, err := loadProperties(ctx, pool)
	if err != nil {
		return nil, err
	}

	groups := make(map[peerKey][]property)
	for _, p := range props {
		k := peerKey{zip: p.zip, propertyType: p.propertyType}
		groups[k] = append(groups[k], p)
	}

	res := &Result{}
	batch := make([][]any, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := db.CopyInto(ctx, pool, "prop_data", "comparables", compColumns, batch)
		if err != nil {
			return eris.Wrap(err, "comps: write comparables")
		}
		res.Written += n
		batch = batch[:0]
		return nil
	}

	for _, subject := range props {
		peers := samplePeers(groups[peerKey{zip: subject.zip, propertyType: subject.propertyType}], subject.id)
		if len(peers) == 0 {
			continue
		}
		res.Subjects++

		for _, peer := range peers {
			batch = append(batch, []any{
				subject.id,
				peer.id,
				similarity(),
				adjustment(),
				adjustment(),
				adjustment(),
				adjustedPrice(peer.pricePerSqft),
			})
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	log.Info("comparables complete",
		zap.Int("properties", len(props)),
		zap.Int64("subjects", res.Subjects),
		zap.Int64("written", res.Written),
	)
	return res, nil
}

func loadProperties(ctx context.Context, pool db.Pool) ([]property, error) {
	rows, err := pool.Query(ctx,
		`SELECT id, zip_code, property_type, price_per_sqft
		 FROM prop_data.properties WHERE zip_code IS NOT NULL ORDER BY bbl`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "comps: query properties")
	}
	defer rows.Close()

	var props []property
	for rows.Next() {
		var p property
		if err := rows.Scan(&p.id, &p.zip, &p.propertyType, &p.pricePerSqft); err != nil {
			return nil, eris.Wrap(err, "comps: scan property row")
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "comps: iterate property rows")
	}
	return props, nil
}

// samplePeers picks up to maxPeers group members excluding the subject
// itself, in random order.
func samplePeers(group []property, subject uuid.UUID) []property {
	candidates := make([]property, 0, len(group))
	for _, p := range group {
		if p.id != subject {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	picked := make([]property, 0, maxPeers)
	for _, i := range rand.Perm(len(candidates)) {
		picked = append(picked, candidates[i])
		if len(picked) == maxPeers {
			break
		}
	}
	return picked
}

func similarity() float64 {
	return minSimilarity + rand.Float64()*(maxSimilarity-minSimilarity)
}

// adjustment is a signed placeholder in ±[0.05, 0.10].
func adjustment() float64 {
	v := 0.05 + rand.Float64()*0.05
	if rand.IntN(2) == 0 {
		return -v
	}
	return v
}

func adjustedPrice(pricePerSqft float64) float64 {
	jitter := 0.95 + rand.Float64()*0.10
	price := pricePerSqft * nominalSqft * jitter
	if price > adjustedCap {
		price = adjustedCap
	}
	return price
}
