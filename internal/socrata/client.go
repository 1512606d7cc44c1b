// Package socrata fetches paginated JSON records from Socrata-style
// open-data endpoints ($limit/$offset/$where/$order convention).
package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pageDelay is the fixed inter-page throttle. Socrata endpoints tolerate
// roughly 3-4 unauthenticated requests per second per host.
const pageDelay = 300 * time.Millisecond

// Record is one JSON row as returned by the upstream endpoint.
type Record map[string]any

// Query carries the optional SoQL filter and ordering for a fetch.
type Query struct {
	Where string
	Order string
}

// Options configures the Socrata client.
type Options struct {
	UserAgent string
	AppToken  string
	Timeout   time.Duration
	PageSize  int
}

// Client is a paginated, rate-limited puller against Socrata endpoints.
type Client struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// Fetcher is the subset of Client used by ingestors, abstracted for tests.
type Fetcher interface {
	FetchAll(ctx context.Context, baseURL string, q Query, maxRecords int) []Record
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a Socrata client with sane defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.PageSize == 0 {
		opts.PageSize = 1000
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "propsync/1.0"
	}
	return &Client{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(pageDelay), 1),
	}
}

// PageSize returns the configured page size.
func (c *Client) PageSize() int { return c.opts.PageSize }

// FetchPage fetches a single page of records. A non-2xx status is an error.
func (c *Client) FetchPage(ctx context.Context, baseURL string, q Query, offset, limit int) ([]Record, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: parse url %s", baseURL)
	}

	params := u.Query()
	params.Set("$limit", fmt.Sprintf("%d", limit))
	params.Set("$offset", fmt.Sprintf("%d", offset))
	if q.Where != "" {
		params.Set("$where", q.Where)
	}
	if q.Order != "" {
		params.Set("$order", q.Order)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "socrata: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.opts.AppToken != "" {
		req.Header.Set("X-App-Token", c.opts.AppToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: fetch offset %d", offset)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("socrata: status %d from %s at offset %d", resp.StatusCode, u.Host, offset)
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, eris.Wrapf(err, "socrata: decode page at offset %d", offset)
	}

	return records, nil
}

// FetchAll pages through the endpoint until maxRecords is reached, a page
// comes back empty or short (end of upstream data), or a page fails.
//
// A failed page is a partial-success outcome, not a fatal one: the loop
// halts, logs the error, and returns whatever accumulated so far. The
// caller observes the shortfall as fewer records than requested.
func (c *Client) FetchAll(ctx context.Context, baseURL string, q Query, maxRecords int) []Record {
	log := zap.L().With(zap.String("component", "socrata"), zap.String("url", baseURL))

	var all []Record
	offset := 0

	for len(all) < maxRecords {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("fetch interrupted", zap.Error(err))
			return all
		}

		limit := c.opts.PageSize
		if remaining := maxRecords - len(all); remaining < limit {
			limit = remaining
		}

		page, err := c.FetchPage(ctx, baseURL, q, offset, limit)
		if err != nil {
			log.Warn("page fetch failed, keeping partial results",
				zap.Int("offset", offset),
				zap.Int("fetched", len(all)),
				zap.Error(err),
			)
			return all
		}

		all = append(all, page...)
		offset += len(page)

		if len(page) == 0 || len(page) < limit {
			break
		}
	}

	log.Debug("fetch complete", zap.Int("records", len(all)))
	return all
}
