package socrata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageServer serves total synthetic records honoring $limit/$offset.
func pageServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("$limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[")
		n := 0
		for i := offset; i < total && n < limit; i++ {
			if n > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"bbl":"%010d"}`, i+1)
			n++
		}
		fmt.Fprint(w, "]")
	}))
}

func testClient(pageSize int) *Client {
	return NewClient(Options{PageSize: pageSize})
}

func TestFetchPage_QueryParams(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"$limit":  r.URL.Query().Get("$limit"),
			"$offset": r.URL.Query().Get("$offset"),
			"$where":  r.URL.Query().Get("$where"),
			"$order":  r.URL.Query().Get("$order"),
		}
		fmt.Fprint(w, `[{"bbl":"1001230045"}]`)
	}))
	defer srv.Close()

	c := testClient(10)
	records, err := c.FetchPage(context.Background(), srv.URL, Query{Where: "borough = 'MN'", Order: "bbl"}, 40, 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1001230045", records[0].Str("bbl"))
	assert.Equal(t, "20", gotQuery["$limit"])
	assert.Equal(t, "40", gotQuery["$offset"])
	assert.Equal(t, "borough = 'MN'", gotQuery["$where"])
	assert.Equal(t, "bbl", gotQuery["$order"])
}

func TestFetchPage_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(10)
	_, err := c.FetchPage(context.Background(), srv.URL, Query{}, 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetchAll_StopsOnShortPage(t *testing.T) {
	srv := pageServer(t, 25)
	defer srv.Close()

	c := testClient(10)
	records := c.FetchAll(context.Background(), srv.URL, Query{}, 1000)
	assert.Len(t, records, 25) // 10 + 10 + short page of 5
}

func TestFetchAll_StopsOnEmptyFirstPage(t *testing.T) {
	srv := pageServer(t, 0)
	defer srv.Close()

	c := testClient(10)
	records := c.FetchAll(context.Background(), srv.URL, Query{}, 1000)
	assert.Empty(t, records)
}

func TestFetchAll_HonorsCeiling(t *testing.T) {
	srv := pageServer(t, 100)
	defer srv.Close()

	c := testClient(10)
	records := c.FetchAll(context.Background(), srv.URL, Query{}, 23)
	// Final page is trimmed to the remaining budget.
	assert.Len(t, records, 23)
}

func TestFetchAll_PartialOnMidRunError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"bbl":"1000010001"},{"bbl":"1000010002"}]`)
	}))
	defer srv.Close()

	c := testClient(2)
	records := c.FetchAll(context.Background(), srv.URL, Query{}, 1000)
	// Two full pages accumulated before the failure; partial results kept.
	assert.Len(t, records, 4)
}

func TestFetchAll_CancelledContext(t *testing.T) {
	srv := pageServer(t, 100)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(10)
	records := c.FetchAll(ctx, srv.URL, Query{}, 1000)
	assert.Empty(t, records)
}
