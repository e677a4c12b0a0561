// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package crossref

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scholar-pipeline/internal/httputil"
	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

func testClient(cache Cache) *Client {
	return New(types.CrossrefConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second},
		Mailto:     "ci@example.org",
		Workers:    3,
	}, cache)
}

// withAPIBase points the package at ts for the duration of the test.
func withAPIBase(t *testing.T, ts *httptest.Server) {
	t.Helper()
	old := apiBase
	apiBase = ts.URL
	t.Cleanup(func() { apiBase = old })
}

func worksBody(items string) string {
	return fmt.Sprintf(`{"message":{"items":[%s]}}`, items)
}

const fullItem = `{
	"DOI": "10.1000/example",
	"title": ["Deep Example Networks"],
	"author": [
		{"given": "Ada", "family": "Lovelace"},
		{"given": "", "family": "Turing"},
		{"given": "Grace", "family": ""}
	],
	"container-title": ["Journal of Examples", "J. Ex."],
	"published": {"date-parts": [[2023, 11, 7]]},
	"abstract": "<jats:p>We study <i>examples</i>.</jats:p>"
}`

func TestLookupOneParsesFirstItem(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Deep Example Networks", r.URL.Query().Get("query.title"))
		assert.Equal(t, "1", r.URL.Query().Get("rows"))
		assert.Equal(t, selectFields, r.URL.Query().Get("select"))
		assert.Equal(t, "ci@example.org", r.URL.Query().Get("mailto"))
		fmt.Fprint(w, worksBody(fullItem))
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	meta := testClient(nil).LookupOne(context.Background(), "Deep Example Networks")
	require.NotNil(t, meta)

	assert.Equal(t, "10.1000/example", meta.DOI)
	assert.Equal(t, "Journal of Examples", meta.Journal)
	assert.Equal(t, "Ada Lovelace, Turing, Grace", meta.Authors)
	assert.Equal(t, "2023-11-7", meta.Date)
	assert.Equal(t, "We study examples.", meta.Abstract)
	assert.Equal(t, "Deep Example Networks", meta.MatchedTitle)
}

func TestLookupOneEmptyTitle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty title")
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	c := testClient(nil)
	assert.Nil(t, c.LookupOne(context.Background(), ""))
	assert.Nil(t, c.LookupOne(context.Background(), "   "))
}

func TestLookupOneNoItems(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, worksBody(""))
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	assert.Nil(t, testClient(nil).LookupOne(context.Background(), "Unknown Title"))
}

func TestLookupOneNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	assert.Nil(t, testClient(nil).LookupOne(context.Background(), "Any Title"))
}

func TestLookupOneRateLimitedThenMatch(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, worksBody(fullItem))
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	meta := testClient(nil).LookupOne(context.Background(), "Deep Example Networks")
	require.NotNil(t, meta)
	assert.Equal(t, "10.1000/example", meta.DOI)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestLookupOneRateLimitExhausted(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	assert.Nil(t, testClient(nil).LookupOne(context.Background(), "Any Title"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestLookupOneOmitsMailtoWhenUnset(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["mailto"]
		assert.False(t, present, "mailto must be absent, not a placeholder")
		fmt.Fprint(w, worksBody(""))
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	c := New(types.CrossrefConfig{}, nil)
	c.LookupOne(context.Background(), "Some Title")
}

// TestLookupBatchAlignment delays responses in reverse input order, so the
// last title completes first. The returned slice must still line up with
// the input by index.
func TestLookupBatchAlignment(t *testing.T) {
	titles := []string{"alpha", "beta", "gamma", "delta", "epsilon"}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query.title")
		for i, title := range titles {
			if title == q {
				time.Sleep(time.Duration(len(titles)-i) * 10 * time.Millisecond)
			}
		}
		fmt.Fprintf(w, worksBody(`{"DOI": "10.1/%s", "title": ["%s"]}`), q, q)
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	results := testClient(nil).LookupBatch(context.Background(), titles)
	require.Len(t, results, len(titles))

	for i, title := range titles {
		require.NotNil(t, results[i], "slot %d", i)
		assert.Equal(t, "10.1/"+title, results[i].DOI)
	}
}

func TestLookupBatchPartialFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query.title") == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, worksBody(fullItem))
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	results := testClient(nil).LookupBatch(context.Background(), []string{"good", "broken", "", "good"})
	require.Len(t, results, 4)

	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
	assert.Nil(t, results[2])
	assert.NotNil(t, results[3])
}

func TestLookupBatchEmpty(t *testing.T) {
	results := testClient(nil).LookupBatch(context.Background(), nil)
	assert.Empty(t, results)
}

// --- cache integration ---

type memCache struct {
	mu      sync.Mutex
	entries map[string]*types.Metadata
	gets    int
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*types.Metadata{}}
}

func (m *memCache) Get(title string) (*types.Metadata, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	meta, ok := m.entries[title]
	return meta, ok, nil
}

func (m *memCache) Put(title string, meta *types.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.entries[title] = meta
	return nil
}

func TestLookupOneCacheShortCircuits(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, worksBody(fullItem))
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	cache := newMemCache()
	c := testClient(cache)

	first := c.LookupOne(context.Background(), "Deep Example Networks")
	second := c.LookupOne(context.Background(), "Deep Example Networks")

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup must come from cache")
	assert.Equal(t, 1, cache.puts)
}

func TestLookupOneCachesMisses(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, worksBody(""))
	}))
	defer ts.Close()
	withAPIBase(t, ts)

	cache := newMemCache()
	c := testClient(cache)

	assert.Nil(t, c.LookupOne(context.Background(), "Unfindable"))
	assert.Nil(t, c.LookupOne(context.Background(), "Unfindable"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "confirmed miss must not be re-queried")
}
