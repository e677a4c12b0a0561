// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scholar fetches and parses search-engine result pages. It is the
// thin front of the pipeline: it trusts the page markup, degrades to empty
// results when blocked, and leaves all enrichment to later stages.
package scholar

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

const (
	defaultBaseURL   = "https://scholar.google.com"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// sdtArticles filters results to articles only.
	sdtArticles = "0,5"

	defaultMaxPages = 3
)

// Source produces an ordered sequence of raw result records for a query.
// An empty result set is not an error.
type Source interface {
	Search(ctx context.Context, query string, pages []int) ([]types.ScrapeRecord, error)
}

// HTTPSource fetches result pages over plain HTTP with a persisted cookie
// jar. Pages are fetched concurrently (bounded) with a randomized
// politeness delay; a page that answers with a block or robot check yields
// zero records rather than failing the run.
type HTTPSource struct {
	client  *http.Client
	baseURL string
	cfg     types.ScrapeConfig
	log     *zap.Logger

	// delay returns the politeness pause before a page fetch. Tests
	// replace it to avoid real sleeps.
	delay func() time.Duration
}

// NewHTTPSource builds an HTTPSource from cfg, loading cookies from
// cfg.CookieFile when present.
func NewHTTPSource(cfg types.ScrapeConfig) (*HTTPSource, error) {
	log := zap.L().Named("scholar")

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "scholar: creating cookie jar")
	}
	if cfg.CookieFile != "" {
		if n, err := LoadCookies(jar, cfg.CookieFile); err != nil {
			log.Warn("could not load cookies", zap.String("file", cfg.CookieFile), zap.Error(err))
		} else if n > 0 {
			log.Debug("loaded cookies", zap.Int("count", n))
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, eris.Wrapf(err, "scholar: invalid proxy URL %q", cfg.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPSource{
		client: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: transport,
		},
		baseURL: baseURL,
		cfg:     cfg,
		log:     log,
		delay: func() time.Duration {
			return time.Duration(500+rand.IntN(1500)) * time.Millisecond
		},
	}, nil
}

// Search fetches the requested result pages and returns their records
// concatenated in page order. Pages that fail or are blocked contribute
// nothing; only a transport-level inability to reach any page is an error.
func (s *HTTPSource) Search(ctx context.Context, query string, pages []int) ([]types.ScrapeRecord, error) {
	if len(pages) == 0 {
		pages = []int{1}
	}

	maxPages := s.cfg.MaxConcurrentPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	perPage := make([][]types.ScrapeRecord, len(pages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPages)
	for i, page := range pages {
		g.Go(func() error {
			records, err := s.fetchPage(ctx, query, page)
			if err != nil {
				s.log.Warn("page fetch failed", zap.Int("page", page), zap.Error(err))
				return nil
			}
			perPage[i] = records
			return nil
		})
	}
	g.Wait()

	var all []types.ScrapeRecord
	for _, records := range perPage {
		all = append(all, records...)
	}
	return all, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, query string, page int) ([]types.ScrapeRecord, error) {
	start := (page - 1) * 10
	if start < 0 {
		start = 0
	}

	params := url.Values{
		"q":      {query},
		"start":  {strconv.Itoa(start)},
		"as_sdt": {sdtArticles},
	}
	if s.cfg.YearLow > 0 {
		params.Set("as_ylo", strconv.Itoa(s.cfg.YearLow))
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay()):
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/scholar?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "scholar: creating request")
	}
	agent := s.cfg.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	req.Header.Set("User-Agent", agent)

	s.log.Debug("fetching page", zap.Int("page", page))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "scholar: fetching page %d", page)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429) on page %d", page)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page %d returned HTTP %d", page, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "scholar: reading page %d", page)
	}

	html := string(body)
	if isBlockPage(html) {
		s.log.Warn("block page detected, skipping", zap.Int("page", page))
		return nil, nil
	}

	return ParseResults(html)
}

// isBlockPage reports whether the response is a robot check rather than a
// results page.
func isBlockPage(html string) bool {
	return strings.Contains(html, "Solving the above CAPTCHA") ||
		strings.Contains(html, "not a robot")
}

// ParsePageRange parses a page argument like "3" or "1-10" into an ordered
// page list. It rejects malformed input, zero/negative pages, and inverted
// ranges.
func ParsePageRange(arg string) ([]int, error) {
	parse := func(s string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid page number %q", s)
		}
		return n, nil
	}

	if lo, hi, ok := strings.Cut(arg, "-"); ok {
		first, err := parse(lo)
		if err != nil {
			return nil, err
		}
		last, err := parse(hi)
		if err != nil {
			return nil, err
		}
		if last < first {
			return nil, fmt.Errorf("page range %q is inverted", arg)
		}
		pages := make([]int, 0, last-first+1)
		for p := first; p <= last; p++ {
			pages = append(pages, p)
		}
		return pages, nil
	}

	p, err := parse(arg)
	if err != nil {
		return nil, err
	}
	return []int{p}, nil
}
