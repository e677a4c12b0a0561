// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package crossref resolves bibliographic metadata for scraped titles via
// the Crossref works API. Lookups fan out over a small worker pool and the
// batch result is re-assembled in input order; a failed lookup is an absent
// slot, never an error.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/scholar-pipeline/internal/httputil"
	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

// apiBase is the Crossref works search endpoint. Declared as a var so tests
// can substitute an httptest server.
var apiBase = "https://api.crossref.org/works"

const (
	selectFields   = "DOI,title,author,container-title,published,abstract"
	defaultWorkers = 3
	defaultTimeout = 15 * time.Second
	maxAttempts    = 3
)

// tagPattern strips markup tags from abstracts. Crossref abstracts arrive
// JATS-tagged; a plain <...> pass is enough for CSV output.
var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Cache is an optional persistent lookup cache consulted before the network.
// Get's second return value distinguishes "never looked up" from a stored
// miss (nil metadata).
type Cache interface {
	Get(title string) (*types.Metadata, bool, error)
	Put(title string, meta *types.Metadata) error
}

// Client queries the Crossref API with bounded concurrency and retry.
type Client struct {
	http    *http.Client
	mailto  string
	agent   string
	workers int
	cache   Cache
	log     *zap.Logger
}

// New builds a Client from cfg. cache may be nil to disable persistent
// caching. When cfg.Mailto is set it is attached to every request, which
// routes traffic through the service's polite pool.
func New(cfg types.CrossrefConfig, cache Cache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	agent := cfg.UserAgent
	if agent == "" {
		agent = "scholar-pipeline/0.1"
	}
	if cfg.Mailto != "" {
		agent = fmt.Sprintf("%s (mailto:%s)", agent, cfg.Mailto)
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		mailto:  cfg.Mailto,
		agent:   agent,
		workers: workers,
		cache:   cache,
		log:     zap.L().Named("crossref"),
	}
}

// LookupOne resolves metadata for a single title. It returns nil for an
// empty title, on HTTP failure after retries, on transport errors, and when
// no candidate matched. It never returns an error to the caller.
func (c *Client) LookupOne(ctx context.Context, title string) *types.Metadata {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	if c.cache != nil {
		if meta, cached, err := c.cache.Get(title); err == nil && cached {
			return meta
		}
	}

	meta := c.fetch(ctx, title)

	if c.cache != nil {
		if err := c.cache.Put(title, meta); err != nil {
			c.log.Warn("cache write failed", zap.Error(err))
		}
	}
	return meta
}

func (c *Client) fetch(ctx context.Context, title string) *types.Metadata {
	params := url.Values{
		"query.title": {title},
		"rows":        {"1"},
		"select":      {selectFields},
	}
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.agent)

	resp, err := httputil.DoWithRetry(ctx, c.http, req, maxAttempts)
	if err != nil {
		c.log.Debug("lookup failed", zap.String("title", truncate(title, 30)), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.log.Debug("lookup rejected",
			zap.String("title", truncate(title, 30)),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		c.log.Debug("malformed response", zap.Error(err))
		return nil
	}
	if len(ar.Message.Items) == 0 {
		return nil
	}
	return parseItem(ar.Message.Items[0])
}

// LookupBatch resolves metadata for all titles concurrently over the worker
// pool and returns one entry per input title, positionally aligned: entry i
// corresponds to titles[i] regardless of completion order. A failed slot is
// nil; it never affects its siblings.
func (c *Client) LookupBatch(ctx context.Context, titles []string) []*types.Metadata {
	results := make([]*types.Metadata, len(titles))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, title := range titles {
		g.Go(func() error {
			results[i] = c.LookupOne(ctx, title)
			return nil
		})
	}
	g.Wait()

	return results
}

// parseItem flattens one works item into a Metadata record.
func parseItem(item apiItem) *types.Metadata {
	var authors []string
	for _, a := range item.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name != "" {
			authors = append(authors, name)
		}
	}

	var date string
	if len(item.Published.DateParts) > 0 {
		parts := make([]string, 0, len(item.Published.DateParts[0]))
		for _, p := range item.Published.DateParts[0] {
			parts = append(parts, strconv.Itoa(p))
		}
		date = strings.Join(parts, "-")
	}

	var journal string
	if len(item.ContainerTitle) > 0 {
		journal = item.ContainerTitle[0]
	}

	var matched string
	if len(item.Title) > 0 {
		matched = item.Title[0]
	}

	return &types.Metadata{
		DOI:          item.DOI,
		Journal:      journal,
		Authors:      strings.Join(authors, ", "),
		Date:         date,
		Abstract:     tagPattern.ReplaceAllString(item.Abstract, ""),
		MatchedTitle: matched,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Crossref API JSON structures.
type apiResponse struct {
	Message apiMessage `json:"message"`
}

type apiMessage struct {
	Items []apiItem `json:"items"`
}

type apiItem struct {
	DOI            string      `json:"DOI"`
	Title          []string    `json:"title"`
	Author         []apiAuthor `json:"author"`
	ContainerTitle []string    `json:"container-title"`
	Published      apiDate     `json:"published"`
	Abstract       string      `json:"abstract"`
}

type apiAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type apiDate struct {
	DateParts [][]int `json:"date-parts"`
}
