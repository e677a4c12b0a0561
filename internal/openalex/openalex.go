// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package openalex implements the scrape stage against the OpenAlex works
// API instead of a results-page scrape. The API needs no cookies and no
// block-page handling, and a mailto parameter routes requests through the
// polite pool.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/scholar-pipeline/internal/httputil"
	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

// apiBase is the OpenAlex works endpoint. Declared as a var so tests can
// substitute an httptest server.
var apiBase = "https://api.openalex.org/works"

const (
	// perPage is the page size requested from the API. The service allows
	// up to 200 per page; 25 keeps one "page" comparable to a few scraped
	// result pages so downstream per-title enrichment stays bounded.
	perPage = 25

	// maxConcurrentPages bounds parallel page fetches. The polite pool
	// allows 10 req/s.
	maxConcurrentPages = 5

	// maxAuthors is how many author names a record carries before the
	// list is elided.
	maxAuthors = 3

	selectFields = "id,title,display_name,publication_year,publication_date," +
		"doi,cited_by_count,abstract_inverted_index,authorships," +
		"primary_location,best_oa_location,open_access"
)

// Source fetches search results from the OpenAlex API. It implements the
// same Search contract as the results-page scraper.
type Source struct {
	client *http.Client
	mailto string
	agent  string
	cfg    types.ScrapeConfig
	log    *zap.Logger
}

// New builds a Source from cfg. mailto may be empty; when set it is sent
// with every request and appended to the User-Agent.
func New(cfg types.ScrapeConfig, mailto string) *Source {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	agent := cfg.UserAgent
	if agent == "" {
		agent = "scholar-pipeline/0.1"
	}
	if mailto != "" {
		agent = fmt.Sprintf("%s (mailto:%s)", agent, mailto)
	}

	return &Source{
		client: &http.Client{Timeout: timeout},
		mailto: mailto,
		agent:  agent,
		cfg:    cfg,
		log:    zap.L().Named("openalex"),
	}
}

// Search fetches the requested result pages and returns their records
// concatenated in page order. A page that fails is logged and contributes
// zero records.
func (s *Source) Search(ctx context.Context, query string, pages []int) ([]types.ScrapeRecord, error) {
	perPageRecords := make([][]types.ScrapeRecord, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPages)
	for i, page := range pages {
		g.Go(func() error {
			records, err := s.fetchPage(gctx, query, page)
			if err != nil {
				s.log.Warn("page fetch failed", zap.Int("page", page), zap.Error(err))
				return nil
			}
			perPageRecords[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []types.ScrapeRecord
	for _, records := range perPageRecords {
		out = append(out, records...)
	}
	return out, nil
}

func (s *Source) fetchPage(ctx context.Context, query string, page int) ([]types.ScrapeRecord, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("per-page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))
	params.Set("select", selectFields)
	if s.mailto != "" {
		params.Set("mailto", s.mailto)
	}

	// Journal articles only; the year filter is inclusive of YearLow.
	filters := []string{"type:article"}
	if s.cfg.YearLow > 0 {
		filters = append([]string{fmt.Sprintf("publication_year:>%d", s.cfg.YearLow-1)}, filters...)
	}
	params.Set("filter", strings.Join(filters, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.agent)

	resp, err := httputil.DoWithRetry(ctx, s.client, req, 3)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("openalex: HTTP %d for page %d", resp.StatusCode, page)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrapf(err, "openalex: decoding page %d", page)
	}

	var records []types.ScrapeRecord
	for _, work := range parsed.Results {
		rec := parseWork(work)
		if rec.Title == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseWork(work apiWork) types.ScrapeRecord {
	rec := types.ScrapeRecord{Citations: "0"}

	rec.Title = work.DisplayName
	if rec.Title == "" {
		rec.Title = work.Title
	}

	if work.PublicationYear > 0 {
		rec.Year = strconv.Itoa(work.PublicationYear)
	}

	if work.CitedByCount > 0 {
		rec.Citations = strconv.FormatInt(work.CitedByCount, 10)
	}

	var authors []string
	for _, a := range work.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}
	if len(authors) > maxAuthors {
		rec.Author = strings.Join(authors[:maxAuthors], ", ") + " ..."
	} else {
		rec.Author = strings.Join(authors, ", ")
	}

	if work.PrimaryLocation != nil {
		rec.Venue = work.PrimaryLocation.Source.DisplayName
		rec.ArticleURL = work.PrimaryLocation.LandingPageURL
	}
	if rec.ArticleURL == "" && work.BestOALocation != nil {
		rec.ArticleURL = work.BestOALocation.LandingPageURL
	}
	if rec.ArticleURL == "" && work.OpenAccess != nil {
		rec.ArticleURL = work.OpenAccess.OAURL
	}

	if len(work.AbstractIndex) > 0 {
		rec.Snippet = reconstructAbstract(work.AbstractIndex)
	}

	return rec
}

// reconstructAbstract rebuilds plain text from the inverted index the API
// serves in place of the abstract.
func reconstructAbstract(index map[string][]int) string {
	type posWord struct {
		pos  int
		word string
	}
	var words []posWord
	for word, positions := range index {
		for _, pos := range positions {
			words = append(words, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })

	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.word
	}
	return strings.Join(parts, " ")
}

type apiResponse struct {
	Results []apiWork `json:"results"`
}

type apiWork struct {
	Title           string           `json:"title"`
	DisplayName     string           `json:"display_name"`
	PublicationYear int              `json:"publication_year"`
	CitedByCount    int64            `json:"cited_by_count"`
	AbstractIndex   map[string][]int `json:"abstract_inverted_index"`
	Authorships     []apiAuthorship  `json:"authorships"`
	PrimaryLocation *apiLocation     `json:"primary_location"`
	BestOALocation  *apiLocation     `json:"best_oa_location"`
	OpenAccess      *apiOpenAccess   `json:"open_access"`
}

type apiAuthorship struct {
	Author apiAuthor `json:"author"`
}

type apiAuthor struct {
	DisplayName string `json:"display_name"`
}

type apiLocation struct {
	Source         apiSource `json:"source"`
	LandingPageURL string    `json:"landing_page_url"`
}

type apiSource struct {
	DisplayName string `json:"display_name"`
}

type apiOpenAccess struct {
	OAURL string `json:"oa_url"`
}
