// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package semanticscholar looks up papers by DOI in batches to retrieve
// abstracts, TLDR summaries, and open-access PDF links. Lookups degrade to
// absent entries; a failed batch never fails the run.
package semanticscholar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

// apiBase is the Semantic Scholar batch endpoint. Declared as a var so
// tests can substitute an httptest server.
var apiBase = "https://api.semanticscholar.org/graph/v1/paper/batch"

const (
	// maxBatchSize is the service's cap on ids per batch request.
	maxBatchSize = 500

	// batchFields selects the response fields the unified join consumes.
	batchFields = "title,abstract,url,isOpenAccess,openAccessPdf,externalIds,tldr"

	defaultTimeout = 60 * time.Second

	// batchInterval paces batch requests on the anonymous tier (1 req/s).
	batchInterval = time.Second
)

// Paper is the per-DOI lookup result.
type Paper struct {
	Title    string
	DOI      string
	Abstract string
	TLDR     string
	URL      string
	IsOA     bool
	PDFURL   string
	PaperID  string
}

// Client queries the batch endpoint, paced for the anonymous rate tier.
type Client struct {
	http    *http.Client
	apiKey  string
	agent   string
	limiter *rate.Limiter
	log     *zap.Logger
}

// New builds a Client from cfg. An API key raises the service rate limit
// but is not required.
func New(cfg types.SemanticConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = "scholar-pipeline/0.1"
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		apiKey:  cfg.APIKey,
		agent:   agent,
		limiter: rate.NewLimiter(rate.Every(batchInterval), 1),
		log:     zap.L().Named("semanticscholar"),
	}
}

// LookupByDOI resolves papers for the given DOIs, keyed by lowercased DOI.
// Empty DOIs are ignored; a DOI the service does not know is simply absent
// from the result. Batch failures are logged and skipped.
func (c *Client) LookupByDOI(ctx context.Context, dois []string) map[string]Paper {
	var valid []string
	for _, doi := range dois {
		if strings.TrimSpace(doi) != "" {
			valid = append(valid, doi)
		}
	}
	out := make(map[string]Paper)
	if len(valid) == 0 {
		return out
	}

	for _, chunk := range chunkDOIs(valid) {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Warn("batch lookup cancelled", zap.Error(err))
			return out
		}
		papers, err := c.fetchBatch(ctx, chunk)
		if err != nil {
			c.log.Warn("batch failed", zap.Int("papers", len(chunk)), zap.Error(err))
			continue
		}
		for _, p := range papers {
			if p.DOI != "" {
				out[strings.ToLower(p.DOI)] = p
			}
		}
	}
	return out
}

// chunkDOIs splits dois into evenly sized chunks no larger than the
// service's batch cap.
func chunkDOIs(dois []string) [][]string {
	total := len(dois)
	batches := (total + maxBatchSize - 1) / maxBatchSize
	size := (total + batches - 1) / batches

	var chunks [][]string
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, dois[start:end])
	}
	return chunks
}

func (c *Client) fetchBatch(ctx context.Context, dois []string) ([]Paper, error) {
	ids := make([]string, len(dois))
	for i, doi := range dois {
		ids[i] = "DOI:" + doi
	}
	body, err := json.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"?fields="+batchFields, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.agent)
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("semanticscholar: HTTP %d", resp.StatusCode)
	}

	// The service answers with one entry per requested id; unknown ids
	// come back as JSON null.
	var parsed []*apiPaper
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrap(err, "semanticscholar: decoding batch")
	}

	var papers []Paper
	for _, p := range parsed {
		if p == nil {
			continue
		}
		var tldr string
		if p.TLDR != nil {
			tldr = p.TLDR.Text
		}
		var pdfURL string
		if p.OpenAccessPDF != nil {
			pdfURL = p.OpenAccessPDF.URL
		}
		var doi string
		if p.ExternalIDs != nil {
			doi = p.ExternalIDs.DOI
		}
		papers = append(papers, Paper{
			Title:    p.Title,
			DOI:      doi,
			Abstract: p.Abstract,
			TLDR:     tldr,
			URL:      p.URL,
			IsOA:     p.IsOpenAccess,
			PDFURL:   pdfURL,
			PaperID:  p.PaperID,
		})
	}
	return papers, nil
}

type apiPaper struct {
	PaperID       string          `json:"paperId"`
	Title         string          `json:"title"`
	Abstract      string          `json:"abstract"`
	TLDR          *apiTLDR        `json:"tldr"`
	URL           string          `json:"url"`
	IsOpenAccess  bool            `json:"isOpenAccess"`
	OpenAccessPDF *apiOpenAccess  `json:"openAccessPdf"`
	ExternalIDs   *apiExternalIDs `json:"externalIds"`
}

type apiTLDR struct {
	Text string `json:"text"`
}

type apiOpenAccess struct {
	URL string `json:"url"`
}

type apiExternalIDs struct {
	DOI string `json:"DOI"`
}
