// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the three retrieval stages: scrape, metadata
// enrichment, and ranking filter. Each stage only adds fields to the
// records of the previous one. A record's position in the scrape output is
// the correlation key throughout.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pdiddy/scholar-pipeline/internal/rankings"
	"github.com/pdiddy/scholar-pipeline/internal/relevance"
	"github.com/pdiddy/scholar-pipeline/internal/scholar"
	"github.com/pdiddy/scholar-pipeline/internal/semanticscholar"
	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

// MetadataClient resolves a batch of titles to positionally aligned
// metadata; a nil entry is an absent result.
type MetadataClient interface {
	LookupBatch(ctx context.Context, titles []string) []*types.Metadata
}

// RankClient resolves a venue name to ranking data; nil means the venue is
// unknown or the lookup failed.
type RankClient interface {
	GetRank(ctx context.Context, venue string) *rankings.RankData
}

// PaperClient resolves per-paper data (abstract, TLDR, PDF link) for a set
// of DOIs, keyed by lowercased DOI. DOIs the service does not know are
// absent from the map.
type PaperClient interface {
	LookupByDOI(ctx context.Context, dois []string) map[string]semanticscholar.Paper
}

// Pipeline wires the stages together. Rankings may be nil when no ranking
// filters are active; Relevance may be nil to skip LLM screening; Papers
// may be nil to skip the unified join.
type Pipeline struct {
	Source    scholar.Source
	Metadata  MetadataClient
	Rankings  RankClient
	Papers    PaperClient
	Relevance relevance.Backend
	Filters   Filters

	log *zap.Logger
}

// New builds a Pipeline over the given collaborators.
func New(source scholar.Source, metadata MetadataClient, rankClient RankClient, paperClient PaperClient, relevanceBackend relevance.Backend, filters Filters) *Pipeline {
	return &Pipeline{
		Source:    source,
		Metadata:  metadata,
		Rankings:  rankClient,
		Papers:    paperClient,
		Relevance: relevanceBackend,
		Filters:   filters,
		log:       zap.L().Named("pipeline"),
	}
}

// Result holds the progressively enriched record sets of one run.
type Result struct {
	// Scraped is the stage-1 output; its order defines record identity.
	Scraped []types.ScrapeRecord

	// Enriched is the stage-2 output, aligned with Scraped (before any
	// relevance screening narrows it).
	Enriched []types.EnrichedRecord

	// Matched counts enriched records whose metadata lookup found a work.
	Matched int

	// RelevanceDropped counts records removed by the relevance screen.
	RelevanceDropped int

	// RankingRan reports whether stage 3 executed; when false, Ranked is
	// meaningless and no stage-3 output should be produced.
	RankingRan bool

	// Ranked is the stage-3 output: records that passed every active
	// filter, annotated with metric values, in original relative order.
	Ranked []types.RankedRecord

	// Unified is the final joined output: records with a DOI, merged with
	// paper-level data. Empty when no paper client was configured.
	Unified []types.UnifiedRecord
}

// Run executes the pipeline for one query. Only stage-sequencing failures
// (the scrape itself) surface as errors; per-record lookup failures degrade
// to absent fields per the client contracts. Progress lines go to w.
func (p *Pipeline) Run(ctx context.Context, query string, pages []int, w io.Writer) (*Result, error) {
	res := &Result{}

	fmt.Fprintf(w, "--- Stage 1: result scrape ---\n")
	scraped, err := p.Source.Search(ctx, query, pages)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: scrape stage")
	}
	res.Scraped = scraped
	fmt.Fprintf(w, "Found %d results.\n", len(scraped))
	if len(scraped) == 0 {
		return res, nil
	}

	fmt.Fprintf(w, "--- Stage 2: metadata enrichment ---\n")
	titles := make([]string, len(scraped))
	for i, rec := range scraped {
		titles[i] = rec.Title
	}
	metas := p.Metadata.LookupBatch(ctx, titles)
	res.Enriched, res.Matched = merge(scraped, metas)
	fmt.Fprintf(w, "Metadata: %d / %d matched.\n", res.Matched, len(titles))

	enriched := res.Enriched
	if p.Relevance != nil {
		fmt.Fprintf(w, "--- Relevance screen ---\n")
		kept := relevance.Filter(ctx, p.Relevance, query, enriched)
		res.RelevanceDropped = len(enriched) - len(kept)
		enriched = kept
		fmt.Fprintf(w, "Relevance: kept %d / %d.\n", len(kept), len(res.Enriched))
	}

	if p.Filters.Active() {
		fmt.Fprintf(w, "--- Stage 3: ranking filter ---\n")
		res.RankingRan = true
		res.Ranked = p.rankAndFilter(ctx, enriched)
		fmt.Fprintf(w, "Filtered: %d / %d kept.\n", len(res.Ranked), len(enriched))
	} else {
		p.log.Debug("no ranking filters active, skipping ranking stage")
	}

	if p.Papers != nil {
		fmt.Fprintf(w, "--- Stage 4: unified join ---\n")
		base := res.Ranked
		if !res.RankingRan {
			base = make([]types.RankedRecord, len(enriched))
			for i, rec := range enriched {
				base[i].EnrichedRecord = rec
			}
		}
		res.Unified = p.unify(ctx, base)
		fmt.Fprintf(w, "Unified: %d records with a DOI.\n", len(res.Unified))
	}

	return res, nil
}

// unify joins records with per-paper data looked up by DOI. Records
// without a DOI are dropped; abstracts prefer the paper service's text
// over the enrichment stage's.
func (p *Pipeline) unify(ctx context.Context, records []types.RankedRecord) []types.UnifiedRecord {
	var dois []string
	for _, rec := range records {
		if rec.DOI != "" {
			dois = append(dois, rec.DOI)
		}
	}
	papers := p.Papers.LookupByDOI(ctx, dois)

	var out []types.UnifiedRecord
	for _, rec := range records {
		if rec.DOI == "" {
			p.log.Debug("no DOI, excluded from unified output", zap.String("title", rec.Title))
			continue
		}
		paper := papers[strings.ToLower(rec.DOI)]

		abstract := paper.Abstract
		if abstract == "" {
			abstract = rec.Abstract
		}
		articleURL := rec.ArticleURL
		if articleURL == "" {
			articleURL = paper.URL
		}
		date := rec.CrossrefDate
		if date == "" {
			date = rec.Year
		}

		out = append(out, types.UnifiedRecord{
			Title:      rec.Title,
			Author:     rec.Author,
			Date:       date,
			DOI:        rec.DOI,
			ArticleURL: articleURL,
			PDFURL:     paper.PDFURL,
			Abstract:   abstract,
			TLDR:       paper.TLDR,
			Journal:    rec.Journal,
			IF:         rec.ImpactFactor,
			JCI:        rec.JCI,
			SCI:        rec.SCI,
		})
	}
	return out
}

// merge combines scrape records with their positionally aligned metadata.
// An absent metadata entry contributes empty enrichment fields; the
// original fields are never touched.
func merge(scraped []types.ScrapeRecord, metas []*types.Metadata) ([]types.EnrichedRecord, int) {
	enriched := make([]types.EnrichedRecord, len(scraped))
	matched := 0
	for i, rec := range scraped {
		enriched[i].ScrapeRecord = rec
		meta := metas[i]
		if meta == nil {
			continue
		}
		matched++
		enriched[i].DOI = meta.DOI
		enriched[i].Journal = meta.Journal
		enriched[i].CrossrefAuthors = meta.Authors
		enriched[i].CrossrefDate = meta.Date
		enriched[i].Abstract = meta.Abstract
	}
	return enriched, matched
}

// rankAndFilter runs the sequential ranking stage: records without a
// journal or without ranking data are excluded, the rest are kept only if
// every active predicate passes, in original relative order.
func (p *Pipeline) rankAndFilter(ctx context.Context, records []types.EnrichedRecord) []types.RankedRecord {
	var kept []types.RankedRecord
	for _, rec := range records {
		if rec.Journal == "" {
			p.log.Debug("no journal, excluded", zap.String("title", rec.Title))
			continue
		}
		rd := p.Rankings.GetRank(ctx, rec.Journal)
		if rd == nil {
			p.log.Debug("no ranking for journal", zap.String("journal", rec.Journal))
			continue
		}

		m := metricSet{
			sciif:    rankings.GetMetric(rd, "sciif"),
			jci:      rankings.GetMetric(rd, "jci"),
			sci:      rankings.GetMetric(rd, "sci"),
			sciUpTop: rankings.GetMetric(rd, "sciUpTop"),
			sciBase:  rankings.GetMetric(rd, "sciBase"),
			sciUp:    rankings.GetMetric(rd, "sciUp"),
		}

		if !p.Filters.match(m) {
			continue
		}

		kept = append(kept, types.RankedRecord{
			EnrichedRecord: rec,
			ImpactFactor:   metricString(m.sciif),
			JCI:            metricString(m.jci),
			SCI:            metricString(m.sci),
			SCIUpTop:       metricString(m.sciUpTop),
			SCIBase:        metricString(m.sciBase),
			SCIUp:          metricString(m.sciUp),
		})
	}
	return kept
}
