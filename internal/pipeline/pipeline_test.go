// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scholar-pipeline/internal/rankings"
	"github.com/pdiddy/scholar-pipeline/internal/semanticscholar"
	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

// --- fakes ---

type fakeSource struct {
	records []types.ScrapeRecord
	err     error
}

func (f *fakeSource) Search(_ context.Context, _ string, _ []int) ([]types.ScrapeRecord, error) {
	return f.records, f.err
}

type fakeMetadata struct {
	byTitle map[string]*types.Metadata
}

func (f *fakeMetadata) LookupBatch(_ context.Context, titles []string) []*types.Metadata {
	out := make([]*types.Metadata, len(titles))
	for i, title := range titles {
		out[i] = f.byTitle[title]
	}
	return out
}

type fakeRankings struct {
	byVenue map[string]*rankings.RankData
	calls   int
}

func (f *fakeRankings) GetRank(_ context.Context, venue string) *rankings.RankData {
	f.calls++
	return f.byVenue[venue]
}

func rankData(select_ map[string]any) *rankings.RankData {
	return &rankings.RankData{OfficialRank: rankings.OfficialRank{Select: select_}}
}

func fptr(v float64) *float64 { return &v }

func scraped(titles ...string) []types.ScrapeRecord {
	out := make([]types.ScrapeRecord, len(titles))
	for i, title := range titles {
		out[i].Title = title
	}
	return out
}

// --- merge / stage 2 ---

func TestRunEnrichesPositionally(t *testing.T) {
	source := &fakeSource{records: scraped("A", "B")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {DOI: "10.1/a", Journal: "J1", Authors: "Ada Lovelace"},
	}}

	p := New(source, metadata, nil, nil, nil, Filters{})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	require.Len(t, res.Enriched, 2)
	assert.Equal(t, "A", res.Enriched[0].Title)
	assert.Equal(t, "10.1/a", res.Enriched[0].DOI)
	assert.Equal(t, "J1", res.Enriched[0].Journal)

	// Absent lookup: original fields intact, enrichment fields empty.
	assert.Equal(t, "B", res.Enriched[1].Title)
	assert.Equal(t, "", res.Enriched[1].DOI)
	assert.Equal(t, "", res.Enriched[1].Journal)

	assert.Equal(t, 1, res.Matched)
	assert.False(t, res.RankingRan, "no filters: ranking stage must not run")
	assert.Nil(t, res.Ranked)
}

func TestRunPreservesScrapedFields(t *testing.T) {
	rec := types.ScrapeRecord{
		Title:      "A",
		Author:     "Someone",
		Year:       "2020",
		Venue:      "Scraped Venue",
		ArticleURL: "https://example.org/a",
		Citations:  "7",
		Snippet:    "snippet",
	}
	source := &fakeSource{records: []types.ScrapeRecord{rec}}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {Journal: "Resolved Journal"},
	}}

	p := New(source, metadata, nil, nil, nil, Filters{})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	require.Len(t, res.Enriched, 1)
	assert.Equal(t, rec, res.Enriched[0].ScrapeRecord, "enrichment must not mutate scraped fields")
	assert.Equal(t, "Resolved Journal", res.Enriched[0].Journal)
}

func TestRunEmptyScrape(t *testing.T) {
	p := New(&fakeSource{}, &fakeMetadata{}, nil, nil, nil, Filters{})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)
	assert.Empty(t, res.Scraped)
	assert.Empty(t, res.Enriched)
}

// --- stage 3 ---

func TestRunRankingFilter(t *testing.T) {
	source := &fakeSource{records: scraped("A", "B", "C", "D")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {Journal: "Good Journal"},
		"B": {Journal: "Weak Journal"},
		"C": {}, // no journal resolved
		"D": {Journal: "Unranked Journal"},
	}}
	ranks := &fakeRankings{byVenue: map[string]*rankings.RankData{
		"Good Journal": rankData(map[string]any{"sciif": "4.5", "sci": "Q1"}),
		"Weak Journal": rankData(map[string]any{"sciif": "1.2", "sci": "Q3"}),
	}}

	p := New(source, metadata, ranks, nil, nil, Filters{SCIIF: fptr(2.0)})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	assert.True(t, res.RankingRan)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "A", res.Ranked[0].Title)
	assert.Equal(t, "4.5", res.Ranked[0].ImpactFactor)
	assert.Equal(t, "Q1", res.Ranked[0].SCI)

	// "C" has no journal: excluded without a ranking call.
	assert.Equal(t, 3, ranks.calls)
}

func TestRunFilterConjunctionFailsClosed(t *testing.T) {
	source := &fakeSource{records: scraped("A")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {Journal: "J"},
	}}
	// sciif passes the threshold, jci is absent.
	ranks := &fakeRankings{byVenue: map[string]*rankings.RankData{
		"J": rankData(map[string]any{"sciif": 2.5}),
	}}

	p := New(source, metadata, ranks, nil, nil, Filters{SCIIF: fptr(2.0), JCI: fptr(1.0)})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	assert.True(t, res.RankingRan)
	assert.Empty(t, res.Ranked, "absent jci must exclude the record even though sciif passes")
}

func TestRunRankingPreservesOrder(t *testing.T) {
	source := &fakeSource{records: scraped("A", "B", "C")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {Journal: "J1"},
		"B": {Journal: "J2"},
		"C": {Journal: "J3"},
	}}
	ranks := &fakeRankings{byVenue: map[string]*rankings.RankData{
		"J1": rankData(map[string]any{"sci": "Q1"}),
		"J2": rankData(map[string]any{"sci": "Q2"}),
		"J3": rankData(map[string]any{"sci": "Q1 (top)"}),
	}}

	p := New(source, metadata, ranks, nil, nil, Filters{SCI: "Q1"})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	require.Len(t, res.Ranked, 2)
	assert.Equal(t, "A", res.Ranked[0].Title)
	assert.Equal(t, "C", res.Ranked[1].Title)
}

// --- relevance screen ---

type maskBackend struct{ keep []bool }

func (m *maskBackend) Assess(_ context.Context, _ string, _ []types.EnrichedRecord) ([]bool, error) {
	return m.keep, nil
}

func TestRunRelevanceScreen(t *testing.T) {
	source := &fakeSource{records: scraped("A", "B", "C")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{}}

	p := New(source, metadata, nil, nil, &maskBackend{keep: []bool{true, false, true}}, Filters{})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	assert.Len(t, res.Enriched, 3, "stage-2 output reports the full enriched set")
	assert.Equal(t, 1, res.RelevanceDropped)
}

func TestRunRelevanceFeedsRankingStage(t *testing.T) {
	source := &fakeSource{records: scraped("A", "B")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {Journal: "J"},
		"B": {Journal: "J"},
	}}
	ranks := &fakeRankings{byVenue: map[string]*rankings.RankData{
		"J": rankData(map[string]any{"sci": "Q1"}),
	}}

	p := New(source, metadata, ranks, nil, &maskBackend{keep: []bool{false, true}}, Filters{SCI: "Q1"})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "B", res.Ranked[0].Title)
}

// --- unified join ---

type fakePapers struct {
	byDOI   map[string]semanticscholar.Paper
	gotDOIs []string
}

func (f *fakePapers) LookupByDOI(_ context.Context, dois []string) map[string]semanticscholar.Paper {
	f.gotDOIs = dois
	return f.byDOI
}

func TestRunUnifiedJoin(t *testing.T) {
	source := &fakeSource{records: scraped("A", "B")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {DOI: "10.1/A", Journal: "J", Abstract: "enrichment abstract", Date: "2021-3-1"},
		"B": {Journal: "J"}, // matched but no DOI
	}}
	papers := &fakePapers{byDOI: map[string]semanticscholar.Paper{
		"10.1/a": {
			Abstract: "service abstract",
			TLDR:     "One sentence.",
			PDFURL:   "https://example.org/a.pdf",
		},
	}}

	p := New(source, metadata, nil, papers, nil, Filters{})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	// Only the DOI-bearing record is looked up and joined.
	assert.Equal(t, []string{"10.1/A"}, papers.gotDOIs)
	require.Len(t, res.Unified, 1)

	u := res.Unified[0]
	assert.Equal(t, "A", u.Title)
	assert.Equal(t, "service abstract", u.Abstract, "the paper service's abstract wins")
	assert.Equal(t, "One sentence.", u.TLDR)
	assert.Equal(t, "https://example.org/a.pdf", u.PDFURL)
	assert.Equal(t, "2021-3-1", u.Date)
}

func TestRunUnifiedAbstractFallback(t *testing.T) {
	source := &fakeSource{records: scraped("A")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {DOI: "10.1/a", Abstract: "enrichment abstract"},
	}}
	// Service knows nothing about the DOI.
	papers := &fakePapers{byDOI: map[string]semanticscholar.Paper{}}

	p := New(source, metadata, nil, papers, nil, Filters{})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	require.Len(t, res.Unified, 1)
	assert.Equal(t, "enrichment abstract", res.Unified[0].Abstract)
	assert.Equal(t, "", res.Unified[0].TLDR)
}

func TestRunUnifiedAfterRanking(t *testing.T) {
	source := &fakeSource{records: scraped("A", "B")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {DOI: "10.1/a", Journal: "Good Journal"},
		"B": {DOI: "10.1/b", Journal: "Weak Journal"},
	}}
	ranks := &fakeRankings{byVenue: map[string]*rankings.RankData{
		"Good Journal": rankData(map[string]any{"sciif": "4.5"}),
		"Weak Journal": rankData(map[string]any{"sciif": "1.0"}),
	}}
	papers := &fakePapers{byDOI: map[string]semanticscholar.Paper{}}

	p := New(source, metadata, ranks, papers, nil, Filters{SCIIF: fptr(2.0)})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)

	// The join consumes the filtered stage-3 output, metrics included.
	assert.Equal(t, []string{"10.1/a"}, papers.gotDOIs)
	require.Len(t, res.Unified, 1)
	assert.Equal(t, "A", res.Unified[0].Title)
	assert.Equal(t, "4.5", res.Unified[0].IF)
}

func TestRunNoPaperClientSkipsUnified(t *testing.T) {
	source := &fakeSource{records: scraped("A")}
	metadata := &fakeMetadata{byTitle: map[string]*types.Metadata{
		"A": {DOI: "10.1/a"},
	}}

	p := New(source, metadata, nil, nil, nil, Filters{})
	res, err := p.Run(context.Background(), "q", []int{1}, io.Discard)
	require.NoError(t, err)
	assert.Nil(t, res.Unified)
}

// --- Filters ---

func TestFiltersActive(t *testing.T) {
	assert.False(t, Filters{}.Active())
	assert.True(t, Filters{SCIIF: fptr(0)}.Active(), "threshold 0 is still a filter")
	assert.True(t, Filters{JCI: fptr(1)}.Active())
	assert.True(t, Filters{SCI: "Q1"}.Active())
	assert.True(t, Filters{SCIUp: "1"}.Active())
}

func TestFiltersMatch(t *testing.T) {
	tests := []struct {
		name string
		f    Filters
		m    metricSet
		want bool
	}{
		{"no filters", Filters{}, metricSet{}, true},
		{"numeric pass float", Filters{SCIIF: fptr(2.0)}, metricSet{sciif: 2.5}, true},
		{"numeric pass string", Filters{SCIIF: fptr(2.0)}, metricSet{sciif: "2.5"}, true},
		{"numeric below", Filters{SCIIF: fptr(2.0)}, metricSet{sciif: "1.9"}, false},
		{"numeric equal", Filters{SCIIF: fptr(2.0)}, metricSet{sciif: "2.0"}, true},
		{"numeric absent fails closed", Filters{SCIIF: fptr(2.0)}, metricSet{}, false},
		{"numeric garbage fails closed", Filters{SCIIF: fptr(2.0)}, metricSet{sciif: "n/a"}, false},
		{"substring pass", Filters{SCI: "Q1"}, metricSet{sci: "Q1 (top 5%)"}, true},
		{"substring miss", Filters{SCI: "Q1"}, metricSet{sci: "Q2"}, false},
		{"substring absent fails closed", Filters{SCI: "Q1"}, metricSet{}, false},
		{"substring of number", Filters{SCIUp: "2"}, metricSet{sciUp: 2.0}, true},
		{
			"conjunction all pass",
			Filters{SCIIF: fptr(2.0), SCI: "Q1"},
			metricSet{sciif: "3.0", sci: "Q1"},
			true,
		},
		{
			"conjunction one fails",
			Filters{SCIIF: fptr(2.0), SCI: "Q1"},
			metricSet{sciif: "3.0", sci: "Q2"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.match(tt.m))
		})
	}
}

func TestMetricString(t *testing.T) {
	assert.Equal(t, "", metricString(nil))
	assert.Equal(t, "2.5", metricString(2.5))
	assert.Equal(t, "Q1", metricString("Q1"))
}
