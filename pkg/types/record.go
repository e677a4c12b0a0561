// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the scholar-pipeline stages.
package types

// ScrapeRecord is one search result as scraped from the results page.
// All fields are strings so a record round-trips through CSV unchanged.
type ScrapeRecord struct {
	// Title is the article title. It may be empty for malformed entries;
	// downstream stages correlate by position, never by title text.
	Title string `csv:"title" json:"title" yaml:"title"`

	// Author is the author line as shown on the results page.
	Author string `csv:"author" json:"author" yaml:"author"`

	// Year is the publication year if one could be parsed.
	Year string `csv:"year" json:"year" yaml:"year"`

	// Venue is the journal or outlet name as shown on the results page.
	Venue string `csv:"venue" json:"venue" yaml:"venue"`

	// ArticleURL links to the article landing page.
	ArticleURL string `csv:"article_url" json:"article_url" yaml:"article_url"`

	// Citations is the citation count ("0" when none was shown).
	Citations string `csv:"citations" json:"citations" yaml:"citations"`

	// Snippet is the result preview text.
	Snippet string `csv:"snippet" json:"snippet" yaml:"snippet"`
}

// EnrichedRecord is a ScrapeRecord after bibliographic enrichment. The
// embedded ScrapeRecord is carried verbatim; enrichment only adds fields.
// When the lookup found no match the added fields are all empty.
type EnrichedRecord struct {
	ScrapeRecord `yaml:",inline"`

	DOI             string `csv:"doi" json:"doi" yaml:"doi"`
	Journal         string `csv:"journal" json:"journal" yaml:"journal"`
	CrossrefAuthors string `csv:"crossref_authors" json:"crossref_authors" yaml:"crossref_authors"`
	CrossrefDate    string `csv:"crossref_date" json:"crossref_date" yaml:"crossref_date"`
	Abstract        string `csv:"abstract" json:"abstract" yaml:"abstract"`
}

// RankedRecord is an EnrichedRecord that passed the ranking filters,
// annotated with the fetched metric values ("" where the service had none).
type RankedRecord struct {
	EnrichedRecord `yaml:",inline"`

	ImpactFactor string `csv:"IF" json:"IF" yaml:"IF"`
	JCI          string `csv:"JCI" json:"JCI" yaml:"JCI"`
	SCI          string `csv:"SCI" json:"SCI" yaml:"SCI"`
	SCIUpTop     string `csv:"sciUpTop" json:"sciUpTop" yaml:"sciUpTop"`
	SCIBase      string `csv:"sciBase" json:"sciBase" yaml:"sciBase"`
	SCIUp        string `csv:"sciUp" json:"sciUp" yaml:"sciUp"`
}

// UnifiedRecord is the final joined row: a ranked (or enriched) record
// merged with paper-level data looked up by DOI. Records without a DOI
// never reach this shape.
type UnifiedRecord struct {
	Title      string `csv:"title" json:"title" yaml:"title"`
	Author     string `csv:"author" json:"author" yaml:"author"`
	Date       string `csv:"date" json:"date" yaml:"date"`
	DOI        string `csv:"doi" json:"doi" yaml:"doi"`
	ArticleURL string `csv:"article_url" json:"article_url" yaml:"article_url"`
	PDFURL     string `csv:"pdf_url" json:"pdf_url" yaml:"pdf_url"`
	Abstract   string `csv:"abstract" json:"abstract" yaml:"abstract"`
	TLDR       string `csv:"tldr" json:"tldr" yaml:"tldr"`
	Journal    string `csv:"journal" json:"journal" yaml:"journal"`
	IF         string `csv:"IF" json:"IF" yaml:"IF"`
	JCI        string `csv:"JCI" json:"JCI" yaml:"JCI"`
	SCI        string `csv:"SCI" json:"SCI" yaml:"SCI"`
}

// Metadata is the bibliographic record resolved for one title. A nil
// *Metadata means the lookup failed or matched no candidate.
type Metadata struct {
	// DOI is the resolved digital object identifier.
	DOI string `json:"doi" yaml:"doi"`

	// Journal is the first container title of the matched work.
	Journal string `json:"journal" yaml:"journal"`

	// Authors is the author list formatted "Given Family" and joined with ", ".
	Authors string `json:"authors" yaml:"authors"`

	// Date is the published date parts joined with "-" (e.g. "2023-11-7").
	Date string `json:"date" yaml:"date"`

	// Abstract is the abstract with markup tags stripped.
	Abstract string `json:"abstract" yaml:"abstract"`

	// MatchedTitle is the title of the matched work, for audit against the
	// scraped title.
	MatchedTitle string `json:"matched_title" yaml:"matched_title"`
}
