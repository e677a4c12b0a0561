// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scholar

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

var (
	yearPattern    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	citedByPattern = regexp.MustCompile(`Cited by (\d+)`)
)

// ParseResults extracts result records from a search results page. Entries
// without a title are dropped; everything else degrades field by field, so
// a partially rendered result still yields a record.
func ParseResults(html string) ([]types.ScrapeRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var records []types.ScrapeRecord
	doc.Find("div.gs_r.gs_or.gs_scl").Each(func(_ int, item *goquery.Selection) {
		rec := types.ScrapeRecord{Citations: "0"}

		if title := item.Find("h3.gs_rt").First(); title.Length() > 0 {
			// Drop the [PDF]/[HTML]/[CITATION] badge spans.
			title.Find("span").Remove()
			if link := title.Find("a").First(); link.Length() > 0 {
				rec.Title = strings.TrimSpace(link.Text())
				rec.ArticleURL = link.AttrOr("href", "")
			} else {
				rec.Title = strings.TrimSpace(title.Text())
			}
		}

		if meta := item.Find("div.gs_a").First(); meta.Length() > 0 {
			parseByline(strings.TrimSpace(meta.Text()), &rec)
		}

		rec.Snippet = strings.TrimSpace(item.Find("div.gs_rs").First().Text())

		item.Find("div.gs_fl.gs_flb a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			text := strings.TrimSpace(link.Text())
			if !strings.Contains(text, "Cited by") {
				return true
			}
			if m := citedByPattern.FindStringSubmatch(text); m != nil {
				rec.Citations = m[1]
			}
			return false
		})

		if rec.Title != "" {
			records = append(records, rec)
		}
	})

	return records, nil
}

// parseByline splits the "authors - venue, year - publisher" metadata line.
func parseByline(text string, rec *types.ScrapeRecord) {
	parts := strings.Split(text, " - ")
	if len(parts) >= 1 {
		rec.Author = strings.TrimSpace(parts[0])
	}
	if len(parts) < 2 {
		return
	}

	venueYear := parts[1]
	if loc := yearPattern.FindStringIndex(venueYear); loc != nil {
		rec.Year = venueYear[loc[0]:loc[1]]
		rec.Venue = strings.TrimSuffix(strings.TrimSpace(venueYear[:loc[0]]), ",")
	} else {
		rec.Venue = strings.TrimSpace(venueYear)
	}
}
