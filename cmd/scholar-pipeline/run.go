// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scholar-pipeline/internal/crossref"
	"github.com/pdiddy/scholar-pipeline/internal/openalex"
	"github.com/pdiddy/scholar-pipeline/internal/output"
	"github.com/pdiddy/scholar-pipeline/internal/pipeline"
	"github.com/pdiddy/scholar-pipeline/internal/rankings"
	"github.com/pdiddy/scholar-pipeline/internal/relevance"
	"github.com/pdiddy/scholar-pipeline/internal/scholar"
	"github.com/pdiddy/scholar-pipeline/internal/semanticscholar"
	"github.com/pdiddy/scholar-pipeline/internal/store"
	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run [keyword...]",
	Short: "Run the retrieval pipeline for a search keyword",
	Long: `Run scrapes result pages for the keyword, enriches each result with
Crossref metadata, and, when any ranking filter flag is set, filters the
results by journal ranking. Stage outputs are written as CSV files into a
timestamped directory under --output.

Ranking filters combine conjunctively: a record is kept only if every
active filter passes. Records whose metric is missing are excluded.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().String("pages", "1", `result pages to scrape ("3" or "1-5")`)
	runCmd.Flags().Int("ylo", time.Now().Year()-5, "only include results from this year onwards (0 disables)")
	runCmd.Flags().String("output", "output", "base directory for run output")
	runCmd.Flags().String("proxy", "", "proxy URL for scrape requests")
	runCmd.Flags().String("mirror", "", "alternate search engine base URL")
	runCmd.Flags().Int("workers", 0, "metadata lookup workers (default 3)")
	runCmd.Flags().String("mailto", "", "contact email sent with metadata lookups")
	runCmd.Flags().String("cache", "", "metadata lookup cache file (empty disables)")

	runCmd.Flags().String("easyscholar-key", "", "ranking service API key (or .secrets/easyscholar-api-key)")
	runCmd.Flags().Float64("sciif", 0, "keep records with impact factor >= this value")
	runCmd.Flags().Float64("jci", 0, "keep records with JCI >= this value")
	runCmd.Flags().String("sci", "", "keep records whose SCI quartile contains this string")
	runCmd.Flags().String("sciuptop", "", "keep records whose CAS top-journal flag contains this string")
	runCmd.Flags().String("scibase", "", "keep records whose CAS base tier contains this string")
	runCmd.Flags().String("sciup", "", "keep records whose CAS upgraded tier contains this string")

	runCmd.Flags().Bool("llm-filter", false, "screen results for relevance with an LLM before ranking")
	runCmd.Flags().String("model", "", "model used by --llm-filter")

	runCmd.Flags().String("source", "scholar", `result source: "scholar" (page scrape) or "openalex" (API)`)
	runCmd.Flags().Bool("unified", false, "join results with Semantic Scholar data (abstract, TLDR, PDF link) into a final CSV")
	runCmd.Flags().String("s2-key", "", "Semantic Scholar API key (or .secrets/semantic-scholar-api-key)")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide a search keyword")
	}
	keyword := strings.Join(args, " ")

	pagesArg, _ := cmd.Flags().GetString("pages")
	pages, err := scholar.ParsePageRange(pagesArg)
	if err != nil {
		return err
	}

	filters := filtersFromFlags(cmd)
	rankingKey := secretDefault("easyscholar-api-key", flagString(cmd, "easyscholar-key"))
	if filters.Active() && rankingKey == "" {
		return fmt.Errorf("ranking filters require an API key: pass --easyscholar-key or create .secrets/easyscholar-api-key")
	}

	mailto := secretDefault("crossref-mailto", flagString(cmd, "mailto"))

	var source scholar.Source
	switch flagString(cmd, "source") {
	case "scholar":
		source, err = scholar.NewHTTPSource(types.ScrapeConfig{
			BaseURL:    flagString(cmd, "mirror"),
			Proxy:      flagString(cmd, "proxy"),
			YearLow:    flagInt(cmd, "ylo"),
			CookieFile: cookieFile(),
		})
		if err != nil {
			return err
		}
	case "openalex":
		source = openalex.New(types.ScrapeConfig{
			YearLow: flagInt(cmd, "ylo"),
		}, mailto)
	default:
		return fmt.Errorf("unknown --source %q (want \"scholar\" or \"openalex\")", flagString(cmd, "source"))
	}

	var cache crossref.Cache
	if path := flagString(cmd, "cache"); path != "" {
		c, err := store.Open(path)
		if err != nil {
			return err
		}
		defer c.Close()
		cache = c
	}
	metadata := crossref.New(types.CrossrefConfig{
		Mailto:  mailto,
		Workers: flagInt(cmd, "workers"),
	}, cache)

	var rankClient pipeline.RankClient
	if filters.Active() {
		rankClient = rankings.New(types.RankingConfig{SecretKey: rankingKey})
	}

	var paperClient pipeline.PaperClient
	if unified, _ := cmd.Flags().GetBool("unified"); unified {
		paperClient = semanticscholar.New(types.SemanticConfig{
			APIKey: secretDefault("semantic-scholar-api-key", flagString(cmd, "s2-key")),
		})
	}

	var relevanceBackend relevance.Backend
	if llm, _ := cmd.Flags().GetBool("llm-filter"); llm {
		backend, err := relevance.NewAnthropicBackend(types.RelevanceConfig{
			Model:  flagString(cmd, "model"),
			APIKey: secretDefault("anthropic-api-key", os.Getenv("ANTHROPIC_API_KEY")),
		})
		if err != nil {
			return err
		}
		relevanceBackend = backend
	}

	p := pipeline.New(source, metadata, rankClient, paperClient, relevanceBackend, filters)
	res, err := p.Run(cmd.Context(), keyword, pages, os.Stdout)
	if err != nil {
		return err
	}
	if len(res.Scraped) == 0 {
		return fmt.Errorf("no results scraped; the search engine may be blocking requests (try 'cookies import' or --proxy)")
	}

	dir, err := output.RunDir(flagString(cmd, "output"), runName(keyword))
	if err != nil {
		return err
	}
	if err := writeResults(dir, res); err != nil {
		return err
	}
	if err := writeRunFile(cmd, dir, keyword, pagesArg, filters, res); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Results written to %s\n", dir)
	return nil
}

// filtersFromFlags reads the ranking filter flags. Changed() keeps
// "threshold 0" distinct from "flag not given" for the numeric filters.
func filtersFromFlags(cmd *cobra.Command) pipeline.Filters {
	f := pipeline.Filters{
		SCI:      flagString(cmd, "sci"),
		SCIUpTop: flagString(cmd, "sciuptop"),
		SCIBase:  flagString(cmd, "scibase"),
		SCIUp:    flagString(cmd, "sciup"),
	}
	if cmd.Flags().Changed("sciif") {
		v, _ := cmd.Flags().GetFloat64("sciif")
		f.SCIIF = &v
	}
	if cmd.Flags().Changed("jci") {
		v, _ := cmd.Flags().GetFloat64("jci")
		f.JCI = &v
	}
	return f
}

func writeResults(dir string, res *pipeline.Result) error {
	if err := output.WriteCSV(dir+"/"+output.ScrapeFile, res.Scraped); err != nil {
		return err
	}
	if err := output.WriteCSV(dir+"/"+output.EnrichFile, res.Enriched); err != nil {
		return err
	}
	if res.RankingRan && len(res.Ranked) > 0 {
		if err := output.WriteCSV(dir+"/"+output.RankingFile, res.Ranked); err != nil {
			return err
		}
	}
	if len(res.Unified) > 0 {
		if err := output.WriteCSV(dir+"/"+output.UnifiedFile, res.Unified); err != nil {
			return err
		}
	}
	return nil
}

func writeRunFile(cmd *cobra.Command, dir, keyword, pages string, filters pipeline.Filters, res *pipeline.Result) error {
	rf := output.RunFile{
		Query: output.RunQuery{
			Keyword: keyword,
			Pages:   pages,
			YearLow: flagInt(cmd, "ylo"),
		},
		Config: output.RunConfig{
			Source:  flagString(cmd, "source"),
			Workers: flagInt(cmd, "workers"),
			Mailto:  secretDefault("crossref-mailto", flagString(cmd, "mailto")),
			Filters: filterSummary(filters),
		},
		Summary: output.RunSummary{
			Scraped:          len(res.Scraped),
			Matched:          res.Matched,
			RelevanceDropped: res.RelevanceDropped,
			RankingRan:       res.RankingRan,
			Kept:             len(res.Ranked),
		},
	}
	if llm, _ := cmd.Flags().GetBool("llm-filter"); llm {
		rf.Config.RelevanceModel = flagString(cmd, "model")
	}
	return output.WriteRunFile(dir, rf)
}

func filterSummary(f pipeline.Filters) map[string]string {
	out := map[string]string{}
	if f.SCIIF != nil {
		out["sciif"] = strconv.FormatFloat(*f.SCIIF, 'g', -1, 64)
	}
	if f.JCI != nil {
		out["jci"] = strconv.FormatFloat(*f.JCI, 'g', -1, 64)
	}
	for key, v := range map[string]string{
		"sci": f.SCI, "sciUpTop": f.SCIUpTop, "sciBase": f.SCIBase, "sciUp": f.SCIUp,
	} {
		if v != "" {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// slugPattern matches characters unsafe in a directory name.
var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// runName builds the per-run directory name: a timestamp plus a slug of
// the keyword.
func runName(keyword string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(keyword), "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return time.Now().Format("20060102_150405") + "_" + slug
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func flagInt(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}

// cookieFile resolves the persisted cookie jar path; scraping proceeds
// without cookies when the config directory cannot be determined.
func cookieFile() string {
	path, err := scholar.DefaultCookiePath()
	if err != nil {
		return ""
	}
	return path
}
