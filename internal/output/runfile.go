// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package output

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.yaml.in/yaml/v3"
)

// RunFile is the on-disk summary of one pipeline run. It records the query,
// the parameters that produced the results, and per-stage counts, so a run
// directory is self-describing.
type RunFile struct {
	Query   RunQuery   `yaml:"query"`
	Config  RunConfig  `yaml:"config"`
	Summary RunSummary `yaml:"summary"`
}

// RunQuery stores the search terms in a serializable form.
type RunQuery struct {
	Keyword string `yaml:"keyword"`
	Pages   string `yaml:"pages"`
	YearLow int    `yaml:"year_low,omitempty"`
}

// RunConfig stores the settings that shaped the run.
type RunConfig struct {
	Source         string            `yaml:"source,omitempty"`
	Workers        int               `yaml:"crossref_workers"`
	Mailto         string            `yaml:"crossref_mailto,omitempty"`
	RelevanceModel string            `yaml:"relevance_model,omitempty"`
	Filters        map[string]string `yaml:"filters,omitempty"`
}

// RunSummary stores per-stage result counts and a timestamp.
type RunSummary struct {
	Scraped          int       `yaml:"scraped"`
	Matched          int       `yaml:"metadata_matched"`
	RelevanceDropped int       `yaml:"relevance_dropped,omitempty"`
	RankingRan       bool      `yaml:"ranking_ran"`
	Kept             int       `yaml:"kept,omitempty"`
	Timestamp        time.Time `yaml:"timestamp"`
}

// runFileName is the summary file written alongside the stage CSVs.
const runFileName = "run.yaml"

// WriteRunFile saves the run summary to dir as YAML.
func WriteRunFile(dir string, rf RunFile) error {
	if rf.Summary.Timestamp.IsZero() {
		rf.Summary.Timestamp = time.Now()
	}
	data, err := yaml.Marshal(&rf)
	if err != nil {
		return eris.Wrap(err, "output: marshal run file")
	}
	path := filepath.Join(dir, runFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "output: write %s", path)
	}
	return nil
}

// ReadRunFile loads a run summary back from dir.
func ReadRunFile(dir string) (*RunFile, error) {
	path := filepath.Join(dir, runFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "output: read %s", path)
	}
	var rf RunFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, eris.Wrapf(err, "output: parse %s", path)
	}
	return &rf, nil
}
