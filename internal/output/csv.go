// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package output writes the per-stage result files of a pipeline run:
// one CSV per completed stage plus a YAML run summary.
package output

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// Stage file names, written into the run directory in pipeline order.
const (
	ScrapeFile  = "1_scholar.csv"
	EnrichFile  = "2_crossref.csv"
	RankingFile = "3_rankings.csv"
	UnifiedFile = "4_unified.csv"
)

// utf8BOM prefixes every CSV so spreadsheet tools detect the encoding.
const utf8BOM = "\uFEFF"

// WriteCSV writes records to path as a UTF-8 CSV with a BOM and a header
// row derived from the record type's csv tags. records must be a non-empty
// slice of structs; callers skip the file entirely when a stage produced
// no rows.
func WriteCSV(path string, records any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "output: create %s", path)
	}
	defer f.Close()

	if _, err := f.WriteString(utf8BOM); err != nil {
		return eris.Wrapf(err, "output: write BOM to %s", path)
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	if err := enc.Encode(records); err != nil {
		return eris.Wrapf(err, "output: encode %s", path)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "output: flush %s", path)
	}
	return f.Close()
}

// RunDir creates the per-run output directory under base and returns its
// path. name should already be filesystem-safe.
func RunDir(base, name string) (string, error) {
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "output: create run directory %s", dir)
	}
	return dir, nil
}
