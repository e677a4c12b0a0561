// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists metadata lookup results across pipeline runs.
// Both matches and confirmed misses are stored, so a re-run of a query
// does not re-ask the metadata service for titles it has already resolved.
package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

// LookupCache is a SQLite-backed cache of title → metadata lookups.
type LookupCache struct {
	db *sql.DB
}

// Open opens or creates the cache database at path, creating the schema
// and any missing parent directories.
func Open(path string) (*LookupCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "store: creating cache directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, eris.Wrap(err, "store: opening cache database")
	}

	c := &LookupCache{db: db}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "store: creating schema")
	}
	return c, nil
}

// Close releases the database connection.
func (c *LookupCache) Close() error {
	return c.db.Close()
}

func (c *LookupCache) createSchema() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS lookups (
		title_key TEXT PRIMARY KEY,
		found INTEGER NOT NULL,
		payload TEXT,
		fetched_at TEXT NOT NULL
	)`)
	return err
}

// Get returns the cached metadata for title. The second return value
// reports whether the title has been looked up before at all; when it is
// true and the metadata is nil, the title is a confirmed miss.
func (c *LookupCache) Get(title string) (*types.Metadata, bool, error) {
	var found int
	var payload sql.NullString

	row := c.db.QueryRow(`SELECT found, payload FROM lookups WHERE title_key = ?`, Key(title))
	if err := row.Scan(&found, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "store: reading cache entry")
	}

	if found == 0 {
		return nil, true, nil
	}

	var meta types.Metadata
	if err := json.Unmarshal([]byte(payload.String), &meta); err != nil {
		// Treat a corrupt entry as uncached rather than failing the lookup.
		return nil, false, nil
	}
	return &meta, true, nil
}

// Put stores a lookup outcome for title. A nil meta records a confirmed miss.
func (c *LookupCache) Put(title string, meta *types.Metadata) error {
	found := 0
	var payload any
	if meta != nil {
		data, err := json.Marshal(meta)
		if err != nil {
			return eris.Wrap(err, "store: encoding metadata")
		}
		found = 1
		payload = string(data)
	}

	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO lookups (title_key, found, payload, fetched_at) VALUES (?, ?, ?, ?)`,
		Key(title), found, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return eris.Wrap(err, "store: writing cache entry")
	}
	return nil
}

// Key normalizes a title into a cache key: trimmed, lowercased, inner
// whitespace collapsed. Titles differing only in case or spacing resolve
// to the same work.
func Key(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
