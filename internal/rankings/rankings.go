// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rankings resolves journal-ranking metrics for venue names via the
// EasyScholar API. One Client owns its cache and its request pacing; lookups
// never fail loudly. A venue the service does not know is cached as a miss
// and reported as absent.
package rankings

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

// apiBase is the rank lookup endpoint. Declared as a var so tests can
// substitute an httptest server.
var apiBase = "https://www.easyscholar.cc/open/getPublicationRank"

const (
	defaultTimeout = 10 * time.Second

	// defaultMinInterval keeps the client just under the service's
	// 2-requests-per-second limit.
	defaultMinInterval = 600 * time.Millisecond
)

// RankData is the ranking payload for one venue. Metric lookups consult the
// curated "select" scope first and fall back to the full "all" scope.
type RankData struct {
	OfficialRank OfficialRank `json:"officialRank"`
}

// OfficialRank holds the two metric scopes of a ranking response.
type OfficialRank struct {
	Select map[string]any `json:"select"`
	All    map[string]any `json:"all"`
}

// Client queries the ranking API, rate-limited and cached per venue.
// It is safe for concurrent use; the limiter serializes request pacing and
// the cache is lock-guarded.
type Client struct {
	http      *http.Client
	secretKey string
	agent     string
	limiter   *rate.Limiter
	log       *zap.Logger

	mu sync.Mutex
	// cache maps trimmed venue name to its ranking. A present key with a
	// nil value is a confirmed miss; an absent key has never been queried.
	cache map[string]*RankData
}

// New builds a Client from cfg.
func New(cfg types.RankingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = defaultMinInterval
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = "scholar-pipeline/0.1"
	}

	return &Client{
		http:      &http.Client{Timeout: timeout},
		secretKey: cfg.SecretKey,
		agent:     agent,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		log:       zap.L().Named("rankings"),
		cache:     make(map[string]*RankData),
	}
}

// GetRank returns the ranking for a venue, or nil when the venue is empty,
// unknown to the service, or the request failed. Results, including
// confirmed misses, are cached for the lifetime of the Client, so a cache
// hit makes no network call and does not consume rate budget.
func (c *Client) GetRank(ctx context.Context, venue string) *RankData {
	venue = strings.TrimSpace(venue)
	if venue == "" {
		return nil
	}

	c.mu.Lock()
	if data, ok := c.cache[venue]; ok {
		c.mu.Unlock()
		return data
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	data := c.fetch(ctx, venue)

	c.mu.Lock()
	c.cache[venue] = data
	c.mu.Unlock()
	return data
}

func (c *Client) fetch(ctx context.Context, venue string) *RankData {
	params := url.Values{
		"secretKey":       {c.secretKey},
		"publicationName": {venue},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.agent)

	c.log.Debug("querying ranking service", zap.String("venue", venue))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("ranking request failed", zap.String("venue", venue), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.log.Warn("ranking service rejected request",
			zap.String("venue", venue),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	var rr rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		c.log.Warn("malformed ranking response", zap.String("venue", venue), zap.Error(err))
		return nil
	}
	if rr.Code != 200 {
		c.log.Debug("no ranking for venue",
			zap.String("venue", venue),
			zap.Int("code", rr.Code),
			zap.String("msg", rr.Msg))
		return nil
	}
	return rr.Data
}

// GetMetric extracts a metric value from rank data: the "select" scope
// first, then "all". It returns nil when rd is nil, when the ranked-metric
// section is missing, or when the key appears in neither scope.
func GetMetric(rd *RankData, key string) any {
	if rd == nil {
		return nil
	}
	if val, ok := rd.OfficialRank.Select[key]; ok && val != nil {
		return val
	}
	if val, ok := rd.OfficialRank.All[key]; ok && val != nil {
		return val
	}
	return nil
}

type rankResponse struct {
	Code int       `json:"code"`
	Msg  string    `json:"msg"`
	Data *RankData `json:"data"`
}
