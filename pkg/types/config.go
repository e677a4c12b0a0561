// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "scholar-pipeline/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ScrapeConfig holds settings for the results-page scrape stage.
type ScrapeConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL overrides the default search engine URL (mirror sites).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Proxy is an optional proxy URL for page fetches.
	Proxy string `json:"proxy,omitempty" yaml:"proxy,omitempty" mapstructure:"proxy"`

	// YearLow restricts results to this year onwards (0 disables).
	YearLow int `json:"year_low" yaml:"year_low" mapstructure:"year_low"`

	// MaxConcurrentPages caps how many result pages are fetched at once (default 3).
	MaxConcurrentPages int `json:"max_concurrent_pages" yaml:"max_concurrent_pages" mapstructure:"max_concurrent_pages"`

	// CookieFile is the path of the persisted cookie jar. Empty disables
	// cookie loading.
	CookieFile string `json:"cookie_file,omitempty" yaml:"cookie_file,omitempty" mapstructure:"cookie_file"`
}

// CrossrefConfig holds settings for the metadata enrichment stage.
type CrossrefConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Mailto is the contact address attached to every request for polite
	// pool access. Leave empty rather than sending a placeholder.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty" mapstructure:"mailto"`

	// Workers is the size of the lookup worker pool (default 3).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// RankingConfig holds settings for the journal-ranking stage.
type RankingConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// SecretKey authenticates against the ranking service. Required when
	// any ranking filter is active.
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty" mapstructure:"secret_key"`

	// MinInterval is the minimum time between consecutive ranking requests
	// (default 600ms, just under 2 requests per second).
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval" mapstructure:"min_interval"`
}

// SemanticConfig holds settings for the Semantic Scholar batch lookup.
type SemanticConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey raises the service rate limit. Empty uses the anonymous tier.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// RelevanceConfig holds settings for the optional LLM relevance filter.
type RelevanceConfig struct {
	// Model is the model identifier used for relevance judgements.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Scrape    ScrapeConfig    `json:"scrape" yaml:"scrape" mapstructure:"scrape"`
	Crossref  CrossrefConfig  `json:"crossref" yaml:"crossref" mapstructure:"crossref"`
	Ranking   RankingConfig   `json:"ranking" yaml:"ranking" mapstructure:"ranking"`
	Semantic  SemanticConfig  `json:"semantic" yaml:"semantic" mapstructure:"semantic"`
	Relevance RelevanceConfig `json:"relevance" yaml:"relevance" mapstructure:"relevance"`
}
