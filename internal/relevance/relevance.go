// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance screens enriched records for topical relevance to the
// search query using a language model. The stage is advisory: it can only
// narrow the record set, and any backend failure keeps every record rather
// than losing enrichment work.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pdiddy/scholar-pipeline/pkg/types"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// maxAbstractChars bounds how much abstract text goes into the prompt.
const maxAbstractChars = 400

// Backend judges which records are relevant to the query. Implementations
// return one verdict per record, positionally aligned with the input.
type Backend interface {
	Assess(ctx context.Context, query string, records []types.EnrichedRecord) ([]bool, error)
}

// Filter applies the backend's verdict mask, preserving record order.
// A backend error fails open: all records are kept and a warning is logged.
func Filter(ctx context.Context, backend Backend, query string, records []types.EnrichedRecord) []types.EnrichedRecord {
	if len(records) == 0 {
		return records
	}

	keep, err := backend.Assess(ctx, query, records)
	if err != nil || len(keep) != len(records) {
		zap.L().Named("relevance").Warn("relevance screening failed, keeping all records", zap.Error(err))
		return records
	}

	var kept []types.EnrichedRecord
	for i, rec := range records {
		if keep[i] {
			kept = append(kept, rec)
		}
	}
	return kept
}

// AnthropicBackend judges relevance with a single model call per batch.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropicBackend builds a backend from cfg. The API key is required.
func NewAnthropicBackend(cfg types.RelevanceConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, eris.New("relevance: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &AnthropicBackend{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  model,
	}, nil
}

// Assess sends the query and a numbered record list to the model and parses
// the returned JSON index array into a keep mask.
func (b *AnthropicBackend) Assess(ctx context.Context, query string, records []types.EnrichedRecord) ([]bool, error) {
	prompt := buildPrompt(query, records)

	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "relevance: model request")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	indices, err := parseIndices(text.String())
	if err != nil {
		return nil, err
	}

	keep := make([]bool, len(records))
	for _, idx := range indices {
		if idx >= 0 && idx < len(records) {
			keep[idx] = true
		}
	}
	return keep, nil
}

func buildPrompt(query string, records []types.EnrichedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You screen academic search results for relevance.\n\n")
	fmt.Fprintf(&b, "Research topic: %s\n\n", query)
	fmt.Fprintf(&b, "Results:\n")
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s\n", i, rec.Title)
		if rec.Abstract != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(rec.Abstract, maxAbstractChars))
		}
	}
	fmt.Fprintf(&b, "\nReply with ONLY a JSON array of the indices of results that are ")
	fmt.Fprintf(&b, "relevant to the research topic, e.g. [0, 2, 5]. No other text.")
	return b.String()
}

// parseIndices extracts the JSON index array, tolerating surrounding prose.
func parseIndices(text string) ([]int, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, eris.Errorf("relevance: no index array in model reply: %q", truncate(text, 120))
	}

	var indices []int
	if err := json.Unmarshal([]byte(text[start:end+1]), &indices); err != nil {
		return nil, eris.Wrap(err, "relevance: parsing index array")
	}
	return indices, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
