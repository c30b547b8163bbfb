// Package models contains shared data models used across the Columbus codebase.
package models

import (
	"context"
	"time"
)

// Model identifiers for the supported AI assistants.
const (
	ModelChatGPT    = "chatgpt"
	ModelClaude     = "claude"
	ModelGemini     = "gemini"
	ModelPerplexity = "perplexity"
)

// AllModels is the fixed set of assistants every scan runs against,
// in a stable order.
var AllModels = []string{ModelChatGPT, ModelClaude, ModelGemini, ModelPerplexity}

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// AIClient is the capability every AI assistant integration must implement.
// Never call a specific assistant directly; always go through this interface,
// and always guard TestPrompt with the rate limiter.
type AIClient interface {
	// TestPrompt submits the prompt text and returns the raw response.
	TestPrompt(ctx context.Context, prompt string) (string, error)
	// FormatResponse turns a raw response into structured visibility signals.
	FormatResponse(responseText, brandName string, competitors []string) ModelResponse
	// Model returns the assistant identifier (e.g. "chatgpt").
	Model() string
}

// ModelResponse is the structured outcome of testing one prompt against
// one assistant.
type ModelResponse struct {
	Model              string         `json:"model"`
	ResponseText       string         `json:"response_text"`
	BrandMentioned     bool           `json:"brand_mentioned"`
	CitationPresent    bool           `json:"citation_present"`
	Position           *int           `json:"position,omitempty"`
	Sentiment          string         `json:"sentiment"`
	CompetitorMentions []string       `json:"competitor_mentions"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	TestedAt           time.Time      `json:"tested_at"`
}

// CitedSource is a URL referenced inside an assistant response.
type CitedSource struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Position int    `json:"position"`
}
