// Package ai holds the assistant integrations. Every assistant is reached
// through the models.AIClient interface; nothing outside this package knows
// which HTTP API sits behind an identifier.
package ai

import (
	"log/slog"

	"github.com/columbushq/columbus/internal/config"
	"github.com/columbushq/columbus/pkg/models"
)

// NewClients constructs one client per configured assistant, keyed by model
// identifier. An assistant with no API key is skipped rather than failing
// startup: scans degrade to the assistants that are configured.
func NewClients(cfg config.AIConfig) map[string]models.AIClient {
	clients := make(map[string]models.AIClient)

	if cfg.ChatGPT.APIKey != "" {
		clients[models.ModelChatGPT] = NewChatGPT(cfg.ChatGPT, cfg.Timeout)
	}
	if cfg.Claude.APIKey != "" {
		clients[models.ModelClaude] = NewClaude(cfg.Claude, cfg.Timeout)
	}
	if cfg.Gemini.APIKey != "" {
		clients[models.ModelGemini] = NewGemini(cfg.Gemini, cfg.Timeout)
	}
	if cfg.Perplexity.APIKey != "" {
		clients[models.ModelPerplexity] = NewPerplexity(cfg.Perplexity, cfg.Timeout)
	}

	for _, model := range models.AllModels {
		if _, ok := clients[model]; !ok {
			slog.Warn("ai assistant not configured, scans will skip it", "model", model)
		}
	}

	return clients
}
