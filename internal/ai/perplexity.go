package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/columbushq/columbus/internal/config"
	"github.com/columbushq/columbus/pkg/models"
)

// Perplexity implements models.AIClient against the Perplexity API, which
// speaks the OpenAI chat completions wire format.
type Perplexity struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewPerplexity(cfg config.PerplexityConfig, timeout time.Duration) *Perplexity {
	return &Perplexity{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Perplexity) Model() string { return models.ModelPerplexity }

func (c *Perplexity) TestPrompt(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model:    c.model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal perplexity request: %w", err)
	}

	u := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: perplexity status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding perplexity response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: perplexity returned no choices", ErrInvalidResponse)
	}

	return out.Choices[0].Message.Content, nil
}

func (c *Perplexity) FormatResponse(responseText, brandName string, competitors []string) models.ModelResponse {
	return Analyze(models.ModelPerplexity, responseText, brandName, competitors)
}

var _ models.AIClient = (*Perplexity)(nil)
