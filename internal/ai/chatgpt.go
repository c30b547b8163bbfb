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

// ChatGPT implements models.AIClient against the OpenAI chat completions API.
type ChatGPT struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewChatGPT(cfg config.ChatGPTConfig, timeout time.Duration) *ChatGPT {
	return &ChatGPT{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *ChatGPT) Model() string { return models.ModelChatGPT }

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (c *ChatGPT) TestPrompt(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model:    c.model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/chat/completions", c.baseURL)
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
		return "", fmt.Errorf("%w: chatgpt status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding chatgpt response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: chatgpt returned no choices", ErrInvalidResponse)
	}

	return out.Choices[0].Message.Content, nil
}

func (c *ChatGPT) FormatResponse(responseText, brandName string, competitors []string) models.ModelResponse {
	return Analyze(models.ModelChatGPT, responseText, brandName, competitors)
}

var _ models.AIClient = (*ChatGPT)(nil)
