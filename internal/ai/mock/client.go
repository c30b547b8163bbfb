// Package mock provides an in-memory models.AIClient for testing.
package mock

import (
	"context"

	"github.com/columbushq/columbus/internal/ai"
	"github.com/columbushq/columbus/pkg/models"
)

// Client satisfies models.AIClient for testing. Unset funcs fall back to
// canned behavior.
type Client struct {
	Model_         string
	TestPromptFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *Client) Model() string { return m.Model_ }

func (m *Client) TestPrompt(ctx context.Context, prompt string) (string, error) {
	if m.TestPromptFunc != nil {
		return m.TestPromptFunc(ctx, prompt)
	}
	return "Mock response mentioning nothing in particular.", nil
}

func (m *Client) FormatResponse(responseText, brandName string, competitors []string) models.ModelResponse {
	return ai.Analyze(m.Model_, responseText, brandName, competitors)
}

// NewClient returns a Client that always answers with the given response.
func NewClient(model, response string) *Client {
	return &Client{
		Model_: model,
		TestPromptFunc: func(_ context.Context, _ string) (string, error) {
			return response, nil
		},
	}
}

// NewFailingClient returns a Client whose TestPrompt always fails.
func NewFailingClient(model string, err error) *Client {
	return &Client{
		Model_: model,
		TestPromptFunc: func(_ context.Context, _ string) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutClient returns a Client that blocks until the context ends.
func NewTimeoutClient(model string) *Client {
	return &Client{
		Model_: model,
		TestPromptFunc: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ai.ErrAssistantTimeout
		},
	}
}

var _ models.AIClient = (*Client)(nil)
