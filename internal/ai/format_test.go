package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/columbushq/columbus/pkg/models"
)

func TestAnalyze_MentionAndPosition(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantMention  bool
		wantPosition *int
	}{
		{
			name:         "first sentence",
			text:         "Acme is a strong option. Others exist too.",
			wantMention:  true,
			wantPosition: intPtr(1),
		},
		{
			name:         "third sentence",
			text:         "Many tools exist. Some are niche. Acme covers most needs.",
			wantMention:  true,
			wantPosition: intPtr(3),
		},
		{
			name:         "case insensitive",
			text:         "I would start with ACME here.",
			wantMention:  true,
			wantPosition: intPtr(1),
		},
		{
			name:        "absent",
			text:        "There are several analytics platforms worth a look.",
			wantMention: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Analyze(models.ModelChatGPT, tt.text, "Acme", nil)
			assert.Equal(t, tt.wantMention, resp.BrandMentioned)
			if tt.wantPosition == nil {
				assert.Nil(t, resp.Position)
			} else {
				require.NotNil(t, resp.Position)
				assert.Equal(t, *tt.wantPosition, *resp.Position)
			}
		})
	}
}

func TestAnalyze_Sentiment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "positive keywords near the brand",
			text: "Acme is an excellent and reliable choice.",
			want: models.SentimentPositive,
		},
		{
			name: "negative keywords near the brand",
			text: "Acme felt slow and expensive in our tests.",
			want: models.SentimentNegative,
		},
		{
			name: "no keywords",
			text: "Acme handles event ingestion.",
			want: models.SentimentNeutral,
		},
		{
			name: "keywords outside the brand sentence do not count",
			text: "Acme handles ingestion. Rival is the best and most powerful tool.",
			want: models.SentimentNeutral,
		},
		{
			name: "balanced keywords stay neutral",
			text: "Acme is powerful but expensive.",
			want: models.SentimentNeutral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Analyze(models.ModelClaude, tt.text, "Acme", nil)
			assert.Equal(t, tt.want, resp.Sentiment)
		})
	}
}

func TestAnalyze_UnmentionedBrandIsNeutral(t *testing.T) {
	resp := Analyze(models.ModelGemini, "The best tool wins.", "Acme", nil)
	assert.False(t, resp.BrandMentioned)
	assert.Equal(t, models.SentimentNeutral, resp.Sentiment)
}

func TestExtractCitations(t *testing.T) {
	text := "See [Acme docs](https://acme.test/docs) and https://example.com/guide. " +
		"The docs again: https://acme.test/docs"

	sources := ExtractCitations(text)
	require.Len(t, sources, 2)

	assert.Equal(t, "https://acme.test/docs", sources[0].URL)
	assert.Equal(t, "Acme docs", sources[0].Title)
	assert.Equal(t, 1, sources[0].Position)

	// Bare URL with the trailing period stripped, deduped against the link.
	assert.Equal(t, "https://example.com/guide", sources[1].URL)
	assert.Empty(t, sources[1].Title)
	assert.Equal(t, 2, sources[1].Position)
}

func TestExtractCitations_None(t *testing.T) {
	assert.Empty(t, ExtractCitations("No sources were given."))
}

func TestAnalyze_CompetitorMentions(t *testing.T) {
	resp := Analyze(models.ModelPerplexity,
		"Rival and beta are both common picks.", "Acme",
		[]string{"Rival", "Beta", "Gamma"})

	assert.Equal(t, []string{"Rival", "Beta"}, resp.CompetitorMentions)
	assert.False(t, resp.CitationPresent)
}

func TestAnalyze_SetsModelAndText(t *testing.T) {
	resp := Analyze(models.ModelChatGPT, "Acme works.", "Acme", nil)
	assert.Equal(t, models.ModelChatGPT, resp.Model)
	assert.Equal(t, "Acme works.", resp.ResponseText)
	assert.False(t, resp.TestedAt.IsZero())
}

func intPtr(v int) *int { return &v }
