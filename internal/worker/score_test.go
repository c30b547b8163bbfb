package worker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/columbushq/columbus/internal/worker"
	"github.com/columbushq/columbus/pkg/models"
)

func intPtr(v int) *int { return &v }

func TestScore_SingleResponses(t *testing.T) {
	tests := []struct {
		name string
		resp models.ModelResponse
		want int
	}{
		{
			name: "no signals",
			resp: models.ModelResponse{Sentiment: models.SentimentNeutral},
			want: 0,
		},
		{
			name: "citation without mention",
			resp: models.ModelResponse{CitationPresent: true, Sentiment: models.SentimentNeutral},
			want: 20,
		},
		{
			name: "plain mention",
			resp: models.ModelResponse{BrandMentioned: true, Sentiment: models.SentimentNeutral},
			want: 60,
		},
		{
			name: "negative mention",
			resp: models.ModelResponse{BrandMentioned: true, Sentiment: models.SentimentNegative},
			want: 50,
		},
		{
			name: "positive mention in third sentence",
			resp: models.ModelResponse{
				BrandMentioned: true,
				Sentiment:      models.SentimentPositive,
				Position:       intPtr(3),
			},
			want: 85,
		},
		{
			name: "late mention earns no position bonus",
			resp: models.ModelResponse{
				BrandMentioned: true,
				Sentiment:      models.SentimentNeutral,
				Position:       intPtr(7),
			},
			want: 60,
		},
		{
			name: "everything caps at 100",
			resp: models.ModelResponse{
				BrandMentioned:  true,
				CitationPresent: true,
				Sentiment:       models.SentimentPositive,
				Position:        intPtr(1),
			},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, worker.Score([]models.ModelResponse{tt.resp}))
		})
	}
}

func TestScore_Averages(t *testing.T) {
	responses := []models.ModelResponse{
		{BrandMentioned: true, Sentiment: models.SentimentNeutral}, // 60
		{Sentiment: models.SentimentNeutral},                       // 0
	}
	assert.Equal(t, 30, worker.Score(responses))
}

func TestScore_Empty(t *testing.T) {
	assert.Equal(t, 0, worker.Score(nil))
}
