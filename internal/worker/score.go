package worker

import "github.com/columbushq/columbus/pkg/models"

// Score averages per-response scores into a 0-100 visibility score.
func Score(responses []models.ModelResponse) int {
	if len(responses) == 0 {
		return 0
	}

	total := 0
	for _, r := range responses {
		total += scoreResponse(r)
	}
	return total / len(responses)
}

// scoreResponse weighs one response: the mention dominates, early placement
// and tone add on top, a citation counts even without a mention.
func scoreResponse(r models.ModelResponse) int {
	score := 0

	if r.BrandMentioned {
		score += 50

		switch r.Sentiment {
		case models.SentimentPositive:
			score += 20
		case models.SentimentNeutral:
			score += 10
		}

		if r.Position != nil && *r.Position >= 1 && *r.Position <= 3 {
			score += 30 - 5**r.Position
		}
	}

	if r.CitationPresent {
		score += 20
	}

	if score > 100 {
		score = 100
	}
	return score
}
