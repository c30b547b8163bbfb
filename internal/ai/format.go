package ai

import (
	"regexp"
	"strings"
	"time"

	"github.com/columbushq/columbus/pkg/models"
)

// Keyword lists for rule-based sentiment. Applied to the sentences that
// mention the brand, not the whole response.
var (
	positiveWords = []string{
		"best", "excellent", "great", "top", "leading", "premier",
		"recommended", "popular", "trusted", "reliable", "innovative",
		"powerful", "effective", "superior", "outstanding",
	}
	negativeWords = []string{
		"worst", "poor", "bad", "limited", "lacking", "expensive",
		"slow", "difficult", "complicated", "unreliable", "outdated",
	}
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	markdownLink  = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	plainURL      = regexp.MustCompile(`https?://[^\s<>"\)\]]+`)
)

// Analyze derives structured visibility signals from a raw assistant
// response. It is deliberately rule-based: deterministic, cheap, and the
// same for every assistant.
func Analyze(model, responseText, brandName string, competitors []string) models.ModelResponse {
	mentioned, position := extractMention(responseText, brandName)

	sentiment := models.SentimentNeutral
	if mentioned {
		sentiment = analyzeSentiment(responseText, brandName)
	}

	citations := ExtractCitations(responseText)

	return models.ModelResponse{
		Model:              model,
		ResponseText:       responseText,
		BrandMentioned:     mentioned,
		CitationPresent:    len(citations) > 0,
		Position:           position,
		Sentiment:          sentiment,
		CompetitorMentions: extractCompetitorMentions(responseText, competitors),
		TestedAt:           time.Now().UTC(),
	}
}

// extractMention reports whether the brand appears, and if so the 1-based
// ordinal of the first sentence that names it.
func extractMention(responseText, brandName string) (bool, *int) {
	if brandName == "" {
		return false, nil
	}

	lowerText := strings.ToLower(responseText)
	lowerBrand := strings.ToLower(brandName)
	if !strings.Contains(lowerText, lowerBrand) {
		return false, nil
	}

	for i, sentence := range sentenceSplit.Split(lowerText, -1) {
		if strings.Contains(sentence, lowerBrand) {
			pos := i + 1
			return true, &pos
		}
	}

	// Brand present but the splitter ate it (e.g. inside a trailing
	// fragment). Mentioned with no position beats a wrong position.
	return true, nil
}

// analyzeSentiment counts positive and negative keywords in the sentences
// that mention the brand.
func analyzeSentiment(responseText, brandName string) string {
	lowerBrand := strings.ToLower(brandName)

	var positive, negative int
	for _, sentence := range sentenceSplit.Split(strings.ToLower(responseText), -1) {
		if !strings.Contains(sentence, lowerBrand) {
			continue
		}
		for _, w := range positiveWords {
			if strings.Contains(sentence, w) {
				positive++
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(sentence, w) {
				negative++
			}
		}
	}

	switch {
	case positive > negative:
		return models.SentimentPositive
	case negative > positive:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// ExtractCitations collects cited URLs: markdown links first, then bare
// URLs not already captured.
func ExtractCitations(responseText string) []models.CitedSource {
	var sources []models.CitedSource
	seen := make(map[string]bool)

	for _, m := range markdownLink.FindAllStringSubmatch(responseText, -1) {
		title, u := m[1], m[2]
		if seen[u] {
			continue
		}
		seen[u] = true
		sources = append(sources, models.CitedSource{
			URL:      u,
			Title:    title,
			Position: len(sources) + 1,
		})
	}

	for _, u := range plainURL.FindAllString(responseText, -1) {
		u = strings.TrimRight(u, ".,;")
		if seen[u] {
			continue
		}
		seen[u] = true
		sources = append(sources, models.CitedSource{
			URL:      u,
			Position: len(sources) + 1,
		})
	}

	return sources
}

// extractCompetitorMentions returns the competitor names that appear in the
// response, preserving the caller's order.
func extractCompetitorMentions(responseText string, competitors []string) []string {
	lowerText := strings.ToLower(responseText)

	mentioned := make([]string, 0, len(competitors))
	for _, name := range competitors {
		if name == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(name)) {
			mentioned = append(mentioned, name)
		}
	}
	return mentioned
}
