package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/columbushq/columbus/internal/queue"
	"github.com/columbushq/columbus/pkg/models"
)

// HandleWebsiteAnalysis crawls the organization's homepage and scores how
// ready it is to be understood and cited by AI assistants.
func (w *Workers) HandleWebsiteAnalysis(ctx context.Context, payload []byte) error {
	var p queue.WebsiteAnalysisPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode website analysis payload: %w", err)
	}

	err := w.runWebsiteAnalysis(ctx, p)
	w.finishJob(ctx, p.JobID, err)
	return err
}

func (w *Workers) runWebsiteAnalysis(ctx context.Context, p queue.WebsiteAnalysisPayload) error {
	if p.Domain == "" {
		return fmt.Errorf("website analysis without domain")
	}

	content, err := w.crawl(ctx, p.Domain)
	if err != nil {
		return fmt.Errorf("crawl homepage: %w", err)
	}

	score := readinessScore(content)

	err = w.store.CreateWebsiteAnalysis(ctx, &models.WebsiteAnalysis{
		ID:              uuid.New(),
		OrganizationID:  p.OrganizationID,
		Domain:          p.Domain,
		Title:           content.Title,
		H1Text:          content.H1Text,
		MetaDescription: content.MetaDescription,
		SchemaTypes:     content.SchemaTypes,
		WordCount:       content.WordCount,
		ReadinessScore:  score,
		AnalyzedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store website analysis: %w", err)
	}

	slog.Info("website analysis finished",
		"organization_id", p.OrganizationID, "domain", p.Domain, "readiness_score", score)
	return nil
}

// readinessScore gives 20 points for each signal assistants rely on when
// summarizing or citing a site.
func readinessScore(c *pageContent) int {
	score := 0
	if c.Title != nil {
		score += 20
	}
	if c.MetaDescription != nil {
		score += 20
	}
	if c.H1Text != nil {
		score += 20
	}
	if len(c.SchemaTypes) > 0 {
		score += 20
	}
	if c.WordCount >= 300 {
		score += 20
	}
	return score
}
