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

// HandleCompetitorAnalysis tests a prompt sample against every assistant and
// records a visibility gap wherever the competitor shows up but the brand
// does not.
func (w *Workers) HandleCompetitorAnalysis(ctx context.Context, payload []byte) error {
	var p queue.CompetitorAnalysisPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode competitor analysis payload: %w", err)
	}

	err := w.runCompetitorAnalysis(ctx, p)
	w.finishJob(ctx, p.JobID, err)
	return err
}

func (w *Workers) runCompetitorAnalysis(ctx context.Context, p queue.CompetitorAnalysisPayload) error {
	prompts, err := w.store.GetPromptsByIDs(ctx, p.PromptIDs)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts found for competitor analysis")
	}

	gaps := 0
	for _, prompt := range prompts {
		for _, model := range models.AllModels {
			client, ok := w.clients[model]
			if !ok {
				continue
			}

			if err := w.limiter.Wait(ctx, p.OrganizationID, model); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}

			text, err := client.TestPrompt(ctx, prompt.Text)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("competitor prompt test failed",
					"organization_id", p.OrganizationID, "model", model,
					"prompt_id", prompt.ID, "error", err)
				continue
			}

			if err := w.limiter.TrackCost(ctx, p.OrganizationID, model); err != nil {
				slog.Error("track cost", "organization_id", p.OrganizationID,
					"model", model, "error", err)
			}

			resp := client.FormatResponse(text, p.BrandName, []string{p.CompetitorName})
			competitorMentioned := len(resp.CompetitorMentions) > 0

			if competitorMentioned && !resp.BrandMentioned {
				err := w.store.CreateVisibilityGap(ctx, &models.VisibilityGap{
					ID:                  uuid.New(),
					OrganizationID:      p.OrganizationID,
					CompetitorID:        p.CompetitorID,
					PromptID:            prompt.ID,
					Model:               model,
					CompetitorMentioned: true,
					BrandMentioned:      false,
					GapType:             "competitor_only",
					DetectedAt:          time.Now().UTC(),
				})
				if err != nil {
					return fmt.Errorf("store visibility gap: %w", err)
				}
				gaps++
			}

			if perr := w.pause(ctx); perr != nil {
				return perr
			}
		}
	}

	slog.Info("competitor analysis finished",
		"organization_id", p.OrganizationID, "competitor", p.CompetitorName, "gaps", gaps)
	return nil
}
