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

// HandleVisibilityScan runs one scan: every prompt against every configured
// assistant, one prompt result row per cell, then an aggregate score per
// assistant.
//
// A single failed assistant call must not kill the scan. The cell is
// recorded as a zero result with the error in its metadata and the loop
// moves on. Only orchestration failures (store or payload problems) fail
// the job and surface to the queue for retry.
func (w *Workers) HandleVisibilityScan(ctx context.Context, payload []byte) error {
	var p queue.VisibilityScanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode visibility scan payload: %w", err)
	}

	err := w.runVisibilityScan(ctx, p)
	w.finishJob(ctx, p.JobID, err)
	return err
}

func (w *Workers) runVisibilityScan(ctx context.Context, p queue.VisibilityScanPayload) error {
	prompts, err := w.store.GetPromptsByIDs(ctx, p.PromptIDs)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts found for scan")
	}

	scanStart := time.Now().UTC()
	byModel := make(map[string][]models.ModelResponse)

	for _, prompt := range prompts {
		for _, model := range models.AllModels {
			client, ok := w.clients[model]
			if !ok {
				continue
			}

			resp, err := w.testPrompt(ctx, p, prompt, client)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Failed cell: zero row, error preserved, scan continues.
				slog.Warn("prompt test failed",
					"organization_id", p.OrganizationID, "model", model,
					"prompt_id", prompt.ID, "error", err)
				resp = models.ModelResponse{
					Model:     model,
					Sentiment: models.SentimentNeutral,
					Metadata:  map[string]any{"error": err.Error()},
					TestedAt:  time.Now().UTC(),
				}
			}

			if serr := w.storePromptResult(ctx, p.OrganizationID, prompt.ID, resp); serr != nil {
				return serr
			}
			byModel[model] = append(byModel[model], resp)

			if perr := w.pause(ctx); perr != nil {
				return perr
			}
		}
	}

	now := time.Now().UTC()
	for model, responses := range byModel {
		score := Score(responses)
		err := w.store.CreateVisibilityScore(ctx, &models.VisibilityScore{
			ID:             uuid.New(),
			OrganizationID: p.OrganizationID,
			Model:          model,
			Score:          score,
			PeriodStart:    scanStart,
			PeriodEnd:      now,
			Metrics:        scoreMetrics(responses),
			CreatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("store visibility score: %w", err)
		}
		slog.Info("visibility score computed",
			"organization_id", p.OrganizationID, "model", model, "score", score)
	}

	return nil
}

// testPrompt runs one (prompt, assistant) cell: rate limit gate, assistant
// call, cost tracking, then signal extraction.
func (w *Workers) testPrompt(ctx context.Context, p queue.VisibilityScanPayload, prompt *models.Prompt, client models.AIClient) (models.ModelResponse, error) {
	if err := w.limiter.Wait(ctx, p.OrganizationID, client.Model()); err != nil {
		return models.ModelResponse{}, fmt.Errorf("rate limit wait: %w", err)
	}

	text, err := client.TestPrompt(ctx, prompt.Text)
	if err != nil {
		return models.ModelResponse{}, err
	}

	// Spend is only tracked for calls that actually happened.
	if err := w.limiter.TrackCost(ctx, p.OrganizationID, client.Model()); err != nil {
		slog.Error("track cost", "organization_id", p.OrganizationID,
			"model", client.Model(), "error", err)
	}

	return client.FormatResponse(text, p.BrandName, p.Competitors), nil
}

func (w *Workers) storePromptResult(ctx context.Context, orgID, promptID uuid.UUID, resp models.ModelResponse) error {
	err := w.store.CreatePromptResult(ctx, &models.PromptResult{
		ID:                 uuid.New(),
		PromptID:           promptID,
		OrganizationID:     orgID,
		Model:              resp.Model,
		ResponseText:       resp.ResponseText,
		BrandMentioned:     resp.BrandMentioned,
		CitationPresent:    resp.CitationPresent,
		Position:           resp.Position,
		Sentiment:          resp.Sentiment,
		CompetitorMentions: orEmpty(resp.CompetitorMentions),
		Metadata:           resp.Metadata,
		TestedAt:           resp.TestedAt,
	})
	if err != nil {
		return fmt.Errorf("store prompt result: %w", err)
	}
	return nil
}

func scoreMetrics(responses []models.ModelResponse) map[string]any {
	var mentions, citations, positive int
	for _, r := range responses {
		if r.BrandMentioned {
			mentions++
		}
		if r.CitationPresent {
			citations++
		}
		if r.Sentiment == models.SentimentPositive {
			positive++
		}
	}
	return map[string]any{
		"responses": len(responses),
		"mentions":  mentions,
		"citations": citations,
		"positive":  positive,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
