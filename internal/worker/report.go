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

// HandleReportGeneration aggregates the period's prompt results into a
// stored report and hands delivery to the email queue.
func (w *Workers) HandleReportGeneration(ctx context.Context, payload []byte) error {
	var p queue.ReportGenerationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode report generation payload: %w", err)
	}

	err := w.runReportGeneration(ctx, p)
	w.finishJob(ctx, p.JobID, err)
	return err
}

func (w *Workers) runReportGeneration(ctx context.Context, p queue.ReportGenerationPayload) error {
	periodDays := p.PeriodDays
	if periodDays <= 0 {
		periodDays = 7
	}
	reportType := p.ReportType
	if reportType == "" {
		reportType = "weekly"
	}

	now := time.Now().UTC()
	since := now.Add(-time.Duration(periodDays) * 24 * time.Hour)

	stats, err := w.store.PromptResultStats(ctx, p.OrganizationID, since)
	if err != nil {
		return fmt.Errorf("aggregate prompt results: %w", err)
	}

	report := &models.Report{
		ID:             uuid.New(),
		OrganizationID: p.OrganizationID,
		ReportType:     reportType,
		PeriodDays:     periodDays,
		Summary: map[string]any{
			"totalResults": stats.Total,
			"mentionRate":  rate(stats.Mentions, stats.Total),
			"citationRate": rate(stats.Citations, stats.Total),
			"positiveRate": rate(stats.Positive, stats.Total),
		},
		CreatedAt: now,
	}
	if err := w.store.CreateReport(ctx, report); err != nil {
		return fmt.Errorf("store report: %w", err)
	}

	// Delivery is the notifier's problem; a full email queue must not fail
	// report generation.
	_, err = w.queues.Enqueue(ctx, queue.EmailNotifications, queue.EmailNotificationPayload{
		OrganizationID: p.OrganizationID,
		Template:       "weekly-report",
		Subject:        fmt.Sprintf("Your %s visibility report", reportType),
		ReportID:       report.ID,
	})
	if err != nil {
		slog.Error("enqueue report email",
			"organization_id", p.OrganizationID, "report_id", report.ID, "error", err)
	}

	slog.Info("report generated",
		"organization_id", p.OrganizationID, "report_id", report.ID,
		"report_type", reportType, "results", stats.Total)
	return nil
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
