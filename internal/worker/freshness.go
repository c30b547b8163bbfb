package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/columbushq/columbus/internal/queue"
	"github.com/columbushq/columbus/pkg/models"
)

// HandleFreshnessCheck re-crawls monitored pages and updates their content
// hash and freshness score. There is no job row to report back to; each
// page carries its own outcome, including errors.
func (w *Workers) HandleFreshnessCheck(ctx context.Context, payload []byte) error {
	var p queue.FreshnessCheckPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode freshness check payload: %w", err)
	}

	var pages []*models.MonitoredPage
	if p.PageID != nil {
		page, err := w.store.GetMonitoredPage(ctx, *p.PageID)
		if err != nil {
			return fmt.Errorf("load page: %w", err)
		}
		pages = []*models.MonitoredPage{page}
	} else {
		var err error
		pages, err = w.store.ListActivePages(ctx, p.OrganizationID)
		if err != nil {
			return fmt.Errorf("list pages: %w", err)
		}
	}

	for _, page := range pages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.checkPage(ctx, page); err != nil {
			slog.Warn("freshness check failed for page",
				"page_id", page.ID, "url", page.URL, "error", err)
		}
	}

	slog.Info("freshness check finished",
		"organization_id", p.OrganizationID, "pages", len(pages))
	return nil
}

// checkPage crawls one page. Crawl failures mark the page status error and
// still schedule the next check; they are not handler failures.
func (w *Workers) checkPage(ctx context.Context, page *models.MonitoredPage) error {
	now := time.Now().UTC()
	next := now.Add(time.Duration(page.CheckFrequencyHours) * time.Hour)

	content, err := w.crawl(ctx, page.URL)
	if err != nil {
		msg := err.Error()
		page.Status = "error"
		page.ErrorMessage = &msg
		page.NextCheckAt = &next
		if uerr := w.store.UpdateMonitoredPage(ctx, page); uerr != nil {
			return fmt.Errorf("mark page errored: %w", uerr)
		}
		return err
	}

	sum := sha256.Sum256([]byte(content.Text))
	hash := hex.EncodeToString(sum[:])

	changed := page.ContentHash == nil || *page.ContentHash != hash
	if changed {
		err := w.store.CreateContentSnapshot(ctx, &models.ContentSnapshot{
			ID:              uuid.New(),
			PageID:          page.ID,
			ContentHash:     hash,
			WordCount:       content.WordCount,
			H1Text:          content.H1Text,
			MetaDescription: content.MetaDescription,
			SchemaTypes:     content.SchemaTypes,
			LastModified:    content.LastModified,
			CrawledAt:       now,
		})
		if err != nil {
			return fmt.Errorf("store content snapshot: %w", err)
		}
		page.LastModifiedAt = &now
	}

	page.Status = "active"
	page.ErrorMessage = nil
	page.ContentHash = &hash
	page.WordCount = content.WordCount
	page.FreshnessScore = freshnessScore(page.LastModifiedAt, now)
	page.LastCrawledAt = &now
	page.NextCheckAt = &next

	if err := w.store.UpdateMonitoredPage(ctx, page); err != nil {
		return fmt.Errorf("update page: %w", err)
	}

	if changed {
		slog.Info("page content changed", "page_id", page.ID, "url", page.URL)
	}
	return nil
}

// freshnessScore decays with the age of the last observed content change.
func freshnessScore(lastModified *time.Time, now time.Time) int {
	if lastModified == nil {
		return 0
	}

	age := now.Sub(*lastModified)
	switch {
	case age < 7*24*time.Hour:
		return 100
	case age < 30*24*time.Hour:
		return 75
	case age < 90*24*time.Hour:
		return 50
	case age < 180*24*time.Hour:
		return 25
	default:
		return 10
	}
}
