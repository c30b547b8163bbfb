// Package scheduler decides, on a recurring tick, which organizations are
// due for scans and creates the corresponding durable job rows. It never
// talks to the queues: the dispatcher picks the rows up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/columbushq/columbus/internal/cache"
	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/pkg/models"
)

// Per-plan scan cadence and prompt caps.
var (
	scanIntervals = map[string]time.Duration{
		models.PlanFree:       720 * time.Hour,
		models.PlanPro:        168 * time.Hour,
		models.PlanAgency:     72 * time.Hour,
		models.PlanEnterprise: 24 * time.Hour,
	}

	promptLimits = map[string]int{
		models.PlanFree:       5,
		models.PlanPro:        20,
		models.PlanAgency:     50,
		models.PlanEnterprise: 100,
	}
)

const (
	maxCompetitors         = 10
	competitorPromptSample = 5
)

// Leaser grants short-lived exclusive leases, one per tick, so overlapping
// scheduler instances agree on a single winner.
type Leaser interface {
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Scheduler walks active subscriptions each tick and creates due job rows.
// The clock is injected so window logic is testable.
type Scheduler struct {
	store    store.Store
	leases   Leaser
	interval time.Duration
	now      func() time.Time
}

func New(st store.Store, leases Leaser, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    st,
		leases:   leases,
		interval: interval,
		now:      time.Now,
	}
}

// Run ticks immediately, then on every interval, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "interval", s.interval)

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. The pass is identified by its time bucket;
// a Redis lease on that identifier makes the tick fire at most once across
// all running instances.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()

	tickID := now.Truncate(s.interval).Format(time.RFC3339)
	ok, err := s.leases.AcquireLease(ctx, cache.SchedulerLeaseKey(tickID), s.interval)
	if err != nil {
		slog.Error("acquire scheduler lease", "tick", tickID, "error", err)
		return
	}
	if !ok {
		slog.Info("scheduler tick already taken", "tick", tickID)
		return
	}

	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		slog.Error("list active subscriptions", "error", err)
		return
	}

	slog.Info("scheduler tick", "tick", tickID, "organizations", len(subs))

	for _, sub := range subs {
		if err := s.scheduleOrg(ctx, now, sub); err != nil {
			slog.Error("schedule organization",
				"organization_id", sub.OrganizationID, "plan", sub.PlanType, "error", err)
		}
	}
}

// scheduleOrg evaluates every recurring job family for one organization.
// The checks are independent: a window that does not apply is skipped, it
// never blocks the others.
func (s *Scheduler) scheduleOrg(ctx context.Context, now time.Time, sub *store.ActiveSubscription) error {
	// Nothing to scan without a domain.
	if sub.Domain == "" {
		slog.Info("skipping organization without domain", "organization_id", sub.OrganizationID)
		return nil
	}

	if err := s.scheduleVisibilityScan(ctx, now, sub); err != nil {
		return fmt.Errorf("visibility scan: %w", err)
	}

	paid := models.IsPaidPlan(sub.PlanType)

	// Sunday 02:00-08:00 UTC, paid plans.
	if paid && now.Weekday() == time.Sunday && inWindow(now, 2, 8) {
		if err := s.scheduleWebsiteAnalysis(ctx, sub); err != nil {
			return fmt.Errorf("website analysis: %w", err)
		}
	}

	// Monday 06:00-12:00 UTC, paid plans, once per trailing week.
	if paid && now.Weekday() == time.Monday && inWindow(now, 6, 12) {
		if err := s.scheduleWeeklyReport(ctx, now, sub); err != nil {
			return fmt.Errorf("weekly report: %w", err)
		}
	}

	// Wednesday and Saturday 03:00-09:00 UTC, paid plans.
	if paid && (now.Weekday() == time.Wednesday || now.Weekday() == time.Saturday) && inWindow(now, 3, 9) {
		if err := s.scheduleCompetitorAnalysis(ctx, sub); err != nil {
			return fmt.Errorf("competitor analysis: %w", err)
		}
	}

	// Daily 04:00-10:00 UTC, every plan.
	if inWindow(now, 4, 10) {
		if err := s.scheduleFreshnessCheck(ctx, now, sub); err != nil {
			return fmt.Errorf("freshness check: %w", err)
		}
	}

	return nil
}

// scheduleVisibilityScan creates a scan job when the plan's cadence says one
// is due. last_scan_at moves forward only if a job was actually created, so
// an org with no prompts stays due until it has some.
func (s *Scheduler) scheduleVisibilityScan(ctx context.Context, now time.Time, sub *store.ActiveSubscription) error {
	interval, ok := scanIntervals[sub.PlanType]
	if !ok {
		return fmt.Errorf("unknown plan type %q", sub.PlanType)
	}

	if sub.LastScanAt != nil && now.Sub(*sub.LastScanAt) < interval {
		return nil
	}

	promptIDs, err := s.store.ListPromptIDs(ctx, sub.OrganizationID, promptLimits[sub.PlanType])
	if err != nil {
		return err
	}
	if len(promptIDs) == 0 {
		slog.Info("scan due but no prompts configured", "organization_id", sub.OrganizationID)
		return nil
	}

	competitors, err := s.store.ListActiveCompetitors(ctx, sub.OrganizationID, maxCompetitors)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(competitors))
	for _, c := range competitors {
		names = append(names, c.Name)
	}

	err = s.createJob(ctx, sub.OrganizationID, models.JobTypeVisibilityScan, models.JobMetadata{
		"brandName":   sub.OrgName,
		"domain":      sub.Domain,
		"promptIds":   promptIDs,
		"competitors": names,
		"isScheduled": true,
	})
	if err != nil {
		return err
	}

	if err := s.store.UpdateLastScanAt(ctx, sub.OrganizationID, now); err != nil {
		return fmt.Errorf("update last scan at: %w", err)
	}

	slog.Info("visibility scan scheduled",
		"organization_id", sub.OrganizationID, "plan", sub.PlanType, "prompts", len(promptIDs))
	return nil
}

func (s *Scheduler) scheduleWebsiteAnalysis(ctx context.Context, sub *store.ActiveSubscription) error {
	return s.createJob(ctx, sub.OrganizationID, models.JobTypeWebsiteAnalysis, models.JobMetadata{
		"domain": sub.Domain,
	})
}

// scheduleWeeklyReport creates a report job unless one was already generated
// in the trailing seven days. The database check makes the six-hour window
// safe to re-enter.
func (s *Scheduler) scheduleWeeklyReport(ctx context.Context, now time.Time, sub *store.ActiveSubscription) error {
	count, err := s.store.CountReportsSince(ctx, sub.OrganizationID, "weekly", now.Add(-7*24*time.Hour))
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return s.createJob(ctx, sub.OrganizationID, models.JobTypeReportGeneration, models.JobMetadata{
		"reportType": "weekly",
		"periodDays": 7,
	})
}

// scheduleCompetitorAnalysis creates one job per active competitor, sampling
// the organization's first few prompts.
func (s *Scheduler) scheduleCompetitorAnalysis(ctx context.Context, sub *store.ActiveSubscription) error {
	competitors, err := s.store.ListActiveCompetitors(ctx, sub.OrganizationID, maxCompetitors)
	if err != nil {
		return err
	}
	if len(competitors) == 0 {
		return nil
	}

	promptIDs, err := s.store.ListPromptIDs(ctx, sub.OrganizationID, competitorPromptSample)
	if err != nil {
		return err
	}
	if len(promptIDs) == 0 {
		return nil
	}

	for _, c := range competitors {
		err := s.createJob(ctx, sub.OrganizationID, models.JobTypeCompetitorAnalysis, models.JobMetadata{
			"brandName":      sub.OrgName,
			"competitorId":   c.ID,
			"competitorName": c.Name,
			"promptIds":      promptIDs,
		})
		if err != nil {
			return err
		}
	}

	slog.Info("competitor analysis scheduled",
		"organization_id", sub.OrganizationID, "competitors", len(competitors))
	return nil
}

// scheduleFreshnessCheck fires when fewer than half the organization's
// active pages were crawled since midnight UTC.
func (s *Scheduler) scheduleFreshnessCheck(ctx context.Context, now time.Time, sub *store.ActiveSubscription) error {
	total, err := s.store.CountActivePages(ctx, sub.OrganizationID)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	crawledToday, err := s.store.CountPagesCrawledSince(ctx, sub.OrganizationID, midnight)
	if err != nil {
		return err
	}
	if float64(crawledToday) >= float64(total)/2 {
		return nil
	}

	return s.createJob(ctx, sub.OrganizationID, models.JobTypeFreshnessCheck, models.JobMetadata{
		"scheduledCheck": true,
	})
}

func (s *Scheduler) createJob(ctx context.Context, orgID uuid.UUID, jobType string, meta models.JobMetadata) error {
	now := s.now().UTC()
	return s.store.CreateJob(ctx, &models.Job{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Type:           jobType,
		Status:         models.JobStatusQueued,
		Metadata:       meta,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// inWindow reports whether the hour of t falls in [startHour, endHour).
func inWindow(t time.Time, startHour, endHour int) bool {
	h := t.Hour()
	return h >= startHour && h < endHour
}
