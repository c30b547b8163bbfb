// Package storetest provides an in-memory store.Store for unit tests that
// should not need a database container.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/pkg/models"
)

// Fake is an in-memory store.Store. Claiming is atomic under the mutex, so
// concurrent dispatcher tests behave like the real thing.
type Fake struct {
	mu sync.Mutex

	Jobs          map[uuid.UUID]*models.Job
	Organizations map[uuid.UUID]*models.Organization
	Subscriptions []*store.ActiveSubscription
	Prompts       map[uuid.UUID]*models.Prompt
	Competitors   map[uuid.UUID]*models.Competitor
	Pages         map[uuid.UUID]*models.MonitoredPage
	Results       []*models.PromptResult
	Scores        []*models.VisibilityScore
	Gaps          []*models.VisibilityGap
	Analyses      []*models.WebsiteAnalysis
	Snapshots     []*models.ContentSnapshot
	Reports       []*models.Report
	APIKeys       map[uuid.UUID]*models.APIKey

	// SubscriptionStatus overrides the status GetSubscription reports for
	// an organization. Unset means active.
	SubscriptionStatus map[uuid.UUID]string

	Stats store.ResultStats

	// Err, when set, is returned by every method.
	Err error
}

func New() *Fake {
	return &Fake{
		Jobs:          make(map[uuid.UUID]*models.Job),
		Organizations: make(map[uuid.UUID]*models.Organization),
		Prompts:       make(map[uuid.UUID]*models.Prompt),
		Competitors:   make(map[uuid.UUID]*models.Competitor),
		Pages:         make(map[uuid.UUID]*models.MonitoredPage),
		APIKeys:       make(map[uuid.UUID]*models.APIKey),

		SubscriptionStatus: make(map[uuid.UUID]string),
	}
}

func (f *Fake) Ping(context.Context) error { return f.Err }

// --- Jobs ---

func (f *Fake) CreateJob(_ context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	cp := *job
	f.Jobs[job.ID] = &cp
	return nil
}

func (f *Fake) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	job, ok := f.Jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (f *Fake) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var jobs []*models.Job
	for _, j := range f.Jobs {
		if j.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		cp := *j
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs, nil
}

func (f *Fake) ClaimQueuedJobs(_ context.Context, limit int) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}

	var queued []*models.Job
	for _, j := range f.Jobs {
		if j.Status == models.JobStatusQueued {
			queued = append(queued, j)
		}
	}
	sort.Slice(queued, func(i, k int) bool { return queued[i].CreatedAt.Before(queued[k].CreatedAt) })
	if len(queued) > limit {
		queued = queued[:limit]
	}

	now := time.Now().UTC()
	claimed := make([]*models.Job, 0, len(queued))
	for _, j := range queued {
		j.Status = models.JobStatusProcessing
		j.StartedAt = &now
		j.UpdatedAt = now
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (f *Fake) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	job, ok := f.Jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	job.ErrorMessage = store.NewJobUpdate(opts...).ErrorMessage
	return nil
}

// --- Organizations and subscriptions ---

func (f *Fake) GetOrganization(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	org, ok := f.Organizations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return org, nil
}

func (f *Fake) CreateOrganization(_ context.Context, org *models.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Organizations[org.ID] = org
	return f.Err
}

func (f *Fake) UpdateLastScanAt(_ context.Context, orgID uuid.UUID, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for _, sub := range f.Subscriptions {
		if sub.OrganizationID == orgID {
			at := t
			sub.LastScanAt = &at
		}
	}
	if org, ok := f.Organizations[orgID]; ok {
		at := t
		org.LastScanAt = &at
	}
	return nil
}

func (f *Fake) ListActiveSubscriptions(context.Context) ([]*store.ActiveSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Subscriptions, nil
}

func (f *Fake) GetSubscription(_ context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for _, sub := range f.Subscriptions {
		if sub.OrganizationID == orgID {
			status := f.SubscriptionStatus[orgID]
			if status == "" {
				status = models.SubscriptionActive
			}
			return &models.Subscription{
				ID:             uuid.New(),
				OrganizationID: orgID,
				PlanType:       sub.PlanType,
				Status:         status,
			}, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subscriptions = append(f.Subscriptions, &store.ActiveSubscription{
		OrganizationID: sub.OrganizationID,
		PlanType:       sub.PlanType,
	})
	return f.Err
}

// --- Prompts and competitors ---

func (f *Fake) CreatePrompt(_ context.Context, prompt *models.Prompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts[prompt.ID] = prompt
	return f.Err
}

func (f *Fake) ListPromptIDs(_ context.Context, orgID uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var prompts []*models.Prompt
	for _, p := range f.Prompts {
		if p.OrganizationID == orgID {
			prompts = append(prompts, p)
		}
	}
	sort.Slice(prompts, func(i, k int) bool { return prompts[i].CreatedAt.Before(prompts[k].CreatedAt) })
	var ids []uuid.UUID
	for _, p := range prompts {
		if len(ids) == limit {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (f *Fake) GetPromptsByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var prompts []*models.Prompt
	for _, id := range ids {
		if p, ok := f.Prompts[id]; ok {
			prompts = append(prompts, p)
		}
	}
	return prompts, nil
}

func (f *Fake) CreateCompetitor(_ context.Context, c *models.Competitor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Competitors[c.ID] = c
	return f.Err
}

func (f *Fake) ListActiveCompetitors(_ context.Context, orgID uuid.UUID, limit int) ([]*models.Competitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []*models.Competitor
	for _, c := range f.Competitors {
		if c.OrganizationID == orgID && c.Status == "active" && len(out) < limit {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

// --- Scan results ---

func (f *Fake) CreatePromptResult(_ context.Context, r *models.PromptResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results = append(f.Results, r)
	return f.Err
}

func (f *Fake) CreateVisibilityScore(_ context.Context, s *models.VisibilityScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scores = append(f.Scores, s)
	return f.Err
}

func (f *Fake) CreateVisibilityGap(_ context.Context, g *models.VisibilityGap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gaps = append(f.Gaps, g)
	return f.Err
}

func (f *Fake) CreateWebsiteAnalysis(_ context.Context, a *models.WebsiteAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Analyses = append(f.Analyses, a)
	return f.Err
}

func (f *Fake) PromptResultStats(_ context.Context, _ uuid.UUID, _ time.Time) (*store.ResultStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	st := f.Stats
	return &st, nil
}

// --- Reports ---

func (f *Fake) CreateReport(_ context.Context, r *models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reports = append(f.Reports, r)
	return f.Err
}

func (f *Fake) CountReportsSince(_ context.Context, orgID uuid.UUID, reportType string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	count := 0
	for _, r := range f.Reports {
		if r.OrganizationID == orgID && r.ReportType == reportType && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// --- Monitored pages ---

func (f *Fake) CreateMonitoredPage(_ context.Context, p *models.MonitoredPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pages[p.ID] = p
	return f.Err
}

func (f *Fake) ListActivePages(_ context.Context, orgID uuid.UUID) ([]*models.MonitoredPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var pages []*models.MonitoredPage
	for _, p := range f.Pages {
		if p.OrganizationID == orgID && (p.Status == "active" || p.Status == "error") {
			pages = append(pages, p)
		}
	}
	sort.Slice(pages, func(i, k int) bool { return pages[i].CreatedAt.Before(pages[k].CreatedAt) })
	return pages, nil
}

func (f *Fake) GetMonitoredPage(_ context.Context, id uuid.UUID) (*models.MonitoredPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.Pages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *Fake) UpdateMonitoredPage(_ context.Context, p *models.MonitoredPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.Pages[p.ID]; !ok {
		return store.ErrNotFound
	}
	f.Pages[p.ID] = p
	return nil
}

func (f *Fake) CountActivePages(_ context.Context, orgID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	count := 0
	for _, p := range f.Pages {
		if p.OrganizationID == orgID && p.Status == "active" {
			count++
		}
	}
	return count, nil
}

func (f *Fake) CountPagesCrawledSince(_ context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	count := 0
	for _, p := range f.Pages {
		if p.OrganizationID == orgID && p.LastCrawledAt != nil && !p.LastCrawledAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *Fake) CreateContentSnapshot(_ context.Context, s *models.ContentSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Snapshots = append(f.Snapshots, s)
	return f.Err
}

// --- API keys ---

func (f *Fake) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var keys []*models.APIKey
	for _, k := range f.APIKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *Fake) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.APIKeys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return f.Err
}

func (f *Fake) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.APIKeys[key.ID] = key
	return f.Err
}

// JobsByStatus returns the ids of jobs currently in the given status.
func (f *Fake) JobsByStatus(status string) []*models.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []*models.Job
	for _, j := range f.Jobs {
		if j.Status == status {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	return jobs
}

// JobsByType returns the jobs of the given type, any status.
func (f *Fake) JobsByType(jobType string) []*models.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []*models.Job
	for _, j := range f.Jobs {
		if j.Type == jobType {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	return jobs
}

var _ store.Store = (*Fake)(nil)
