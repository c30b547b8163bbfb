package store

import (
	"context"
	"errors"
	"time"

	"github.com/columbushq/columbus/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Jobs
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error)
	// ClaimQueuedJobs atomically transitions up to limit queued jobs to
	// processing (oldest first) and returns them. Safe to call from
	// multiple dispatcher instances: each row is claimed exactly once.
	ClaimQueuedJobs(ctx context.Context, limit int) ([]*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	// Organizations and subscriptions
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error
	UpdateLastScanAt(ctx context.Context, orgID uuid.UUID, t time.Time) error
	ListActiveSubscriptions(ctx context.Context) ([]*ActiveSubscription, error)
	GetSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error

	// Prompts and competitors
	CreatePrompt(ctx context.Context, prompt *models.Prompt) error
	ListPromptIDs(ctx context.Context, orgID uuid.UUID, limit int) ([]uuid.UUID, error)
	GetPromptsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Prompt, error)
	CreateCompetitor(ctx context.Context, competitor *models.Competitor) error
	ListActiveCompetitors(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.Competitor, error)

	// Scan results
	CreatePromptResult(ctx context.Context, result *models.PromptResult) error
	CreateVisibilityScore(ctx context.Context, score *models.VisibilityScore) error
	CreateVisibilityGap(ctx context.Context, gap *models.VisibilityGap) error
	CreateWebsiteAnalysis(ctx context.Context, analysis *models.WebsiteAnalysis) error
	PromptResultStats(ctx context.Context, orgID uuid.UUID, since time.Time) (*ResultStats, error)

	// Reports
	CreateReport(ctx context.Context, report *models.Report) error
	CountReportsSince(ctx context.Context, orgID uuid.UUID, reportType string, since time.Time) (int, error)

	// Monitored pages
	CreateMonitoredPage(ctx context.Context, page *models.MonitoredPage) error
	ListActivePages(ctx context.Context, orgID uuid.UUID) ([]*models.MonitoredPage, error)
	GetMonitoredPage(ctx context.Context, id uuid.UUID) (*models.MonitoredPage, error)
	UpdateMonitoredPage(ctx context.Context, page *models.MonitoredPage) error
	CountActivePages(ctx context.Context, orgID uuid.UUID) (int, error)
	CountPagesCrawledSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error)
	CreateContentSnapshot(ctx context.Context, snapshot *models.ContentSnapshot) error

	// API keys
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	OrganizationID uuid.UUID
	Status         string
	Limit          int
}

// ActiveSubscription is a subscription row joined with its organization,
// as consumed by the scan scheduler.
type ActiveSubscription struct {
	OrganizationID uuid.UUID
	PlanType       string
	OrgName        string
	Domain         string
	LastScanAt     *time.Time
}

// ResultStats aggregates prompt results over a period, for reports.
type ResultStats struct {
	Total     int
	Mentions  int
	Citations int
	Positive  int
}

// JobUpdate holds the optional fields of UpdateJobStatus.
type JobUpdate struct {
	ErrorMessage *string
}

type JobUpdateOption func(*JobUpdate)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.ErrorMessage = &msg
	}
}

// NewJobUpdate resolves options into their parameter set.
func NewJobUpdate(opts ...JobUpdateOption) *JobUpdate {
	u := &JobUpdate{}
	for _, opt := range opts {
		opt(u)
	}
	return u
}
