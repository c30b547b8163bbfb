package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/columbushq/columbus/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, organization_id, product_id, job_type, status, metadata, error_message, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.OrganizationID, &j.ProductID, &j.Type, &j.Status,
		&j.Metadata, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, organization_id, product_id, job_type, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.OrganizationID, job.ProductID, job.Type, job.Status, job.Metadata,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE organization_id = $1`
	args := []any{filter.OrganizationID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, normalizeLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ClaimQueuedJobs selects the oldest queued rows and flips them to processing
// in a single conditional update. FOR UPDATE SKIP LOCKED keeps concurrent
// dispatchers from claiming the same row.
func (s *PostgresStore) ClaimQueuedJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = $1, started_at = NOW(), updated_at = NOW()
		 WHERE id IN (
		   SELECT id FROM jobs WHERE status = $2
		   ORDER BY created_at ASC LIMIT $3
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		models.JobStatusProcessing, models.JobStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queued jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING order is unspecified; dispatch follows creation order.
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs, nil
}

// allowedPriorStatuses lists, per target status, the statuses a job must
// currently be in for the transition to apply. Terminal statuses are not
// targets of any further transition.
var allowedPriorStatuses = map[string][]string{
	models.JobStatusProcessing: {models.JobStatusQueued},
	models.JobStatusCompleted:  {models.JobStatusProcessing},
	models.JobStatusFailed:     {models.JobStatusProcessing},
}

// UpdateJobStatus applies the transition as one conditional UPDATE, so two
// concurrent finishers cannot both move the same row to a terminal state.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := NewJobUpdate(opts...)

	prior, ok := allowedPriorStatuses[status]
	if !ok {
		return fmt.Errorf("unknown job status %q", status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusProcessing {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = ANY($%d)", argIdx)
	args = append(args, prior)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row moved: the job is missing or not in an accepted status. The
	// read here is diagnostic only, the decision was made by the UPDATE.
	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("invalid job status transition: %s -> %s", current, status)
}

// --- Organizations and subscriptions ---

func (s *PostgresStore) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var o models.Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, domain, last_scan_at, created_at, updated_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.Domain, &o.LastScanAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, domain, last_scan_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		org.ID, org.Name, org.Domain, org.LastScanAt, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateLastScanAt(ctx context.Context, orgID uuid.UUID, t time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE organizations SET last_scan_at = $2, updated_at = NOW() WHERE id = $1`, orgID, t)
	if err != nil {
		return fmt.Errorf("update last scan at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveSubscriptions(ctx context.Context) ([]*ActiveSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sub.organization_id, sub.plan_type, org.name, org.domain, org.last_scan_at
		 FROM subscriptions sub
		 JOIN organizations org ON org.id = sub.organization_id
		 WHERE sub.status = $1
		 ORDER BY org.created_at ASC`, models.SubscriptionActive)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*ActiveSubscription
	for rows.Next() {
		var a ActiveSubscription
		if err := rows.Scan(&a.OrganizationID, &a.PlanType, &a.OrgName, &a.Domain, &a.LastScanAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, &a)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) GetSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, plan_type, status, created_at, updated_at
		 FROM subscriptions WHERE organization_id = $1`, orgID,
	).Scan(&sub.ID, &sub.OrganizationID, &sub.PlanType, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (id, organization_id, plan_type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.OrganizationID, sub.PlanType, sub.Status, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// --- Prompts and competitors ---

func (s *PostgresStore) CreatePrompt(ctx context.Context, prompt *models.Prompt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prompts (id, organization_id, prompt_text, created_at) VALUES ($1, $2, $3, $4)`,
		prompt.ID, prompt.OrganizationID, prompt.Text, prompt.CreatedAt)
	if err != nil {
		return fmt.Errorf("create prompt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPromptIDs(ctx context.Context, orgID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM prompts WHERE organization_id = $1 ORDER BY created_at ASC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list prompt ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan prompt id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) GetPromptsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Prompt, error) {
	if len(ids) == 0 {
		return []*models.Prompt{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, prompt_text, created_at FROM prompts WHERE id = ANY($1) ORDER BY created_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("get prompts by ids: %w", err)
	}
	defer rows.Close()

	var prompts []*models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Text, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, &p)
	}
	return prompts, rows.Err()
}

func (s *PostgresStore) CreateCompetitor(ctx context.Context, competitor *models.Competitor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO competitors (id, organization_id, name, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		competitor.ID, competitor.OrganizationID, competitor.Name, competitor.Status, competitor.CreatedAt)
	if err != nil {
		return fmt.Errorf("create competitor: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActiveCompetitors(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.Competitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, name, status, created_at FROM competitors
		 WHERE organization_id = $1 AND status = 'active' ORDER BY created_at ASC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list active competitors: %w", err)
	}
	defer rows.Close()

	var competitors []*models.Competitor
	for rows.Next() {
		var c models.Competitor
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		competitors = append(competitors, &c)
	}
	return competitors, rows.Err()
}

// --- Scan results ---

func (s *PostgresStore) CreatePromptResult(ctx context.Context, result *models.PromptResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prompt_results (id, prompt_id, organization_id, ai_model, response_text, brand_mentioned,
		   citation_present, position, sentiment, competitor_mentions, metadata, tested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		result.ID, result.PromptID, result.OrganizationID, result.Model, result.ResponseText,
		result.BrandMentioned, result.CitationPresent, result.Position, result.Sentiment,
		result.CompetitorMentions, result.Metadata, result.TestedAt)
	if err != nil {
		return fmt.Errorf("create prompt result: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateVisibilityScore(ctx context.Context, score *models.VisibilityScore) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO visibility_scores (id, organization_id, ai_model, score, period_start, period_end, metrics, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		score.ID, score.OrganizationID, score.Model, score.Score, score.PeriodStart,
		score.PeriodEnd, score.Metrics, score.CreatedAt)
	if err != nil {
		return fmt.Errorf("create visibility score: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateVisibilityGap(ctx context.Context, gap *models.VisibilityGap) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO visibility_gaps (id, organization_id, competitor_id, prompt_id, ai_model,
		   competitor_mentioned, brand_mentioned, gap_type, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		gap.ID, gap.OrganizationID, gap.CompetitorID, gap.PromptID, gap.Model,
		gap.CompetitorMentioned, gap.BrandMentioned, gap.GapType, gap.DetectedAt)
	if err != nil {
		return fmt.Errorf("create visibility gap: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateWebsiteAnalysis(ctx context.Context, analysis *models.WebsiteAnalysis) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO website_analyses (id, organization_id, domain, title, h1_text, meta_description,
		   schema_types, word_count, readiness_score, analyzed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		analysis.ID, analysis.OrganizationID, analysis.Domain, analysis.Title, analysis.H1Text,
		analysis.MetaDescription, analysis.SchemaTypes, analysis.WordCount,
		analysis.ReadinessScore, analysis.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("create website analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) PromptResultStats(ctx context.Context, orgID uuid.UUID, since time.Time) (*ResultStats, error) {
	var st ResultStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE brand_mentioned),
		        COUNT(*) FILTER (WHERE citation_present),
		        COUNT(*) FILTER (WHERE sentiment = 'positive')
		 FROM prompt_results WHERE organization_id = $1 AND tested_at >= $2`, orgID, since,
	).Scan(&st.Total, &st.Mentions, &st.Citations, &st.Positive)
	if err != nil {
		return nil, fmt.Errorf("prompt result stats: %w", err)
	}
	return &st, nil
}

// --- Reports ---

func (s *PostgresStore) CreateReport(ctx context.Context, report *models.Report) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, organization_id, report_type, period_days, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		report.ID, report.OrganizationID, report.ReportType, report.PeriodDays,
		report.Summary, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountReportsSince(ctx context.Context, orgID uuid.UUID, reportType string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE organization_id = $1 AND report_type = $2 AND created_at >= $3`,
		orgID, reportType, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return count, nil
}

// --- Monitored pages ---

const pageColumns = `id, organization_id, url, status, content_hash, word_count, freshness_score,
	check_frequency_hours, error_message, last_crawled_at, last_modified_at, next_check_at, created_at, updated_at`

func scanPage(row pgx.Row) (*models.MonitoredPage, error) {
	var p models.MonitoredPage
	err := row.Scan(&p.ID, &p.OrganizationID, &p.URL, &p.Status, &p.ContentHash, &p.WordCount,
		&p.FreshnessScore, &p.CheckFrequencyHours, &p.ErrorMessage, &p.LastCrawledAt,
		&p.LastModifiedAt, &p.NextCheckAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreateMonitoredPage(ctx context.Context, page *models.MonitoredPage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitored_pages (id, organization_id, url, status, check_frequency_hours, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		page.ID, page.OrganizationID, page.URL, page.Status, page.CheckFrequencyHours,
		page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create monitored page: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivePages(ctx context.Context, orgID uuid.UUID) ([]*models.MonitoredPage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pageColumns+` FROM monitored_pages
		 WHERE organization_id = $1 AND status IN ('active', 'error') ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active pages: %w", err)
	}
	defer rows.Close()

	var pages []*models.MonitoredPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitored page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *PostgresStore) GetMonitoredPage(ctx context.Context, id uuid.UUID) (*models.MonitoredPage, error) {
	p, err := scanPage(s.pool.QueryRow(ctx,
		`SELECT `+pageColumns+` FROM monitored_pages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitored page: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateMonitoredPage(ctx context.Context, page *models.MonitoredPage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitored_pages SET status = $2, content_hash = $3, word_count = $4, freshness_score = $5,
		   error_message = $6, last_crawled_at = $7, last_modified_at = $8, next_check_at = $9, updated_at = NOW()
		 WHERE id = $1`,
		page.ID, page.Status, page.ContentHash, page.WordCount, page.FreshnessScore,
		page.ErrorMessage, page.LastCrawledAt, page.LastModifiedAt, page.NextCheckAt)
	if err != nil {
		return fmt.Errorf("update monitored page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountActivePages(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM monitored_pages WHERE organization_id = $1 AND status = 'active'`, orgID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active pages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountPagesCrawledSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM monitored_pages WHERE organization_id = $1 AND last_crawled_at >= $2`, orgID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count crawled pages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreateContentSnapshot(ctx context.Context, snapshot *models.ContentSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO content_snapshots (id, page_id, content_hash, word_count, h1_text, meta_description,
		   schema_types, last_modified_header, crawled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snapshot.ID, snapshot.PageID, snapshot.ContentHash, snapshot.WordCount, snapshot.H1Text,
		snapshot.MetaDescription, snapshot.SchemaTypes, snapshot.LastModified, snapshot.CrawledAt)
	if err != nil {
		return fmt.Errorf("create content snapshot: %w", err)
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.OrganizationID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, organization_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.OrganizationID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes,
		key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
