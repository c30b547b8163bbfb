package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("columbus_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func createOrg(t *testing.T, s *store.PostgresStore) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	org := &models.Organization{
		ID:        uuid.New(),
		Name:      "Acme",
		Domain:    "acme.test",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateOrganization(context.Background(), org))
	return org.ID
}

func createJob(t *testing.T, s *store.PostgresStore, orgID uuid.UUID, jobType string) *models.Job {
	t.Helper()
	now := time.Now().UTC()
	job := &models.Job{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Type:           jobType,
		Status:         models.JobStatusQueued,
		Metadata:       models.JobMetadata{"brandName": "Acme"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func TestJobLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	job := createJob(t, s, orgID, models.JobTypeVisibilityScan)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, models.JobTypeVisibilityScan, got.Type)
	assert.Equal(t, "Acme", got.Metadata["brandName"])
	assert.Nil(t, got.StartedAt)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted))

	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestUpdateJobStatus_RejectsInvalidTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	job := createJob(t, s, orgID, models.JobTypeVisibilityScan)

	// queued may not jump straight to completed.
	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted)
	require.Error(t, err)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithErrorMessage("assistant unavailable")))

	// failed is terminal.
	err = s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing)
	require.Error(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "assistant unavailable", *got.ErrorMessage)
}

func TestUpdateJobStatus_TerminalWriteWinsOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	job := createJob(t, s, orgID, models.JobTypeVisibilityScan)
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing))

	// Two finishers race for the same row; the conditional update lets
	// exactly one through and the loser sees an invalid transition.
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted))
	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithErrorMessage("late failure"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job status transition")

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorMessage, "the losing write must not leak fields in")
}

func TestUpdateJobStatus_UnknownJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	err := s.UpdateJobStatus(context.Background(), uuid.New(), models.JobStatusProcessing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClaimQueuedJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		job := createJob(t, s, orgID, models.JobTypeVisibilityScan)
		ids = append(ids, job.ID)
		time.Sleep(10 * time.Millisecond) // distinct created_at ordering
	}

	claimed, err := s.ClaimQueuedJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].ID, "oldest first")
	assert.Equal(t, ids[1], claimed[1].ID)
	for _, j := range claimed {
		assert.Equal(t, models.JobStatusProcessing, j.Status)
		assert.NotNil(t, j.StartedAt)
	}

	// Remaining row is claimed by the next call; nothing twice.
	claimed, err = s.ClaimQueuedJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, ids[2], claimed[0].ID)

	claimed, err = s.ClaimQueuedJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestListJobs_FiltersByStatusAndOrg(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	orgA := createOrg(t, s)
	orgB := createOrg(t, s)

	createJob(t, s, orgA, models.JobTypeVisibilityScan)
	processing := createJob(t, s, orgA, models.JobTypeWebsiteAnalysis)
	require.NoError(t, s.UpdateJobStatus(ctx, processing.ID, models.JobStatusProcessing))
	createJob(t, s, orgB, models.JobTypeVisibilityScan)

	jobs, err := s.ListJobs(ctx, store.JobFilter{OrganizationID: orgA})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = s.ListJobs(ctx, store.JobFilter{OrganizationID: orgA, Status: models.JobStatusProcessing})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, processing.ID, jobs[0].ID)
}

func TestGetJob_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestActiveSubscriptions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	active := createOrg(t, s)
	require.NoError(t, s.CreateSubscription(ctx, &models.Subscription{
		ID: uuid.New(), OrganizationID: active, PlanType: models.PlanPro, Status: "active",
		CreatedAt: now, UpdatedAt: now,
	}))

	inactive := createOrg(t, s)
	require.NoError(t, s.CreateSubscription(ctx, &models.Subscription{
		ID: uuid.New(), OrganizationID: inactive, PlanType: models.PlanFree, Status: "inactive",
		CreatedAt: now, UpdatedAt: now,
	}))

	subs, err := s.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, active, subs[0].OrganizationID)
	assert.Equal(t, models.PlanPro, subs[0].PlanType)
	assert.Equal(t, "acme.test", subs[0].Domain)
	assert.Nil(t, subs[0].LastScanAt)

	scanTime := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateLastScanAt(ctx, active, scanTime))

	subs, err = s.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].LastScanAt)
	assert.WithinDuration(t, scanTime, *subs[0].LastScanAt, time.Second)
}

func TestPrompts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	base := time.Now().UTC()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		p := &models.Prompt{
			ID: uuid.New(), OrganizationID: orgID,
			Text: "best analytics tool", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.CreatePrompt(ctx, p))
		ids = append(ids, p.ID)
	}

	got, err := s.ListPromptIDs(ctx, orgID, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], got, "oldest prompts first, capped at limit")

	prompts, err := s.GetPromptsByIDs(ctx, ids[:2])
	require.NoError(t, err)
	assert.Len(t, prompts, 2)

	prompts, err = s.GetPromptsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestCompetitors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	now := time.Now().UTC()
	require.NoError(t, s.CreateCompetitor(ctx, &models.Competitor{
		ID: uuid.New(), OrganizationID: orgID, Name: "Rival", Status: "active", CreatedAt: now,
	}))
	require.NoError(t, s.CreateCompetitor(ctx, &models.Competitor{
		ID: uuid.New(), OrganizationID: orgID, Name: "Gone", Status: "archived", CreatedAt: now,
	}))

	competitors, err := s.ListActiveCompetitors(ctx, orgID, 10)
	require.NoError(t, err)
	require.Len(t, competitors, 1)
	assert.Equal(t, "Rival", competitors[0].Name)
}

func TestPromptResultStats(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	prompt := &models.Prompt{ID: uuid.New(), OrganizationID: orgID, Text: "best analytics tool"}
	require.NoError(t, s.CreatePrompt(ctx, prompt))

	now := time.Now().UTC()
	seed := []struct {
		mentioned bool
		citation  bool
		sentiment string
	}{
		{true, true, models.SentimentPositive},
		{true, false, models.SentimentNeutral},
		{false, false, models.SentimentNeutral},
		{false, true, models.SentimentNegative},
	}
	for _, r := range seed {
		require.NoError(t, s.CreatePromptResult(ctx, &models.PromptResult{
			ID: uuid.New(), PromptID: prompt.ID, OrganizationID: orgID,
			Model: models.ModelChatGPT, ResponseText: "text",
			BrandMentioned: r.mentioned, CitationPresent: r.citation,
			Sentiment: r.sentiment, CompetitorMentions: []string{},
			TestedAt: now,
		}))
	}

	stats, err := s.PromptResultStats(ctx, orgID, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Mentions)
	assert.Equal(t, 2, stats.Citations)
	assert.Equal(t, 1, stats.Positive)

	// Results before the window are excluded.
	stats, err = s.PromptResultStats(ctx, orgID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestReports(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	require.NoError(t, s.CreateReport(ctx, &models.Report{
		ID: uuid.New(), OrganizationID: orgID, ReportType: "weekly", PeriodDays: 7,
		Summary:   map[string]any{"totalResults": 10},
		CreatedAt: time.Now().UTC(),
	}))

	n, err := s.CountReportsSince(ctx, orgID, "weekly", time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountReportsSince(ctx, orgID, "monthly", time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMonitoredPages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	created := time.Now().UTC()
	page := &models.MonitoredPage{
		ID: uuid.New(), OrganizationID: orgID,
		URL: "https://acme.test/pricing", Status: "active", CheckFrequencyHours: 24,
		CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, s.CreateMonitoredPage(ctx, page))

	got, err := s.GetMonitoredPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.URL, got.URL)
	assert.Nil(t, got.ContentHash)

	hash := "abc123"
	now := time.Now().UTC().Truncate(time.Second)
	got.ContentHash = &hash
	got.WordCount = 250
	got.FreshnessScore = 100
	got.LastCrawledAt = &now
	require.NoError(t, s.UpdateMonitoredPage(ctx, got))

	pages, err := s.ListActivePages(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.NotNil(t, pages[0].ContentHash)
	assert.Equal(t, hash, *pages[0].ContentHash)
	assert.Equal(t, 100, pages[0].FreshnessScore)

	total, err := s.CountActivePages(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	crawled, err := s.CountPagesCrawledSince(ctx, orgID, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, crawled)

	require.NoError(t, s.CreateContentSnapshot(ctx, &models.ContentSnapshot{
		ID: uuid.New(), PageID: page.ID, ContentHash: hash,
		WordCount: 250, SchemaTypes: []string{"Product"}, CrawledAt: now,
	}))
}

func TestAPIKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	orgID := createOrg(t, s)

	now := time.Now().UTC()
	key := &models.APIKey{
		ID: uuid.New(), OrganizationID: orgID, Name: "ci",
		KeyHash: "$2a$10$hash", KeyPrefix: "clb_abcd",
		Scopes:    []string{"read", "write"},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "clb_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"read", "write"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err = s.GetAPIKeyByPrefix(ctx, "clb_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	keys, err = s.GetAPIKeyByPrefix(ctx, "clb_none")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
