package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/columbushq/columbus/internal/queue"
	"github.com/columbushq/columbus/internal/store/storetest"
	"github.com/columbushq/columbus/pkg/models"
)

// recordingEnqueuer captures everything the dispatcher routes.
type recordingEnqueuer struct {
	mu       sync.Mutex
	enqueued []enqueued
	err      error
}

type enqueued struct {
	queue   string
	payload any
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, name string, payload any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.enqueued = append(r.enqueued, enqueued{queue: name, payload: payload})
	return uuid.NewString(), nil
}

func (r *recordingEnqueuer) byQueue(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.enqueued {
		if e.queue == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func seedJob(f *storetest.Fake, jobType string, meta models.JobMetadata, createdAt time.Time) *models.Job {
	job := &models.Job{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Type:           jobType,
		Status:         models.JobStatusQueued,
		Metadata:       meta,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	_ = f.CreateJob(context.Background(), job)
	return job
}

func TestPoll_RoutesVisibilityScan(t *testing.T) {
	f := storetest.New()
	promptID := uuid.New()
	job := seedJob(f, models.JobTypeVisibilityScan, models.JobMetadata{
		"brandName":   "Acme",
		"domain":      "acme.test",
		"promptIds":   []uuid.UUID{promptID},
		"competitors": []string{"Rival"},
		"isScheduled": true,
	}, time.Now().UTC())

	enq := &recordingEnqueuer{}
	d := New(f, enq, time.Second, 10)
	d.poll(context.Background())

	payloads := enq.byQueue(queue.VisibilityScan)
	require.Len(t, payloads, 1)

	p, ok := payloads[0].(queue.VisibilityScanPayload)
	require.True(t, ok)
	assert.Equal(t, job.OrganizationID, p.OrganizationID)
	assert.Equal(t, "Acme", p.BrandName)
	assert.Equal(t, "acme.test", p.Domain)
	assert.Equal(t, []uuid.UUID{promptID}, p.PromptIDs)
	assert.Equal(t, []string{"Rival"}, p.Competitors)
	assert.True(t, p.Scheduled)
	require.NotNil(t, p.JobID)
	assert.Equal(t, job.ID, *p.JobID)

	// The row stays processing until the worker reports back.
	got, err := f.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
}

func TestPoll_ClaimsOldestFirstUpToBatchSize(t *testing.T) {
	f := storetest.New()
	base := time.Now().UTC().Add(-time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		job := seedJob(f, models.JobTypeWebsiteAnalysis,
			models.JobMetadata{"domain": "acme.test"}, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, job.ID)
	}

	enq := &recordingEnqueuer{}
	d := New(f, enq, time.Second, 3)
	d.poll(context.Background())

	payloads := enq.byQueue(queue.WebsiteAnalysis)
	require.Len(t, payloads, 3)
	for i, raw := range payloads {
		p := raw.(queue.WebsiteAnalysisPayload)
		require.NotNil(t, p.JobID)
		assert.Equal(t, ids[i], *p.JobID, "oldest jobs dispatch first")
	}

	// The remaining two go out on the next poll, exactly once.
	d.poll(context.Background())
	assert.Len(t, enq.byQueue(queue.WebsiteAnalysis), 5)
	d.poll(context.Background())
	assert.Len(t, enq.byQueue(queue.WebsiteAnalysis), 5)
}

func TestPoll_ConcurrentPollersRouteEachJobOnce(t *testing.T) {
	f := storetest.New()
	base := time.Now().UTC().Add(-time.Hour)
	seen := make(map[uuid.UUID]bool, 20)
	for i := 0; i < 20; i++ {
		job := seedJob(f, models.JobTypeWebsiteAnalysis,
			models.JobMetadata{"domain": "acme.test"}, base.Add(time.Duration(i)*time.Second))
		seen[job.ID] = false
	}

	enq := &recordingEnqueuer{}
	a := New(f, enq, time.Second, 3)
	b := New(f, enq, time.Second, 3)

	// Two dispatcher instances draining the same table in parallel.
	var wg sync.WaitGroup
	wg.Add(2)
	for _, d := range []*Dispatcher{a, b} {
		go func(d *Dispatcher) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				d.poll(context.Background())
			}
		}(d)
	}
	wg.Wait()

	payloads := enq.byQueue(queue.WebsiteAnalysis)
	require.Len(t, payloads, 20, "every job routed, none twice")
	for _, raw := range payloads {
		p := raw.(queue.WebsiteAnalysisPayload)
		require.NotNil(t, p.JobID)
		require.False(t, seen[*p.JobID], "job %s routed twice", *p.JobID)
		seen[*p.JobID] = true
	}
}

func TestPoll_FreshnessCheckIsFireAndForget(t *testing.T) {
	f := storetest.New()
	job := seedJob(f, models.JobTypeFreshnessCheck,
		models.JobMetadata{"scheduledCheck": true}, time.Now().UTC())

	enq := &recordingEnqueuer{}
	d := New(f, enq, time.Second, 10)
	d.poll(context.Background())

	payloads := enq.byQueue(queue.FreshnessCheck)
	require.Len(t, payloads, 1)
	p := payloads[0].(queue.FreshnessCheckPayload)
	assert.Equal(t, job.OrganizationID, p.OrganizationID)
	assert.True(t, p.Scheduled)

	// Completed on enqueue; per-page outcomes land elsewhere.
	got, err := f.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestPoll_UnknownTypeFailsJob(t *testing.T) {
	f := storetest.New()
	job := seedJob(f, "mystery_job", models.JobMetadata{}, time.Now().UTC())

	enq := &recordingEnqueuer{}
	d := New(f, enq, time.Second, 10)
	d.poll(context.Background())

	assert.Empty(t, enq.enqueued)

	got, err := f.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "unknown job type")
}

func TestPoll_EnqueueErrorFailsJobAndContinues(t *testing.T) {
	f := storetest.New()
	a := seedJob(f, models.JobTypeWebsiteAnalysis,
		models.JobMetadata{"domain": "a.test"}, time.Now().UTC().Add(-time.Minute))
	b := seedJob(f, models.JobTypeWebsiteAnalysis,
		models.JobMetadata{"domain": "b.test"}, time.Now().UTC())

	enq := &recordingEnqueuer{err: assert.AnError}
	d := New(f, enq, time.Second, 10)
	d.poll(context.Background())

	for _, job := range []*models.Job{a, b} {
		got, err := f.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, got.Status, "both jobs fail, neither blocks the other")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := storetest.New()
	d := New(f, &recordingEnqueuer{}, 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDecodeMetadata(t *testing.T) {
	meta := models.JobMetadata{
		"reportType": "weekly",
		"periodDays": json.Number("7"),
	}

	var p queue.ReportGenerationPayload
	require.NoError(t, decodeMetadata(meta, &p))
	assert.Equal(t, "weekly", p.ReportType)
	assert.Equal(t, 7, p.PeriodDays)
}
