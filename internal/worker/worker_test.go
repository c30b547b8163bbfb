package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/columbushq/columbus/internal/store/storetest"
	"github.com/columbushq/columbus/pkg/models"
)

// fakeLimiter admits everything and records the order of calls.
type fakeLimiter struct {
	mu         sync.Mutex
	waits      []string
	costs      []string
	waitErr    error
	trackerErr error
}

func (f *fakeLimiter) Wait(ctx context.Context, orgID uuid.UUID, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waitErr != nil {
		return f.waitErr
	}
	f.waits = append(f.waits, model)
	return nil
}

func (f *fakeLimiter) TrackCost(ctx context.Context, orgID uuid.UUID, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trackerErr != nil {
		return f.trackerErr
	}
	f.costs = append(f.costs, model)
	return nil
}

// fakeCache is an in-memory cache.Cache.
type fakeCache struct {
	mu          sync.Mutex
	values      map[string][]byte
	jobStatuses map[uuid.UUID]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		values:      make(map[string][]byte),
		jobStatuses: make(map[uuid.UUID]string),
	}
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeCache) Ping(context.Context) error { return nil }

func (f *fakeCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobStatuses[jobID] = status
	return nil
}

func (f *fakeCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.jobStatuses[jobID]
	return s, ok, nil
}

func (f *fakeCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (f *fakeCache) AcquireLease(_ context.Context, key string, _ time.Duration) (bool, error) {
	return true, nil
}

// recordingEnqueuer captures fan-out payloads.
type recordingEnqueuer struct {
	mu       sync.Mutex
	enqueued map[string][]any
	err      error
}

func newRecordingEnqueuer() *recordingEnqueuer {
	return &recordingEnqueuer{enqueued: make(map[string][]any)}
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, name string, payload any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.enqueued[name] = append(r.enqueued[name], payload)
	return uuid.NewString(), nil
}

func seedProcessingJob(t *testing.T, f *storetest.Fake, jobID, orgID uuid.UUID, jobType string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.CreateJob(context.Background(), &models.Job{
		ID: jobID, OrganizationID: orgID,
		Type: jobType, Status: models.JobStatusProcessing,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func countModels(responses []*models.PromptResult, model string) int {
	n := 0
	for _, r := range responses {
		if r.Model == model {
			n++
		}
	}
	return n
}
