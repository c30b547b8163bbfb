// Package worker holds the queue handlers that execute scan jobs. Handlers
// own the full lifecycle of their job row: claim happened upstream, so each
// handler ends by marking the row completed or failed.
package worker

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/columbushq/columbus/internal/cache"
	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/pkg/models"
)

// jobStatusTTL bounds how long the cached job status mirror lives.
const jobStatusTTL = 24 * time.Hour

// RateLimiter gates every assistant call and records spend afterwards.
type RateLimiter interface {
	Wait(ctx context.Context, orgID uuid.UUID, model string) error
	TrackCost(ctx context.Context, orgID uuid.UUID, model string) error
}

// Enqueuer is the queue surface workers use to fan out follow-up work.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) (string, error)
}

// Workers bundles the dependencies shared by all job handlers.
type Workers struct {
	store       store.Store
	cache       cache.Cache
	limiter     RateLimiter
	clients     map[string]models.AIClient
	queues      Enqueuer
	httpClient  *http.Client
	promptDelay time.Duration
}

func New(st store.Store, c cache.Cache, limiter RateLimiter, clients map[string]models.AIClient, queues Enqueuer, promptDelay time.Duration) *Workers {
	return &Workers{
		store:       st,
		cache:       c,
		limiter:     limiter,
		clients:     clients,
		queues:      queues,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		promptDelay: promptDelay,
	}
}

// finishJob records the terminal status on the job row and mirrors it into
// the cache for cheap polling. A nil jobID means the work was not tracked
// by a row (scheduled freshness checks).
func (w *Workers) finishJob(ctx context.Context, jobID *uuid.UUID, jobErr error) {
	if jobID == nil {
		return
	}

	status := models.JobStatusCompleted
	var opts []store.JobUpdateOption
	if jobErr != nil {
		status = models.JobStatusFailed
		opts = append(opts, store.WithErrorMessage(jobErr.Error()))
	}

	if err := w.store.UpdateJobStatus(ctx, *jobID, status, opts...); err != nil {
		slog.Error("update job status", "job_id", *jobID, "status", status, "error", err)
	}
	if err := w.cache.SetJobStatus(ctx, *jobID, status, jobStatusTTL); err != nil {
		slog.Error("cache job status", "job_id", *jobID, "error", err)
	}
}

// pause sleeps between assistant calls so one scan does not monopolize an
// organization's budget window.
func (w *Workers) pause(ctx context.Context) error {
	if w.promptDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(w.promptDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
