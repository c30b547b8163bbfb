// Package dispatch polls the durable jobs table and moves claimed jobs onto
// their Redis queues. The table is the source of truth for job lifecycle;
// the queues only carry delivery.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/columbushq/columbus/internal/queue"
	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/pkg/models"
)

// Enqueuer is the queue surface the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) (string, error)
}

// Dispatcher claims queued job rows in batches and routes each to its queue.
// Multiple dispatcher instances are safe: claiming is atomic in the store.
type Dispatcher struct {
	store     store.Store
	queues    Enqueuer
	interval  time.Duration
	batchSize int
}

func New(st store.Store, queues Enqueuer, interval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		store:     st,
		queues:    queues,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("dispatcher started", "poll_interval", d.interval, "batch_size", d.batchSize)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll claims one batch and routes it. Routing failures mark the job row
// failed; they never stall the rest of the batch.
func (d *Dispatcher) poll(ctx context.Context) {
	jobs, err := d.store.ClaimQueuedJobs(ctx, d.batchSize)
	if err != nil {
		slog.Error("claim queued jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	slog.Info("claimed jobs", "count", len(jobs))

	for _, job := range jobs {
		if err := d.route(ctx, job); err != nil {
			slog.Error("dispatch job failed",
				"job_id", job.ID, "job_type", job.Type, "error", err)
			if uerr := d.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
				store.WithErrorMessage(err.Error())); uerr != nil {
				slog.Error("mark job failed", "job_id", job.ID, "error", uerr)
			}
		}
	}
}

// route builds the typed payload for the job and enqueues it.
//
// Freshness checks are fire-and-forget: the row is marked completed as soon
// as the work is enqueued, and per-page outcomes land on monitored_pages
// rather than the job row.
func (d *Dispatcher) route(ctx context.Context, job *models.Job) error {
	switch job.Type {
	case models.JobTypeVisibilityScan:
		var p queue.VisibilityScanPayload
		if err := decodeMetadata(job.Metadata, &p); err != nil {
			return err
		}
		p.OrganizationID = job.OrganizationID
		p.JobID = &job.ID
		if _, err := d.queues.Enqueue(ctx, queue.VisibilityScan, p); err != nil {
			return err
		}

	case models.JobTypeCompetitorAnalysis:
		var p queue.CompetitorAnalysisPayload
		if err := decodeMetadata(job.Metadata, &p); err != nil {
			return err
		}
		p.OrganizationID = job.OrganizationID
		p.JobID = &job.ID
		if _, err := d.queues.Enqueue(ctx, queue.CompetitorAnalysis, p); err != nil {
			return err
		}

	case models.JobTypeWebsiteAnalysis:
		var p queue.WebsiteAnalysisPayload
		if err := decodeMetadata(job.Metadata, &p); err != nil {
			return err
		}
		p.OrganizationID = job.OrganizationID
		p.JobID = &job.ID
		if _, err := d.queues.Enqueue(ctx, queue.WebsiteAnalysis, p); err != nil {
			return err
		}

	case models.JobTypeReportGeneration:
		var p queue.ReportGenerationPayload
		if err := decodeMetadata(job.Metadata, &p); err != nil {
			return err
		}
		p.OrganizationID = job.OrganizationID
		p.JobID = &job.ID
		if _, err := d.queues.Enqueue(ctx, queue.ReportGeneration, p); err != nil {
			return err
		}

	case models.JobTypeFreshnessCheck:
		var p queue.FreshnessCheckPayload
		if err := decodeMetadata(job.Metadata, &p); err != nil {
			return err
		}
		p.OrganizationID = job.OrganizationID
		if _, err := d.queues.Enqueue(ctx, queue.FreshnessCheck, p); err != nil {
			return err
		}
		if err := d.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted); err != nil {
			slog.Error("mark freshness job completed", "job_id", job.ID, "error", err)
		}

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}

	return nil
}

// decodeMetadata round-trips the job row's metadata through JSON into the
// queue payload type, so metadata keys follow the payload wire names.
func decodeMetadata(meta models.JobMetadata, dst any) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal job metadata: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode job metadata: %w", err)
	}
	return nil
}
