package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeWebsiteAnalysis    = "website_analysis"
	JobTypeVisibilityScan     = "visibility_scan"
	JobTypeCompetitorAnalysis = "competitor_analysis"
	JobTypeFreshnessCheck     = "freshness_check"
	JobTypeReportGeneration   = "report_generation"
)

// ValidJobTypes lists every job_type a producer may create.
var ValidJobTypes = map[string]bool{
	JobTypeWebsiteAnalysis:    true,
	JobTypeVisibilityScan:     true,
	JobTypeCompetitorAnalysis: true,
	JobTypeFreshnessCheck:     true,
	JobTypeReportGeneration:   true,
}

// JobMetadata is the job-type-specific payload stored alongside a job row
// (domain, promptIds, competitorId and so on).
type JobMetadata map[string]any

// Job is a durable unit of asynchronous work. Producers insert rows with
// status queued; the dispatcher claims them and routes each to a work queue;
// the consuming worker reports the terminal status back. Status transitions
// are monotonic: queued -> processing -> completed|failed.
type Job struct {
	ID             uuid.UUID   `db:"id"              json:"id"`
	OrganizationID uuid.UUID   `db:"organization_id" json:"organization_id"`
	ProductID      *uuid.UUID  `db:"product_id"      json:"product_id,omitempty"`
	Type           string      `db:"job_type"        json:"job_type"`
	Status         string      `db:"status"          json:"status"`
	Metadata       JobMetadata `db:"metadata"        json:"metadata,omitempty"`
	ErrorMessage   *string     `db:"error_message"   json:"error_message,omitempty"`
	StartedAt      *time.Time  `db:"started_at"      json:"started_at,omitempty"`
	CompletedAt    *time.Time  `db:"completed_at"    json:"completed_at,omitempty"`
	CreatedAt      time.Time   `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"      json:"updated_at"`
}
