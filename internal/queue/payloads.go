package queue

import "github.com/google/uuid"

// Typed payloads for each named queue. JobID, when set, points at the durable
// job row the worker reports terminal status back to.

type VisibilityScanPayload struct {
	OrganizationID uuid.UUID   `json:"organizationId"`
	BrandName      string      `json:"brandName"`
	Domain         string      `json:"domain"`
	PromptIDs      []uuid.UUID `json:"promptIds"`
	Competitors    []string    `json:"competitors,omitempty"`
	JobID          *uuid.UUID  `json:"jobId,omitempty"`
	Scheduled      bool        `json:"isScheduled,omitempty"`
}

type CompetitorAnalysisPayload struct {
	OrganizationID uuid.UUID   `json:"organizationId"`
	BrandName      string      `json:"brandName"`
	CompetitorID   uuid.UUID   `json:"competitorId"`
	CompetitorName string      `json:"competitorName"`
	PromptIDs      []uuid.UUID `json:"promptIds"`
	JobID          *uuid.UUID  `json:"jobId,omitempty"`
}

type WebsiteAnalysisPayload struct {
	OrganizationID        uuid.UUID  `json:"organizationId"`
	Domain                string     `json:"domain"`
	IncludeCompetitorGaps bool       `json:"includeCompetitorGaps,omitempty"`
	JobID                 *uuid.UUID `json:"jobId,omitempty"`
}

type FreshnessCheckPayload struct {
	OrganizationID uuid.UUID  `json:"organizationId"`
	PageID         *uuid.UUID `json:"pageId,omitempty"`
	Scheduled      bool       `json:"scheduledCheck,omitempty"`
}

type ReportGenerationPayload struct {
	OrganizationID uuid.UUID  `json:"organizationId"`
	ReportType     string     `json:"reportType"`
	PeriodDays     int        `json:"periodDays"`
	Email          string     `json:"email,omitempty"`
	JobID          *uuid.UUID `json:"jobId,omitempty"`
}

type EmailNotificationPayload struct {
	OrganizationID uuid.UUID `json:"organizationId"`
	Template       string    `json:"template"`
	Subject        string    `json:"subject"`
	ReportID       uuid.UUID `json:"reportId"`
}
