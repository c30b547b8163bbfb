package models

import (
	"time"

	"github.com/google/uuid"
)

// PromptResult is one (prompt, assistant) cell of a scan. Failed calls are
// recorded as zero rows with the error in Metadata so aggregates stay honest.
type PromptResult struct {
	ID                 uuid.UUID      `db:"id"                  json:"id"`
	PromptID           uuid.UUID      `db:"prompt_id"           json:"prompt_id"`
	OrganizationID     uuid.UUID      `db:"organization_id"     json:"organization_id"`
	Model              string         `db:"ai_model"            json:"ai_model"`
	ResponseText       string         `db:"response_text"       json:"response_text"`
	BrandMentioned     bool           `db:"brand_mentioned"     json:"brand_mentioned"`
	CitationPresent    bool           `db:"citation_present"    json:"citation_present"`
	Position           *int           `db:"position"            json:"position,omitempty"`
	Sentiment          string         `db:"sentiment"           json:"sentiment"`
	CompetitorMentions []string       `db:"competitor_mentions" json:"competitor_mentions"`
	Metadata           map[string]any `db:"metadata"            json:"metadata,omitempty"`
	TestedAt           time.Time      `db:"tested_at"           json:"tested_at"`
}

// VisibilityScore is the aggregate outcome of a scan, 0-100.
type VisibilityScore struct {
	ID             uuid.UUID      `db:"id"              json:"id"`
	OrganizationID uuid.UUID      `db:"organization_id" json:"organization_id"`
	Model          string         `db:"ai_model"        json:"ai_model"`
	Score          int            `db:"score"           json:"score"`
	PeriodStart    time.Time      `db:"period_start"    json:"period_start"`
	PeriodEnd      time.Time      `db:"period_end"      json:"period_end"`
	Metrics        map[string]any `db:"metrics"         json:"metrics,omitempty"`
	CreatedAt      time.Time      `db:"created_at"      json:"created_at"`
}

// VisibilityGap records a prompt where a competitor was mentioned but the
// brand was not.
type VisibilityGap struct {
	ID                  uuid.UUID `db:"id"                   json:"id"`
	OrganizationID      uuid.UUID `db:"organization_id"      json:"organization_id"`
	CompetitorID        uuid.UUID `db:"competitor_id"        json:"competitor_id"`
	PromptID            uuid.UUID `db:"prompt_id"            json:"prompt_id"`
	Model               string    `db:"ai_model"             json:"ai_model"`
	CompetitorMentioned bool      `db:"competitor_mentioned" json:"competitor_mentioned"`
	BrandMentioned      bool      `db:"brand_mentioned"      json:"brand_mentioned"`
	GapType             string    `db:"gap_type"             json:"gap_type"`
	DetectedAt          time.Time `db:"detected_at"          json:"detected_at"`
}

// WebsiteAnalysis is the stored outcome of a homepage crawl.
type WebsiteAnalysis struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	OrganizationID  uuid.UUID `db:"organization_id"  json:"organization_id"`
	Domain          string    `db:"domain"           json:"domain"`
	Title           *string   `db:"title"            json:"title,omitempty"`
	H1Text          *string   `db:"h1_text"          json:"h1_text,omitempty"`
	MetaDescription *string   `db:"meta_description" json:"meta_description,omitempty"`
	SchemaTypes     []string  `db:"schema_types"     json:"schema_types"`
	WordCount       int       `db:"word_count"       json:"word_count"`
	ReadinessScore  int       `db:"readiness_score"  json:"readiness_score"`
	AnalyzedAt      time.Time `db:"analyzed_at"      json:"analyzed_at"`
}

// ContentSnapshot is taken when a monitored page's content hash changes.
type ContentSnapshot struct {
	ID              uuid.UUID  `db:"id"                   json:"id"`
	PageID          uuid.UUID  `db:"page_id"              json:"page_id"`
	ContentHash     string     `db:"content_hash"         json:"content_hash"`
	WordCount       int        `db:"word_count"           json:"word_count"`
	H1Text          *string    `db:"h1_text"              json:"h1_text,omitempty"`
	MetaDescription *string    `db:"meta_description"     json:"meta_description,omitempty"`
	SchemaTypes     []string   `db:"schema_types"         json:"schema_types"`
	LastModified    *time.Time `db:"last_modified_header" json:"last_modified_header,omitempty"`
	CrawledAt       time.Time  `db:"crawled_at"           json:"crawled_at"`
}

// Report is a generated summary document for a period.
type Report struct {
	ID             uuid.UUID      `db:"id"              json:"id"`
	OrganizationID uuid.UUID      `db:"organization_id" json:"organization_id"`
	ReportType     string         `db:"report_type"     json:"report_type"`
	PeriodDays     int            `db:"period_days"     json:"period_days"`
	Summary        map[string]any `db:"summary"         json:"summary,omitempty"`
	CreatedAt      time.Time      `db:"created_at"      json:"created_at"`
}
